package llm

import (
	"context"
	"time"
)

// Request is one inference call. Operation names the calling step and is
// used for logging and metrics only.
type Request struct {
	Operation   string
	System      string
	Prompt      string
	Temperature float32
	TopP        float32
	MaxTokens   int
	// JSON marks an operation whose answer is parsed as JSON. Only Gemini acts
	// on it, through its JSON response MIME type. OpenAI's json_object mode
	// would reject the array answers some operations expect, and Anthropic has
	// no such mode, so both rely on the prompt alone.
	JSON bool
}

type Response struct {
	Text             string
	Model            string
	Latency          time.Duration
	PromptTokens     int
	CompletionTokens int
}

type LLMClient interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
