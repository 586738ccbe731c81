package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

type ClaudeClient struct {
	client *anthropic.Client
	model  string
}

func NewClaudeClient(apiKey string, model string, baseURL string) *ClaudeClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}

	client := anthropic.NewClient(apiKey, opts...)

	return &ClaudeClient{
		client: client,
		model:  model,
	}
}

func (c *ClaudeClient) Generate(ctx context.Context, r Request) (*Response, error) {
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	temperature := r.Temperature

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:  anthropic.Model(c.model),
		System: r.System,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(r.Prompt),
		},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	for _, part := range resp.Content {
		if part.Text != nil {
			return &Response{
				Text:             *part.Text,
				Model:            string(resp.Model),
				Latency:          time.Since(start),
				PromptTokens:     resp.Usage.InputTokens,
				CompletionTokens: resp.Usage.OutputTokens,
			}, nil
		}
	}
	return nil, fmt.Errorf("no response content")
}
