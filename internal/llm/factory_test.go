package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/minutes/internal/config"
)

func TestNewClientProviders(t *testing.T) {
	ctx := context.Background()
	for _, p := range []string{"openai", "nvidia", "NVIDIA", "claude", "ollama"} {
		c, err := NewClient(ctx, config.LLMConfig{Provider: p, Model: "m"}, nil)
		require.NoError(t, err, p)
		assert.NotNil(t, c, p)
	}

	_, err := NewClient(ctx, config.LLMConfig{Provider: "watson"}, nil)
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestOpenAIClientGenerate(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "x", "object": "chat.completion", "model": "nemotron",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "<think>ok</think>{}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", "nemotron", srv.URL+"/v1")
	resp, err := c.Generate(context.Background(), Request{
		System:      "be brief",
		Prompt:      "hello",
		Temperature: 0.2,
		TopP:        0.95,
		MaxTokens:   4096,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "<think>ok</think>{}", resp.Text)
	assert.Equal(t, "nemotron", resp.Model)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 3, resp.CompletionTokens)

	msgs := got["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.EqualValues(t, 4096, got["max_tokens"])
	// Array answers must stay legal, so no json_object response format.
	assert.NotContains(t, got, "response_format")
}
