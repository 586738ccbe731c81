package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient answers requests from scripted replies keyed by
// Request.Operation. Each operation's replies are consumed in order and the
// last one repeats.
type MockClient struct {
	Responses map[string][]string
	Errors    map[string]error
	// Hook runs before every reply; a non-nil error is returned instead.
	Hook func(ctx context.Context, req Request) error

	mu       sync.Mutex
	requests []Request
}

func NewMockClient(responses map[string][]string) *MockClient {
	return &MockClient{Responses: responses}
}

func (m *MockClient) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Hook != nil {
		if err := m.Hook(ctx, req); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Errors[req.Operation]; err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.Responses[req.Operation]
	if len(queue) == 0 {
		return nil, fmt.Errorf("mock: no response for operation %q", req.Operation)
	}
	text := queue[0]
	if len(queue) > 1 {
		m.Responses[req.Operation] = queue[1:]
	}
	return &Response{Text: text, Model: "mock", Latency: time.Millisecond}, nil
}

// Requests returns the requests seen so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Operations returns the operation of every request seen so far.
func (m *MockClient) Operations() []string {
	var ops []string
	for _, r := range m.Requests() {
		ops = append(ops, r.Operation)
	}
	return ops
}
