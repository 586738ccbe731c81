package core

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/core/pipeline"
)

type MockDriver struct {
	mu      sync.Mutex
	Queries []string
	Err     error
	// Gate, when set, holds every query until it is closed.
	Gate chan struct{}
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return neo4j.EagerResult{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}
	return neo4j.EagerResult{}, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error {
	return nil
}

func (m *MockDriver) Close(ctx context.Context) error {
	return nil
}

func (m *MockDriver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// MockRunner stands in for the pipeline. It publishes a stage event, then
// blocks until released or cancelled.
type MockRunner struct {
	Release chan struct{}
	Err     error
	Started chan string

	mu    sync.Mutex
	calls int
}

func newMockRunner() *MockRunner {
	return &MockRunner{Release: make(chan struct{}), Started: make(chan string, 4)}
}

func (m *MockRunner) Run(ctx context.Context, runID, transcript string, sink pipeline.Sink) (model.WorkflowState, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	sink.Publish(model.WorkflowEvent{Type: model.EventStageStart, RunID: runID, Stage: pipeline.StageAnalyze})
	m.Started <- runID

	state := model.NewWorkflowState(runID, transcript)
	select {
	case <-m.Release:
	case <-ctx.Done():
		state = state.WithError(&model.ErrorRecord{Stage: pipeline.StageAnalyze, Kind: model.ErrorKindCancelled, Message: ctx.Err().Error()})
		sink.Publish(model.WorkflowEvent{Type: model.EventWorkflowCancelled, RunID: runID, Error: state.Error})
		return state, &model.StageError{Stage: pipeline.StageAnalyze, Kind: model.ErrorKindCancelled, Err: ctx.Err()}
	}
	if m.Err != nil {
		state = state.WithError(&model.ErrorRecord{Stage: pipeline.StageAnalyze, Kind: model.ErrorKindInternal, Message: m.Err.Error()})
		return state, m.Err
	}

	text := "done"
	state.Summary = &text
	state.Analysis = &model.Analysis{Title: "Weekly sync"}
	sink.Publish(model.WorkflowEvent{Type: model.EventWorkflowComplete, RunID: runID, Result: state.Result()})
	return state, nil
}

func (m *MockRunner) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
