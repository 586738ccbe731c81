package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/minutes/internal/broadcast"
	"github.com/agenthands/minutes/internal/config"
	"github.com/agenthands/minutes/internal/core"
	"github.com/agenthands/minutes/internal/core/archive"
	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/core/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type gatedRunner struct {
	release chan struct{}

	mu   sync.Mutex
	seen []bool
}

func (g *gatedRunner) Run(ctx context.Context, runID, transcript string, sink pipeline.Sink) (model.WorkflowState, error) {
	sink.Publish(model.WorkflowEvent{Type: model.EventStageStart, RunID: runID, Stage: pipeline.StageAnalyze, StageIndex: 1, StageCount: 9})
	state := model.NewWorkflowState(runID, transcript)
	select {
	case <-g.release:
	case <-ctx.Done():
		state = state.WithError(&model.ErrorRecord{Stage: pipeline.StageAnalyze, Kind: model.ErrorKindCancelled, Message: "cancelled"})
		sink.Publish(model.WorkflowEvent{Type: model.EventWorkflowCancelled, RunID: runID, Error: state.Error})
		return state, ctx.Err()
	}
	sink.Publish(model.WorkflowEvent{Type: model.EventWorkflowComplete, RunID: runID, Result: state.Result()})
	return state, nil
}

type taggedRunner struct {
	*gatedRunner
	auto bool
}

func (t taggedRunner) Run(ctx context.Context, runID, transcript string, sink pipeline.Sink) (model.WorkflowState, error) {
	t.mu.Lock()
	t.seen = append(t.seen, t.auto)
	t.mu.Unlock()
	return t.gatedRunner.Run(ctx, runID, transcript, sink)
}

func (g *gatedRunner) modes() []bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]bool(nil), g.seen...)
}

type fakeDriver struct {
	result neo4j.EagerResult
	params map[string]interface{}
}

func (f *fakeDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	f.params = params
	return f.result, nil
}

func (f *fakeDriver) BuildIndices(ctx context.Context) error { return nil }
func (f *fakeDriver) Close(ctx context.Context) error        { return nil }

func newTestServer(t *testing.T, arch *archive.Archive) (*Server, *gatedRunner) {
	t.Helper()
	runner := &gatedRunner{release: make(chan struct{})}
	orch, err := core.NewOrchestrator(core.Config{
		Pipeline: taggedRunner{runner, true},
		Review:   taggedRunner{runner, false},
		Events:   broadcast.New(16, nil),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(orch.Close)
	return NewServer(orch, arch, Options{AutoExecute: true, Heartbeat: 50 * time.Millisecond}, nil), runner
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestStartWorkflow(t *testing.T) {
	srv, runner := newTestServer(t, nil)
	r := srv.SetupRouter()

	w := post(r, "/api/workflows", `{"transcript":"Alice: let's meet Friday"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	runID, _ := body["run_id"].(string)
	assert.NotEmpty(t, runID)
	assert.Equal(t, true, body["auto_execute"])

	w = post(r, "/api/workflows", `{"transcript":"Bob: another one"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, runID, decode(t, w)["run_id"])

	close(runner.release)
	_, err := srv.orch.Wait(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, runner.modes())
}

func TestStartWorkflowReviewMode(t *testing.T) {
	srv, runner := newTestServer(t, nil)
	close(runner.release)
	r := srv.SetupRouter()

	w := post(r, "/api/workflows", `{"transcript":"Alice: hi","auto_execute":false}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	_, err := srv.orch.Wait(context.Background(), decode(t, w)["run_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, runner.modes())
}

func TestStartWorkflowBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	r := srv.SetupRouter()

	assert.Equal(t, http.StatusBadRequest, post(r, "/api/workflows", `{"transcript":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, "/api/workflows", `not json`).Code)
}

func TestCancelWorkflow(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	r := srv.SetupRouter()

	assert.Equal(t, http.StatusNotFound, post(r, "/api/workflows/nope/cancel", "").Code)

	w := post(r, "/api/workflows", `{"transcript":"Alice: hi"}`)
	runID := decode(t, w)["run_id"].(string)

	w = post(r, "/api/workflows/"+runID+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	_, err := srv.orch.Wait(context.Background(), runID)
	assert.Error(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/workflows/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, runID, status["run_id"])
	assert.Equal(t, false, status["running"])
	assert.NotNil(t, status["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	r := srv.SetupRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestEventStream(t *testing.T) {
	srv, runner := newTestServer(t, nil)
	ts := httptest.NewServer(srv.SetupRouter())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/workflows/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if ev, ok := strings.CutPrefix(lines.Text(), "event:"); ok {
				return strings.TrimSpace(ev)
			}
		}
		return ""
	}
	require.Equal(t, "connected", next())

	startResp, err := http.Post(ts.URL+"/api/workflows", "application/json",
		bytes.NewBufferString(`{"transcript":"Alice: hi"}`))
	require.NoError(t, err)
	startResp.Body.Close()
	require.Equal(t, http.StatusAccepted, startResp.StatusCode)

	assert.Equal(t, string(model.EventStageStart), next())
	close(runner.release)
	assert.Equal(t, string(model.EventWorkflowComplete), next())
}

func TestSearchMeetings(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := httptest.NewRecorder()
	srv.SetupRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/meetings?q=launch", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	d := &fakeDriver{result: neo4j.EagerResult{Records: []*neo4j.Record{{
		Keys:   []string{"uuid", "title", "summary", "created_at", "participants"},
		Values: []interface{}{"run-1", "Launch sync", "Agreed.", "2025-11-03T13:00:00Z", []interface{}{"Alice"}},
	}}}}
	srv, _ = newTestServer(t, archive.New(d, nil, nil))
	w = httptest.NewRecorder()
	srv.SetupRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/meetings?q=Launch&limit=3", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Results []archive.Meeting `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Launch sync", body.Results[0].Title)
	assert.Equal(t, []string{"Alice"}, body.Results[0].Participants)
	assert.Equal(t, "launch", d.params["query"])
	assert.Equal(t, 3, d.params["limit"])
}

func TestWireDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "test"

	c, err := Wire(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer c.Close(context.Background())

	assert.Nil(t, c.Archive)
	assert.NotNil(t, c.Calendar)
	assert.False(t, c.Orchestrator.Status().Running)

	srv := FromComponents(c, nil)
	assert.Equal(t, 15*time.Second, srv.opts.Heartbeat)
	assert.True(t, srv.opts.AutoExecute)
}

func TestWireRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Calendar.Provider = "outlook"
	_, err := Wire(context.Background(), cfg, nil)
	assert.Error(t, err)
}
