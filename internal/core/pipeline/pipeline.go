// Package pipeline drives a transcript through the nine workflow stages.
//
// Each stage reads the current WorkflowState and returns a Patch. The driver
// applies the patch under the stage's declared ownership, so a stage can
// never overwrite a field produced by another one. Progress is reported to a
// Sink as WorkflowEvents; the first failing stage ends the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/minutes/internal/calendar"
	"github.com/agenthands/minutes/internal/config"
	"github.com/agenthands/minutes/internal/core/extract"
	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/core/summary"
	"github.com/agenthands/minutes/internal/llm"
	"github.com/agenthands/minutes/internal/mail"
	"github.com/agenthands/minutes/internal/metrics"
)

const (
	StageAnalyze  = "analyze_transcript"
	StageResearch = "research_context"
	StageCalendar = "fetch_calendar_context"
	StageRelated  = "find_related_meetings"
	StagePlan     = "plan_actions"
	StageDecision = "decision_analysis"
	StageRisk     = "risk_assessment"
	StageExecute  = "execute_actions"
	StageSummary  = "generate_summary"
)

// Sink receives the events of a run. *broadcast.Broadcaster satisfies it.
type Sink interface {
	Publish(ev model.WorkflowEvent)
}

type SinkFunc func(ev model.WorkflowEvent)

func (f SinkFunc) Publish(ev model.WorkflowEvent) { f(ev) }

type discard struct{}

func (discard) Publish(model.WorkflowEvent) {}

// Executor runs planned actions. *scheduler.Scheduler satisfies it.
type Executor interface {
	Execute(ctx context.Context, actions []model.MeetingAction) ([]model.ExecutionResult, error)
}

type Deps struct {
	LLM        llm.LLMClient
	Calendar   calendar.Reader
	Executor   Executor
	Mail       mail.Sender
	Summarizer *summary.Summarizer
}

type Options struct {
	Location    *time.Location
	Temperature float32
	TopP        float32
	MaxTokens   int

	LLMTimeout      time.Duration
	CalendarTimeout time.Duration
	MailTimeout     time.Duration

	DaysBack  int
	DaysAhead int
	MaxEvents int

	Recipients []string
	Prompts    config.Prompts
	Now        func() time.Time
}

func (o *Options) setDefaults() {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Temperature == 0 {
		o.Temperature = 0.2
	}
	if o.TopP == 0 {
		o.TopP = 0.95
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 4096
	}
	if o.LLMTimeout == 0 {
		o.LLMTimeout = 60 * time.Second
	}
	if o.CalendarTimeout == 0 {
		o.CalendarTimeout = 8 * time.Second
	}
	if o.MailTimeout == 0 {
		o.MailTimeout = 8 * time.Second
	}
	if o.DaysBack == 0 {
		o.DaysBack = 30
	}
	if o.DaysAhead == 0 {
		o.DaysAhead = 30
	}
	if o.MaxEvents == 0 {
		o.MaxEvents = 50
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// StageFunc computes a stage's contribution to the state.
type StageFunc func(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error)

type Stage struct {
	Name        string
	Description string
	Owns        model.Ownership
	Run         StageFunc
}

type Pipeline struct {
	deps    Deps
	opts    Options
	prompts *promptSet
	stages  []Stage
	logger  *zap.Logger
}

func New(deps Deps, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if deps.LLM == nil {
		return nil, errors.New("pipeline requires an LLM client")
	}
	if deps.Calendar == nil || deps.Executor == nil {
		return nil, errors.New("pipeline requires a calendar reader and an action executor")
	}
	opts.setDefaults()
	if deps.Summarizer == nil {
		deps.Summarizer = summary.NewSummarizer(opts.Location)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prompts, err := newPromptSet(opts.Prompts)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{deps: deps, opts: opts, prompts: prompts, logger: logger}
	p.stages = p.buildStages()
	return p, nil
}

// WithExecutor returns a copy of p that hands planned actions to e.
func (p *Pipeline) WithExecutor(e Executor) *Pipeline {
	cp := *p
	cp.deps.Executor = e
	cp.stages = cp.buildStages()
	return &cp
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Run executes every stage in order and returns the final state. On failure
// the returned state carries the error record and the error is a
// *model.StageError.
func (p *Pipeline) Run(ctx context.Context, runID, transcript string, sink Sink) (model.WorkflowState, error) {
	if sink == nil {
		sink = discard{}
	}
	log := p.logger.With(zap.String("run_id", runID))
	state := model.NewWorkflowState(runID, transcript)
	total := len(p.stages)

	for i, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, state, st, i, nil, err, sink, log)
		}

		log.Info("stage started", zap.String("stage", st.Name))
		sink.Publish(model.WorkflowEvent{
			Type:        model.EventStageStart,
			RunID:       runID,
			Stage:       st.Name,
			StageIndex:  i + 1,
			StageCount:  total,
			Description: st.Description,
			Timestamp:   p.opts.Now(),
		})

		rec := newRecorder(p.opts.Now)
		started := time.Now()
		patch, err := st.Run(ctx, state, rec)
		if err == nil {
			state, err = state.Apply(st.Name, st.Owns, patch)
		}
		elapsed := time.Since(started)
		if err != nil {
			metrics.RecordStageDuration(st.Name, outcome(ctx, err), elapsed)
			return p.fail(ctx, state, st, i, rec, err, sink, log)
		}

		metrics.RecordStageDuration(st.Name, "ok", elapsed)
		rec.Log(model.LogTiming, fmt.Sprintf("Stage completed in %dms", elapsed.Milliseconds()),
			map[string]interface{}{"duration_ms": elapsed.Milliseconds()})
		log.Info("stage completed", zap.String("stage", st.Name), zap.Duration("elapsed", elapsed))
		sink.Publish(model.WorkflowEvent{
			Type:       model.EventStageComplete,
			RunID:      runID,
			Stage:      st.Name,
			StageIndex: i + 1,
			StageCount: total,
			Logs:       rec.Entries(),
			Timestamp:  p.opts.Now(),
		})
	}

	metrics.IncrementRun("complete")
	log.Info("workflow complete",
		zap.Int("actions", len(state.PlannedActions)),
		zap.Int("results", len(state.ExecutionResults)))
	sink.Publish(model.WorkflowEvent{
		Type:      model.EventWorkflowComplete,
		RunID:     runID,
		Result:    state.Result(),
		Timestamp: p.opts.Now(),
	})
	return state, nil
}

func (p *Pipeline) fail(ctx context.Context, state model.WorkflowState, st Stage, i int, rec *Recorder, err error, sink Sink, log *zap.Logger) (model.WorkflowState, error) {
	serr := classify(ctx, st.Name, err)
	state = state.WithError(serr.Record())

	evType := model.EventWorkflowError
	if serr.Kind == model.ErrorKindCancelled {
		evType = model.EventWorkflowCancelled
		metrics.IncrementRun("cancelled")
		log.Warn("workflow cancelled", zap.String("stage", st.Name))
	} else {
		metrics.IncrementRun("error")
		log.Error("workflow failed", zap.String("stage", st.Name), zap.String("kind", string(serr.Kind)), zap.Error(err))
	}

	ev := model.WorkflowEvent{
		Type:       evType,
		RunID:      state.RunID,
		Stage:      st.Name,
		StageIndex: i + 1,
		StageCount: len(p.stages),
		Error:      state.Error,
		Timestamp:  p.opts.Now(),
	}
	if rec != nil {
		rec.Log(model.LogError, serr.Err.Error(), map[string]interface{}{"kind": string(serr.Kind)})
		ev.Logs = rec.Entries()
	}
	sink.Publish(ev)
	return state, serr
}

// classify maps a stage failure onto the error taxonomy. A cancelled run
// context wins over whatever error the stage surfaced.
func classify(ctx context.Context, stage string, err error) *model.StageError {
	var se *model.StageError
	if errors.As(err, &se) {
		return se
	}
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return &model.StageError{Stage: stage, Kind: model.ErrorKindCancelled, Err: err}
	}

	var (
		xe *extract.Error
		ve *model.ValidationError
		ce *model.CollaboratorError
	)
	kind := model.ErrorKindInternal
	switch {
	case errors.As(err, &xe):
		kind = model.ErrorKindExtraction
	case errors.As(err, &ve):
		kind = model.ErrorKindValidation
	case errors.As(err, &ce), errors.Is(err, context.DeadlineExceeded):
		kind = model.ErrorKindCollaborator
	case errors.Is(err, context.Canceled):
		kind = model.ErrorKindCancelled
	}
	return &model.StageError{Stage: stage, Kind: kind, Err: err}
}

func outcome(ctx context.Context, err error) string {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "error"
}

// Recorder accumulates the log entries of one stage.
type Recorder struct {
	entries []model.LogEntry
	now     func() time.Time
}

func newRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

func (r *Recorder) Log(t model.LogType, msg string, meta map[string]interface{}) {
	r.entries = append(r.entries, model.LogEntry{Type: t, Message: msg, Metadata: meta, Timestamp: r.now()})
}

func (r *Recorder) Entries() []model.LogEntry {
	return append([]model.LogEntry(nil), r.entries...)
}
