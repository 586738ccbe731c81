// Package core runs meeting workflows: one in-flight run at a time, its
// progress fanned out to every connected observer and, on success, the
// meeting archived for later search.
package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/minutes/internal/broadcast"
	"github.com/agenthands/minutes/internal/core/archive"
	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/core/pipeline"
)

var (
	ErrRunInProgress   = errors.New("a workflow run is already in progress")
	ErrRunNotFound     = errors.New("workflow run not found")
	ErrEmptyTranscript = errors.New("transcript is empty")
)

const archiveTimeout = 10 * time.Second

// Runner executes one workflow. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, runID, transcript string, sink pipeline.Sink) (model.WorkflowState, error)
}

type RunOptions struct {
	// AutoExecute applies planned actions to the calendar. Without it the
	// actions are reported as awaiting approval.
	AutoExecute bool
}

type Config struct {
	// Pipeline executes planned actions.
	Pipeline Runner
	// Review runs when AutoExecute is off. Defaults to Pipeline.
	Review Runner
	Events *broadcast.Broadcaster
	// Archive is optional.
	Archive *archive.Archive
}

type Status struct {
	RunID       string             `json:"run_id,omitempty"`
	Running     bool               `json:"running"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Result      *model.RunResult   `json:"result,omitempty"`
	Error       *model.ErrorRecord `json:"error,omitempty"`
	Subscribers int                `json:"subscribers"`
}

type run struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	started  time.Time
	finished time.Time
	result   *model.RunResult
	failure  *model.ErrorRecord
	state    model.WorkflowState
	err      error
}

type Orchestrator struct {
	pipeline Runner
	review   Runner
	events   *broadcast.Broadcaster
	archive  *archive.Archive
	logger   *zap.Logger
	newID    func() string

	mu      sync.Mutex
	current *run
	last    *run
	// pending counts runs whose goroutine, archive write included, has not
	// returned.
	pending sync.WaitGroup
}

func NewOrchestrator(cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("orchestrator requires a pipeline")
	}
	if cfg.Review == nil {
		cfg.Review = cfg.Pipeline
	}
	if cfg.Events == nil {
		cfg.Events = broadcast.New(broadcast.DefaultQueueSize, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		pipeline: cfg.Pipeline,
		review:   cfg.Review,
		events:   cfg.Events,
		archive:  cfg.Archive,
		logger:   logger,
		newID:    shortID,
	}, nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Events is the broadcaster observers subscribe to.
func (o *Orchestrator) Events() *broadcast.Broadcaster {
	return o.events
}

// Start launches a run in the background and returns its id. The run is
// detached from ctx's cancellation; use Cancel to stop it.
func (o *Orchestrator) Start(ctx context.Context, transcript string, opts RunOptions) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", ErrEmptyTranscript
	}

	o.mu.Lock()
	if o.current != nil {
		o.mu.Unlock()
		return "", ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		id:      o.newID(),
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	o.current = r
	o.pending.Add(1)
	o.mu.Unlock()

	o.events.Reset()
	o.logger.Info("workflow started", zap.String("run_id", r.id), zap.Bool("auto_execute", opts.AutoExecute))
	go o.execute(runCtx, r, transcript, opts)
	return r.id, nil
}

// Run executes a workflow and waits for it. Cancelling ctx cancels the run.
func (o *Orchestrator) Run(ctx context.Context, transcript string, opts RunOptions) (model.WorkflowState, error) {
	id, err := o.Start(ctx, transcript, opts)
	if err != nil {
		return model.WorkflowState{}, err
	}

	stop := context.AfterFunc(ctx, func() { _ = o.Cancel(id) })
	defer stop()
	return o.Wait(context.Background(), id)
}

func (o *Orchestrator) execute(ctx context.Context, r *run, transcript string, opts RunOptions) {
	defer o.pending.Done()
	defer close(r.done)
	defer r.cancel()

	runner := o.review
	if opts.AutoExecute {
		runner = o.pipeline
	}
	state, err := runner.Run(ctx, r.id, transcript, runSink{o: o, r: r})

	var result *model.RunResult
	if err == nil {
		result = state.Result()
	}
	o.mu.Lock()
	o.release(r, result, state.Error)
	r.state, r.err = state, err
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("workflow finished with error", zap.String("run_id", r.id), zap.Error(err))
		return
	}
	o.logger.Info("workflow finished", zap.String("run_id", r.id), zap.Duration("elapsed", r.finished.Sub(r.started)))

	if o.archive != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if aerr := o.archive.Record(actx, state); aerr != nil {
			o.logger.Warn("failed to archive meeting", zap.String("run_id", r.id), zap.Error(aerr))
		}
	}
}

// release frees the run slot. Callers hold o.mu. Only the first call per run
// takes effect.
func (o *Orchestrator) release(r *run, result *model.RunResult, failure *model.ErrorRecord) {
	if o.current != r {
		return
	}
	r.finished = time.Now()
	r.result, r.failure = result, failure
	o.current = nil
	o.last = r
}

// runSink forwards a run's events to observers. The slot is freed before a
// terminal event goes out, so an observer reacting to it can start the next
// run straight away.
type runSink struct {
	o *Orchestrator
	r *run
}

func (s runSink) Publish(ev model.WorkflowEvent) {
	if !ev.Type.Terminal() {
		s.o.events.Publish(ev)
		return
	}
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	s.o.release(s.r, ev.Result, ev.Error)
	s.o.events.Publish(ev)
}

func (o *Orchestrator) lookup(runID string) *run {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range []*run{o.current, o.last} {
		if r != nil && r.id == runID {
			return r
		}
	}
	return nil
}

// Cancel stops the in-flight run with the given id.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil || r.id != runID {
		return ErrRunNotFound
	}
	o.logger.Info("workflow cancel requested", zap.String("run_id", runID))
	r.cancel()
	return nil
}

// Wait blocks until the run finishes or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (model.WorkflowState, error) {
	r := o.lookup(runID)
	if r == nil {
		return model.WorkflowState{}, ErrRunNotFound
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return model.WorkflowState{}, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return r.state, r.err
}

// Status reports the in-flight run, or the last finished one.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{Subscribers: o.events.Len()}
	r := o.current
	if r != nil {
		st.Running = true
	} else {
		r = o.last
	}
	if r == nil {
		return st
	}

	started := r.started
	st.RunID = r.id
	st.StartedAt = &started
	if !st.Running {
		finished := r.finished
		st.FinishedAt = &finished
		st.Result = r.result
		st.Error = r.failure
	}
	return st
}

// Close cancels any in-flight run, waits for pending archive writes and
// detaches all observers.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r != nil {
		r.cancel()
	}
	o.pending.Wait()
	o.events.Close()
}
