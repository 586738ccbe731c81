// Package scheduler executes planned meeting actions against the calendar in
// two phases: slot discovery and event edits first, concurrently, then event
// creation, sequentially, so that creation can consume discovered slots.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/minutes/internal/calendar"
	"github.com/agenthands/minutes/internal/core/attendee"
	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/metrics"
)

const (
	DefaultWorkers      = 4
	DefaultFallbackHour = 14
	DefaultCallTimeout  = 8 * time.Second
	DefaultSearchDays   = 14
)

type Options struct {
	Location     *time.Location
	Workers      int
	FallbackHour int
	CallTimeout  time.Duration
	WorkStart    int
	WorkEnd      int
	SearchDays   int
	// DryRun records every action as awaiting approval without touching the
	// calendar.
	DryRun bool
	Now    func() time.Time
}

func (o *Options) setDefaults() {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.FallbackHour <= 0 {
		o.FallbackHour = DefaultFallbackHour
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.WorkEnd <= o.WorkStart {
		o.WorkStart, o.WorkEnd = 9, 17
	}
	if o.SearchDays <= 0 {
		o.SearchDays = DefaultSearchDays
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Scheduler struct {
	cal      calendar.Writer
	resolver *attendee.Resolver
	opts     Options
	logger   *zap.Logger
}

func New(cal calendar.Writer, resolver *attendee.Resolver, opts Options, logger *zap.Logger) *Scheduler {
	opts.setDefaults()
	if resolver == nil {
		resolver = attendee.NewResolver(attendee.Table{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cal: cal, resolver: resolver, opts: opts, logger: logger}
}

// WithDryRun returns a copy of s with dry-run mode set to dry.
func (s *Scheduler) WithDryRun(dry bool) *Scheduler {
	cp := *s
	cp.opts.DryRun = dry
	return &cp
}

// Execute runs actions and returns exactly one result per action, ordered by
// action index. Calendar failures are recorded as error results; an error is
// returned only when an action fails validation.
func (s *Scheduler) Execute(ctx context.Context, actions []model.MeetingAction) ([]model.ExecutionResult, error) {
	for i, a := range actions {
		if err := a.Validate(); err != nil {
			if ve, ok := err.(*model.ValidationError); ok {
				ve.Index = i
			}
			return nil, err
		}
	}

	results := make([]model.ExecutionResult, len(actions))
	if s.opts.DryRun {
		for i, a := range actions {
			results[i] = s.result(i, a, model.StatusWarning, "Awaiting approval: "+describe(a))
		}
		return results, nil
	}

	// Phase 1
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)
	for i, a := range actions {
		if !a.Type.Phase1() {
			continue
		}
		g.Go(func() error {
			results[i] = s.runPhase1(ctx, i, a)
			return nil
		})
	}
	_ = g.Wait()

	slots := newSlotBook()
	for i, a := range actions {
		if a.Type == model.ActionFindSlot {
			slots.add(results[i].Slots, a.Duration(), s.opts.Location)
		}
	}

	// Phase 2
	for i, a := range actions {
		if a.Type != model.ActionCreateEvent {
			continue
		}
		results[i] = s.create(ctx, i, a, slots)
	}
	return results, nil
}

func (s *Scheduler) runPhase1(ctx context.Context, i int, a model.MeetingAction) model.ExecutionResult {
	if err := ctx.Err(); err != nil {
		return s.fail(i, a, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	switch a.Type {
	case model.ActionFindSlot:
		return s.findSlot(callCtx, i, a)
	case model.ActionAddNotes:
		if err := s.cal.AddNotes(callCtx, a.TargetEventID, a.Notes); err != nil {
			return s.fail(i, a, err)
		}
		r := s.result(i, a, model.StatusSuccess, "Added notes to event "+a.TargetEventID)
		r.EventID = a.TargetEventID
		return r
	default:
		var u calendar.Update
		if a.Title != "" {
			u.Title = &a.Title
		}
		if a.Notes != "" {
			u.Description = &a.Notes
		}
		if err := s.cal.UpdateEvent(callCtx, a.TargetEventID, u); err != nil {
			return s.fail(i, a, err)
		}
		r := s.result(i, a, model.StatusSuccess, "Updated event "+a.TargetEventID)
		r.EventID = a.TargetEventID
		return r
	}
}

func (s *Scheduler) findSlot(ctx context.Context, i int, a model.MeetingAction) model.ExecutionResult {
	now := s.opts.Now().In(s.opts.Location)
	q := calendar.SlotQuery{
		From:            now,
		Days:            s.opts.SearchDays,
		Duration:        a.Duration(),
		WorkStart:       s.opts.WorkStart,
		WorkEnd:         s.opts.WorkEnd,
		ExcludeWeekends: true,
		NotBefore:       now,
	}
	if a.Date != "" {
		day, _ := time.ParseInLocation(model.DateLayout, a.Date, s.opts.Location)
		q.From, q.Days = day, 1
	}

	found, err := s.cal.FindSlots(ctx, q)
	if err != nil {
		return s.fail(i, a, err)
	}
	if len(found) == 0 {
		return s.result(i, a, model.StatusWarning, "No available slots found")
	}
	r := s.result(i, a, model.StatusSuccess, fmt.Sprintf("Found %d available slots", len(found)))
	r.Slots = found
	var lines []string
	for _, sl := range found {
		lines = append(lines, sl.Start.In(s.opts.Location).Format("Mon Jan 2 15:04")+" - "+sl.End.In(s.opts.Location).Format("15:04"))
	}
	r.Details = strings.Join(lines, "\n")
	return r
}

func (s *Scheduler) create(ctx context.Context, i int, a model.MeetingAction, slots *slotBook) model.ExecutionResult {
	if err := ctx.Err(); err != nil {
		return s.fail(i, a, err)
	}

	var emails []string
	for _, name := range a.Attendees {
		m := s.resolver.Resolve(name)
		if m.Email == "" {
			continue
		}
		s.logger.Debug("resolved attendee",
			zap.String("name", name),
			zap.String("email", m.Email),
			zap.String("method", string(m.Method)),
			zap.Float64("score", m.Score))
		emails = append(emails, m.Email)
	}
	emails = dedupe(emails)

	day, _ := time.ParseInLocation(model.DateLayout, a.Date, s.opts.Location)
	start := time.Date(day.Year(), day.Month(), day.Day(), s.opts.FallbackHour, 0, 0, 0, s.opts.Location)
	source := "fallback time"
	if sl, ok := slots.take(a.Date, a.Duration()); ok {
		start, source = sl.Start.In(s.opts.Location), "discovered slot"
	}
	end := start.Add(a.Duration())

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	id, err := s.cal.CreateEvent(callCtx, calendar.NewEvent{
		Title:       a.Title,
		Description: a.Notes,
		Start:       start,
		End:         end,
		Attendees:   emails,
	})
	if err != nil {
		r := s.fail(i, a, err)
		r.ResolvedAttendees = emails
		return r
	}

	r := s.result(i, a, model.StatusSuccess, fmt.Sprintf("Created event '%s' at %s", a.Title, start.Format("2006-01-02 15:04 MST")))
	r.EventID = id
	r.Details = source
	r.ResolvedAttendees = emails
	return r
}

func (s *Scheduler) result(i int, a model.MeetingAction, status model.ResultStatus, msg string) model.ExecutionResult {
	metrics.IncrementActionResult(string(a.Type), string(status))
	return model.ExecutionResult{
		ActionIndex: i,
		ActionType:  a.Type,
		Status:      status,
		Message:     msg,
		Timestamp:   s.opts.Now(),
	}
}

func (s *Scheduler) fail(i int, a model.MeetingAction, err error) model.ExecutionResult {
	s.logger.Warn("action failed", zap.Int("index", i), zap.String("type", string(a.Type)), zap.Error(err))
	return s.result(i, a, model.StatusError, (&model.CollaboratorError{Service: "calendar", Op: op(a.Type), Err: err}).Error())
}

func op(t model.ActionType) string {
	switch t {
	case model.ActionCreateEvent:
		return "create_event"
	case model.ActionAddNotes:
		return "add_notes"
	case model.ActionUpdateEvent:
		return "update_event"
	default:
		return "find_slots"
	}
}

func describe(a model.MeetingAction) string {
	switch a.Type {
	case model.ActionCreateEvent:
		return fmt.Sprintf("create '%s' on %s", a.Title, a.Date)
	case model.ActionFindSlot:
		return fmt.Sprintf("find a %d minute slot", int(a.Duration()/time.Minute))
	default:
		return fmt.Sprintf("%s on event %s", strings.ToLower(string(a.Type)), a.TargetEventID)
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
