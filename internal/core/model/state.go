package model

import (
	"fmt"
	"slices"
)

// Field names a slot of WorkflowState that a stage may write.
type Field string

const (
	FieldAnalysis         Field = "analysis"
	FieldResearch         Field = "research"
	FieldCalendarEvents   Field = "calendar_events"
	FieldRelatedMeetings  Field = "related_meetings"
	FieldPlannedActions   Field = "planned_actions"
	FieldDecisions        Field = "decisions"
	FieldRisks            Field = "risks"
	FieldExecutionResults Field = "execution_results"
	FieldSummary          Field = "summary"
	FieldNextSteps        Field = "next_steps"
)

// Ownership declares which fields a stage writes once and which previously
// written fields it may revise.
type Ownership struct {
	Writes  []Field
	Revises []Field
}

// OwnershipError is returned when a patch touches a field the stage does not
// own, or rewrites a write-once field.
type OwnershipError struct {
	Stage  string
	Field  Field
	Reason string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("stage %s may not write %s: %s", e.Stage, e.Field, e.Reason)
}

// WorkflowState is the record threaded through one run. It is treated as an
// immutable value: stages return a Patch and the driver derives the next
// state with Apply.
type WorkflowState struct {
	RunID            string            `json:"run_id"`
	Transcript       string            `json:"transcript"`
	Analysis         *Analysis         `json:"analysis,omitempty"`
	Research         *Research         `json:"research,omitempty"`
	CalendarEvents   []CalendarEvent   `json:"calendar_events"`
	RelatedMeetings  []CalendarEvent   `json:"related_meetings"`
	PlannedActions   []MeetingAction   `json:"planned_actions"`
	Decisions        *DecisionReport   `json:"decisions,omitempty"`
	Risks            *RiskReport       `json:"risks,omitempty"`
	ExecutionResults []ExecutionResult `json:"execution_results"`
	Summary          *string           `json:"summary,omitempty"`
	NextSteps        []string          `json:"next_steps,omitempty"`
	Error            *ErrorRecord      `json:"error,omitempty"`

	written []Field
}

func NewWorkflowState(runID, transcript string) WorkflowState {
	return WorkflowState{RunID: runID, Transcript: transcript}
}

// WriteOrder lists fields in the order they were first written.
func (s WorkflowState) WriteOrder() []Field {
	return slices.Clone(s.written)
}

func (s WorkflowState) Written(f Field) bool {
	return slices.Contains(s.written, f)
}

// Clone returns a deep copy: no slice, pointer or nested slice is shared
// with s.
func (s WorkflowState) Clone() WorkflowState {
	c := s
	c.Analysis = cloneAnalysis(s.Analysis)
	c.Research = cloneResearch(s.Research)
	c.CalendarEvents = cloneEvents(s.CalendarEvents)
	c.RelatedMeetings = cloneEvents(s.RelatedMeetings)
	c.PlannedActions = cloneActions(s.PlannedActions)
	c.Decisions = cloneDecisions(s.Decisions)
	c.Risks = cloneRisks(s.Risks)
	c.ExecutionResults = cloneResults(s.ExecutionResults)
	c.Summary = clonePtr(s.Summary)
	c.NextSteps = slices.Clone(s.NextSteps)
	c.Error = clonePtr(s.Error)
	c.written = slices.Clone(s.written)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneAnalysis(a *Analysis) *Analysis {
	c := clonePtr(a)
	if c != nil {
		c.MentionedDates = slices.Clone(a.MentionedDates)
		c.Participants = slices.Clone(a.Participants)
		c.Topics = slices.Clone(a.Topics)
		c.ActionItems = slices.Clone(a.ActionItems)
	}
	return c
}

func cloneResearch(r *Research) *Research {
	c := clonePtr(r)
	if c != nil {
		c.Entities = slices.Clone(r.Entities)
		c.Topics = slices.Clone(r.Topics)
	}
	return c
}

func cloneEvents(in []CalendarEvent) []CalendarEvent {
	out := slices.Clone(in)
	for i := range out {
		out[i].Attendees = slices.Clone(in[i].Attendees)
	}
	return out
}

func cloneActions(in []MeetingAction) []MeetingAction {
	out := slices.Clone(in)
	for i := range out {
		out[i].Attendees = slices.Clone(in[i].Attendees)
	}
	return out
}

func cloneDecisions(d *DecisionReport) *DecisionReport {
	c := clonePtr(d)
	if c != nil {
		c.Decisions = slices.Clone(d.Decisions)
		for i := range c.Decisions {
			c.Decisions[i].Risks = slices.Clone(d.Decisions[i].Risks)
		}
		c.CriticalPath = slices.Clone(d.CriticalPath)
	}
	return c
}

func cloneRisks(r *RiskReport) *RiskReport {
	c := clonePtr(r)
	if c != nil {
		c.Risks = slices.Clone(r.Risks)
		for i := range c.Risks {
			c.Risks[i].AffectedActions = slices.Clone(r.Risks[i].AffectedActions)
		}
		c.CriticalBlockers = slices.Clone(r.CriticalBlockers)
		c.Recommendations = slices.Clone(r.Recommendations)
	}
	return c
}

func cloneResults(in []ExecutionResult) []ExecutionResult {
	out := slices.Clone(in)
	for i := range out {
		out[i].ResolvedAttendees = slices.Clone(in[i].ResolvedAttendees)
		out[i].Slots = slices.Clone(in[i].Slots)
	}
	return out
}

// WithError returns a copy of s carrying the terminal error.
func (s WorkflowState) WithError(rec *ErrorRecord) WorkflowState {
	c := s.Clone()
	c.Error = rec
	return c
}

// Patch is the set of writes a stage wants applied to the state.
type Patch struct {
	touched []Field

	analysis        *Analysis
	research        *Research
	calendarEvents  []CalendarEvent
	relatedMeetings []CalendarEvent
	plannedActions  []MeetingAction
	decisions       *DecisionReport
	risks           *RiskReport
	results         []ExecutionResult
	summary         *string
	nextSteps       []string
}

func (p *Patch) touch(f Field) *Patch {
	if !slices.Contains(p.touched, f) {
		p.touched = append(p.touched, f)
	}
	return p
}

// Fields lists the fields the patch writes.
func (p *Patch) Fields() []Field { return slices.Clone(p.touched) }

func (p *Patch) SetAnalysis(a Analysis) *Patch {
	p.analysis = &a
	return p.touch(FieldAnalysis)
}

func (p *Patch) SetResearch(r Research) *Patch {
	p.research = &r
	return p.touch(FieldResearch)
}

func (p *Patch) SetCalendarEvents(events []CalendarEvent) *Patch {
	p.calendarEvents = slices.Clone(events)
	return p.touch(FieldCalendarEvents)
}

func (p *Patch) SetRelatedMeetings(events []CalendarEvent) *Patch {
	p.relatedMeetings = slices.Clone(events)
	return p.touch(FieldRelatedMeetings)
}

func (p *Patch) SetPlannedActions(actions []MeetingAction) *Patch {
	p.plannedActions = slices.Clone(actions)
	return p.touch(FieldPlannedActions)
}

func (p *Patch) SetDecisions(d DecisionReport) *Patch {
	p.decisions = &d
	return p.touch(FieldDecisions)
}

func (p *Patch) SetRisks(r RiskReport) *Patch {
	p.risks = &r
	return p.touch(FieldRisks)
}

func (p *Patch) AppendResults(results ...ExecutionResult) *Patch {
	p.results = append(p.results, results...)
	return p.touch(FieldExecutionResults)
}

func (p *Patch) SetSummary(s string) *Patch {
	p.summary = &s
	return p.touch(FieldSummary)
}

func (p *Patch) SetNextSteps(steps []string) *Patch {
	p.nextSteps = slices.Clone(steps)
	return p.touch(FieldNextSteps)
}

// Apply returns the state that results from applying p on behalf of stage.
// The receiver is left untouched.
func (s WorkflowState) Apply(stage string, own Ownership, p *Patch) (WorkflowState, error) {
	next := s.Clone()
	if p == nil {
		return next, nil
	}
	for _, f := range p.touched {
		writes := slices.Contains(own.Writes, f)
		revises := slices.Contains(own.Revises, f)
		switch {
		case !writes && !revises:
			return s, &OwnershipError{Stage: stage, Field: f, Reason: "not owned"}
		case revises && !s.Written(f):
			return s, &OwnershipError{Stage: stage, Field: f, Reason: "nothing to revise"}
		case writes && s.Written(f) && f != FieldExecutionResults:
			return s, &OwnershipError{Stage: stage, Field: f, Reason: "already written"}
		}

		switch f {
		case FieldAnalysis:
			next.Analysis = cloneAnalysis(p.analysis)
		case FieldResearch:
			next.Research = cloneResearch(p.research)
		case FieldCalendarEvents:
			next.CalendarEvents = cloneEvents(p.calendarEvents)
		case FieldRelatedMeetings:
			next.RelatedMeetings = cloneEvents(p.relatedMeetings)
		case FieldPlannedActions:
			if revises && len(p.plannedActions) > len(s.PlannedActions) {
				return s, &OwnershipError{Stage: stage, Field: f, Reason: "revision may only filter or annotate"}
			}
			next.PlannedActions = cloneActions(p.plannedActions)
		case FieldDecisions:
			next.Decisions = cloneDecisions(p.decisions)
		case FieldRisks:
			next.Risks = cloneRisks(p.risks)
		case FieldExecutionResults:
			next.ExecutionResults = append(next.ExecutionResults, cloneResults(p.results)...)
		case FieldSummary:
			next.Summary = clonePtr(p.summary)
		case FieldNextSteps:
			next.NextSteps = slices.Clone(p.nextSteps)
		}
		if !next.Written(f) {
			next.written = append(next.written, f)
		}
	}
	return next, nil
}
