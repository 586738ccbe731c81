package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionType(t *testing.T) {
	cases := map[string]ActionType{
		"ADD_NOTES":           ActionAddNotes,
		"Add Notes":           ActionAddNotes,
		"add-notes":           ActionAddNotes,
		"create_event":        ActionCreateEvent,
		"find_available_slot": ActionFindSlot,
		" Update Event ":      ActionUpdateEvent,
	}
	for in, want := range cases {
		got, err := ParseActionType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseActionType("DELETE_EVENT")
	assert.Error(t, err)
}

func TestMeetingActionValidate(t *testing.T) {
	ok := MeetingAction{Type: ActionCreateEvent, Title: "Sync", Date: "2025-11-05", DurationMinutes: 30}
	assert.NoError(t, ok.Validate())

	missingDate := ok
	missingDate.Date = ""
	var verr *ValidationError
	require.ErrorAs(t, missingDate.Validate(), &verr)
	assert.Equal(t, "event_date", verr.Field)

	badDate := ok
	badDate.Date = "next tuesday"
	assert.Error(t, badDate.Validate())

	notes := MeetingAction{Type: ActionAddNotes, DurationMinutes: 60}
	require.ErrorAs(t, notes.Validate(), &verr)
	assert.Equal(t, "calendar_event_id", verr.Field)

	notes.TargetEventID = "evt-1"
	assert.NoError(t, notes.Validate())

	slot := MeetingAction{Type: ActionFindSlot}
	assert.Error(t, slot.Validate(), "zero duration")
}

func TestApplyEnforcesOwnership(t *testing.T) {
	s := NewWorkflowState("run", "hello")

	p := (&Patch{}).SetAnalysis(Analysis{Title: "Kickoff"})
	next, err := s.Apply("analyze_transcript", Ownership{Writes: []Field{FieldAnalysis}}, p)
	require.NoError(t, err)
	assert.Nil(t, s.Analysis, "receiver must not change")
	assert.Equal(t, "Kickoff", next.Analysis.Title)

	// Second write of a write-once field.
	_, err = next.Apply("analyze_transcript", Ownership{Writes: []Field{FieldAnalysis}}, p)
	var oerr *OwnershipError
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, FieldAnalysis, oerr.Field)

	// Field outside the stage's ownership.
	p2 := (&Patch{}).SetSummary("done")
	_, err = next.Apply("plan_actions", Ownership{Writes: []Field{FieldPlannedActions}}, p2)
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, "not owned", oerr.Reason)
}

func TestApplyRevisionAndAppend(t *testing.T) {
	s := NewWorkflowState("run", "hello")
	actions := []MeetingAction{
		{Type: ActionFindSlot, DurationMinutes: 60},
		{Type: ActionCreateEvent, Title: "A", Date: "2025-11-05", DurationMinutes: 60},
	}

	// Nothing to revise yet.
	_, err := s.Apply("decision_analysis", Ownership{Revises: []Field{FieldPlannedActions}}, (&Patch{}).SetPlannedActions(actions))
	assert.Error(t, err)

	s, err = s.Apply("plan_actions", Ownership{Writes: []Field{FieldPlannedActions}}, (&Patch{}).SetPlannedActions(actions))
	require.NoError(t, err)

	revised := s.Clone().PlannedActions
	revised[1].Priority = "high"
	s2, err := s.Apply("decision_analysis", Ownership{Revises: []Field{FieldPlannedActions}}, (&Patch{}).SetPlannedActions(revised))
	require.NoError(t, err)
	assert.Equal(t, "high", s2.PlannedActions[1].Priority)
	assert.Empty(t, s.PlannedActions[1].Priority)

	grown := append(revised, MeetingAction{Type: ActionFindSlot, DurationMinutes: 30})
	_, err = s.Apply("risk_assessment", Ownership{Revises: []Field{FieldPlannedActions}}, (&Patch{}).SetPlannedActions(grown))
	assert.Error(t, err)

	own := Ownership{Writes: []Field{FieldExecutionResults}}
	s3, err := s2.Apply("execute_actions", own, (&Patch{}).AppendResults(ExecutionResult{ActionIndex: 0}))
	require.NoError(t, err)
	s3, err = s3.Apply("execute_actions", own, (&Patch{}).AppendResults(ExecutionResult{ActionIndex: 1}))
	require.NoError(t, err)
	assert.Len(t, s3.ExecutionResults, 2)

	assert.Equal(t, []Field{FieldPlannedActions, FieldExecutionResults}, s3.WriteOrder())
}

func TestCloneSharesNothing(t *testing.T) {
	summary := "done"
	s := NewWorkflowState("run", "hello")
	s.Analysis = &Analysis{Title: "Sync", Participants: []string{"Alice"}, Topics: []string{"launch"}}
	s.Research = &Research{Entities: []Entity{{Name: "Acme"}}}
	s.CalendarEvents = []CalendarEvent{{ID: "e1", Attendees: []string{"a@corp.io"}}}
	s.PlannedActions = []MeetingAction{{Type: ActionCreateEvent, Attendees: []string{"Alice"}}}
	s.Decisions = &DecisionReport{Decisions: []Decision{{Risks: []string{"late"}}}}
	s.Risks = &RiskReport{Risks: []Risk{{AffectedActions: []int{0}}}}
	s.ExecutionResults = []ExecutionResult{{ResolvedAttendees: []string{"alice@corp.io"}}}
	s.Summary = &summary

	c := s.Clone()
	c.Analysis.Title = "Other"
	c.Analysis.Participants[0] = "Mallory"
	c.Research.Entities[0].Name = "Other"
	c.CalendarEvents[0].Attendees[0] = "x@corp.io"
	c.PlannedActions[0].Attendees[0] = "Mallory"
	c.Decisions.Decisions[0].Risks[0] = "none"
	c.Risks.Risks[0].AffectedActions[0] = 9
	c.ExecutionResults[0].ResolvedAttendees[0] = "x@corp.io"
	*c.Summary = "changed"

	assert.Equal(t, "Sync", s.Analysis.Title)
	assert.Equal(t, []string{"Alice"}, s.Analysis.Participants)
	assert.Equal(t, "Acme", s.Research.Entities[0].Name)
	assert.Equal(t, []string{"a@corp.io"}, s.CalendarEvents[0].Attendees)
	assert.Equal(t, []string{"Alice"}, s.PlannedActions[0].Attendees)
	assert.Equal(t, []string{"late"}, s.Decisions.Decisions[0].Risks)
	assert.Equal(t, []int{0}, s.Risks.Risks[0].AffectedActions)
	assert.Equal(t, []string{"alice@corp.io"}, s.ExecutionResults[0].ResolvedAttendees)
	assert.Equal(t, "done", *s.Summary)
}

func TestApplyCopiesPatchValues(t *testing.T) {
	a := Analysis{Title: "Sync", Participants: []string{"Alice"}}
	s, err := NewWorkflowState("run", "hello").Apply("analyze_transcript",
		Ownership{Writes: []Field{FieldAnalysis}}, (&Patch{}).SetAnalysis(a))
	require.NoError(t, err)

	a.Participants[0] = "Mallory"
	assert.Equal(t, []string{"Alice"}, s.Analysis.Participants)
}

func TestResultProjection(t *testing.T) {
	s := NewWorkflowState("run-1", "t")
	summary := "## Meeting Overview"
	s.Summary = &summary
	s.CalendarEvents = []CalendarEvent{{ID: "a"}, {ID: "b"}}

	r := s.Result()
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, summary, r.Summary)
	assert.Equal(t, 2, r.CalendarEventsCount)
	assert.True(t, EventWorkflowCancelled.Terminal())
	assert.False(t, EventStageComplete.Terminal())
}
