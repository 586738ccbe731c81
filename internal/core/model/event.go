package model

import "time"

type LogType string

const (
	LogThinking   LogType = "thinking"
	LogInput      LogType = "input"
	LogProcessing LogType = "processing"
	LogAPICall    LogType = "api_call"
	LogOutput     LogType = "output"
	LogTiming     LogType = "timing"
	LogError      LogType = "error"
)

type LogEntry struct {
	Type      LogType                `json:"type"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type EventType string

const (
	EventStageStart        EventType = "stage_start"
	EventStageComplete     EventType = "stage_complete"
	EventWorkflowComplete  EventType = "workflow_complete"
	EventWorkflowError     EventType = "workflow_error"
	EventWorkflowCancelled EventType = "workflow_cancelled"
)

// Terminal reports whether no further events follow for the run.
func (t EventType) Terminal() bool {
	return t == EventWorkflowComplete || t == EventWorkflowError || t == EventWorkflowCancelled
}

type WorkflowEvent struct {
	Type        EventType    `json:"type"`
	RunID       string       `json:"run_id"`
	Stage       string       `json:"stage,omitempty"`
	StageIndex  int          `json:"stage_index,omitempty"`
	StageCount  int          `json:"stage_count,omitempty"`
	Description string       `json:"description,omitempty"`
	Logs        []LogEntry   `json:"logs,omitempty"`
	Error       *ErrorRecord `json:"error,omitempty"`
	Result      *RunResult   `json:"result,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// RunResult is the payload of workflow_complete.
type RunResult struct {
	RunID                string            `json:"run_id"`
	PlannedActions       []MeetingAction   `json:"planned_actions"`
	ExecutionResults     []ExecutionResult `json:"execution_results"`
	Summary              string            `json:"summary"`
	NextSteps            []string          `json:"next_steps,omitempty"`
	CalendarEventsCount  int               `json:"calendar_events_count"`
	RelatedMeetingsCount int               `json:"related_meetings_count"`
}

// Result projects the final state onto the completion payload.
func (s WorkflowState) Result() *RunResult {
	r := &RunResult{
		RunID:                s.RunID,
		PlannedActions:       s.PlannedActions,
		ExecutionResults:     s.ExecutionResults,
		NextSteps:            s.NextSteps,
		CalendarEventsCount:  len(s.CalendarEvents),
		RelatedMeetingsCount: len(s.RelatedMeetings),
	}
	if s.Summary != nil {
		r.Summary = *s.Summary
	}
	return r
}
