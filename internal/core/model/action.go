package model

import (
	"fmt"
	"strings"
	"time"
)

type ActionType string

const (
	ActionCreateEvent ActionType = "CREATE_EVENT"
	ActionAddNotes    ActionType = "ADD_NOTES"
	ActionFindSlot    ActionType = "FIND_SLOT"
	ActionUpdateEvent ActionType = "UPDATE_EVENT"
)

// DefaultDurationMinutes applies when the planner omits a duration.
const DefaultDurationMinutes = 60

// DateLayout is the ISO date layout used for MeetingAction.Date.
const DateLayout = "2006-01-02"

var actionAliases = map[string]ActionType{
	"CREATE_EVENT":        ActionCreateEvent,
	"CREATE":              ActionCreateEvent,
	"SCHEDULE_EVENT":      ActionCreateEvent,
	"ADD_NOTES":           ActionAddNotes,
	"ADD_NOTE":            ActionAddNotes,
	"FIND_SLOT":           ActionFindSlot,
	"FIND_SLOTS":          ActionFindSlot,
	"FIND_AVAILABLE_SLOT": ActionFindSlot,
	"UPDATE_EVENT":        ActionUpdateEvent,
	"UPDATE":              ActionUpdateEvent,
}

// ParseActionType canonicalizes free-form action type text ("Add Notes",
// "add-notes", "ADD_NOTES") into the closed ActionType set.
func ParseActionType(s string) (ActionType, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if t, ok := actionAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown action type %q", s)
}

// Phase1 reports whether the action runs before event creation.
func (t ActionType) Phase1() bool {
	return t == ActionFindSlot || t == ActionAddNotes || t == ActionUpdateEvent
}

type MeetingAction struct {
	Type            ActionType `json:"action_type"`
	TargetEventID   string     `json:"calendar_event_id,omitempty"`
	Title           string     `json:"event_title,omitempty"`
	Date            string     `json:"event_date,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Attendees       []string   `json:"attendees,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Reasoning       string     `json:"reasoning"`

	// Set by decision_analysis and risk_assessment.
	Priority  string `json:"priority,omitempty"`
	RiskLevel string `json:"risk_level,omitempty"`
}

// Validate checks the type-specific field requirements of an action.
func (a MeetingAction) Validate() error {
	switch a.Type {
	case ActionCreateEvent:
		if strings.TrimSpace(a.Title) == "" {
			return &ValidationError{Action: a.Type, Field: "event_title", Reason: "required"}
		}
		if a.Date == "" {
			return &ValidationError{Action: a.Type, Field: "event_date", Reason: "required"}
		}
	case ActionAddNotes, ActionUpdateEvent:
		if strings.TrimSpace(a.TargetEventID) == "" {
			return &ValidationError{Action: a.Type, Field: "calendar_event_id", Reason: "required"}
		}
	case ActionFindSlot:
	default:
		return &ValidationError{Action: a.Type, Field: "action_type", Reason: "unknown"}
	}
	if a.Date != "" {
		if _, err := time.Parse(DateLayout, a.Date); err != nil {
			return &ValidationError{Action: a.Type, Field: "event_date", Reason: "not an ISO date"}
		}
	}
	if a.DurationMinutes <= 0 {
		return &ValidationError{Action: a.Type, Field: "duration_minutes", Reason: "must be positive"}
	}
	return nil
}

// Duration returns the action's duration, falling back to the default.
func (a MeetingAction) Duration() time.Duration {
	if a.DurationMinutes <= 0 {
		return DefaultDurationMinutes * time.Minute
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
	StatusWarning ResultStatus = "warning"
)

type ExecutionResult struct {
	ActionIndex       int          `json:"action_index"`
	ActionType        ActionType   `json:"action_type"`
	Status            ResultStatus `json:"status"`
	Message           string       `json:"message"`
	EventID           string       `json:"event_id,omitempty"`
	Details           string       `json:"details,omitempty"`
	ResolvedAttendees []string     `json:"resolved_attendees,omitempty"`
	Slots             []TimeSlot   `json:"slots,omitempty"`
	Timestamp         time.Time    `json:"timestamp"`
}
