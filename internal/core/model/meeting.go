package model

import "time"

type Analysis struct {
	Title          string   `json:"meeting_title"`
	IsPastMeeting  bool     `json:"is_past_meeting"`
	MentionedDates []string `json:"mentioned_dates"`
	Participants   []string `json:"participants"`
	Topics         []string `json:"key_topics"`
	ActionItems    []string `json:"action_items"`
	Summary        string   `json:"summary"`
}

type Entity struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Context string `json:"context"`
}

// Research is the entity and topic context gathered before planning.
type Research struct {
	Entities []Entity `json:"entities"`
	Topics   []string `json:"key_topics"`
	Summary  string   `json:"summary"`
}

type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RelatedMeeting is the planner's view of a calendar event judged relevant
// to the transcript.
type RelatedMeeting struct {
	EventID        string  `json:"event_id"`
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning"`
}

type Decision struct {
	ActionIndex    int      `json:"action_index"`
	Priority       string   `json:"priority"`
	Feasibility    float64  `json:"feasibility"`
	Recommendation string   `json:"recommendation"`
	Risks          []string `json:"risks"`
	Mitigation     string   `json:"mitigation"`
}

type DecisionReport struct {
	Decisions         []Decision `json:"decisions"`
	OverallAssessment string     `json:"overall_assessment"`
	CriticalPath      []string   `json:"critical_path_items"`
}

type Risk struct {
	Description     string `json:"description"`
	Severity        string `json:"severity"`
	AffectedActions []int  `json:"affected_actions"`
	Mitigation      string `json:"mitigation"`
	Owner           string `json:"owner"`
}

type RiskReport struct {
	Risks            []Risk   `json:"risks"`
	OverallRiskLevel string   `json:"overall_risk_level"`
	CriticalBlockers []string `json:"critical_blockers"`
	Recommendations  []string `json:"recommendations"`
}

var severityRank = map[string]int{"low": 1, "medium": 2, "high": 3, "critical": 4}

// SeverityRank orders severities; unknown values rank lowest.
func SeverityRank(s string) int {
	return severityRank[s]
}
