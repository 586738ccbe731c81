package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/agenthands/minutes/internal/config"
	"github.com/agenthands/minutes/internal/core/extract"
	"github.com/agenthands/minutes/internal/core/model"
)

const (
	opAnalyze   = "analyze"
	opResearch  = "research"
	opRelated   = "related"
	opPlan      = "plan"
	opDecision  = "decision"
	opRisk      = "risk"
	opSummary   = "summary"
	opNextSteps = "next_steps"
)

const jsonInstruction = "\n\nRespond with valid JSON only. Do not add any other text."

// promptData is what prompt templates can reference.
type promptData struct {
	Today      string
	Tomorrow   string
	Timezone   string
	Transcript string
	Analysis   *model.Analysis
	Research   *model.Research
	Events     []model.CalendarEvent
	Related    []model.CalendarEvent
	Actions    []model.MeetingAction
	Results    []model.ExecutionResult
	Summary    string
}

type prompt struct {
	system *template.Template
	user   *template.Template
	json   bool
}

type promptSet struct {
	byOp map[string]prompt
}

var funcs = template.FuncMap{
	"json": func(v interface{}) string {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "null"
		}
		return string(b)
	},
	"truncate": func(n int, s string) string { return extract.Truncate(s, n) },
}

func newPromptSet(overrides config.Prompts) (*promptSet, error) {
	systems := map[string]string{
		opAnalyze:   pick(overrides.Analyze, analyzeSystem),
		opResearch:  pick(overrides.Research, researchSystem),
		opRelated:   pick(overrides.Related, relatedSystem),
		opPlan:      pick(overrides.Plan, planSystem),
		opDecision:  pick(overrides.Decision, decisionSystem),
		opRisk:      pick(overrides.Risk, riskSystem),
		opSummary:   pick(overrides.Summary, summarySystem),
		opNextSteps: pick(overrides.NextSteps, nextStepsSystem),
	}
	users := map[string]string{
		opAnalyze:   analyzeUser,
		opResearch:  researchUser,
		opRelated:   relatedUser,
		opPlan:      planUser,
		opDecision:  decisionUser,
		opRisk:      riskUser,
		opSummary:   summaryUser,
		opNextSteps: nextStepsUser,
	}
	jsonOps := map[string]bool{
		opAnalyze: true, opResearch: true, opRelated: true, opPlan: true, opDecision: true, opRisk: true,
	}

	set := &promptSet{byOp: make(map[string]prompt, len(systems))}
	for op, sys := range systems {
		st, err := template.New(op + "_system").Funcs(funcs).Parse(sys)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s system prompt: %w", op, err)
		}
		ut, err := template.New(op + "_user").Funcs(funcs).Parse(users[op])
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s user prompt: %w", op, err)
		}
		set.byOp[op] = prompt{system: st, user: ut, json: jsonOps[op]}
	}
	return set, nil
}

func pick(override, def string) string {
	if override != "" {
		return override
	}
	return def
}

func (s *promptSet) render(op string, data promptData) (system, user string, jsonOut bool, err error) {
	p, ok := s.byOp[op]
	if !ok {
		return "", "", false, fmt.Errorf("no prompt for operation %q", op)
	}
	var sb, ub bytes.Buffer
	if err := p.system.Execute(&sb, data); err != nil {
		return "", "", false, fmt.Errorf("failed to render %s system prompt: %w", op, err)
	}
	if err := p.user.Execute(&ub, data); err != nil {
		return "", "", false, fmt.Errorf("failed to render %s user prompt: %w", op, err)
	}
	system = sb.String()
	if p.json {
		system += jsonInstruction
	}
	return system, ub.String(), p.json, nil
}

const analyzeSystem = `You are an expert meeting analyst. Extract the key information from a meeting transcript.

The transcript comes from speech recognition:
- Ignore filler words such as "um", "uh", "like" and "you know".
- Speakers correct themselves; use the final intent.
- "Let's discuss" or "let me know about" usually signal scheduling intent.
- "Hey <name>" at the start of a request names a likely attendee.

Convert informal dates ("november seventh", "next monday") to YYYY-MM-DD. Today is {{.Today}} ({{.Timezone}}).

Return an object of this shape:
{
  "meeting_title": "string",
  "is_past_meeting": false,
  "mentioned_dates": ["2025-10-30"],
  "participants": ["John", "Sarah"],
  "key_topics": ["Q4 roadmap", "budget"],
  "action_items": ["John: prepare specs", "Sarah: budget analysis"],
  "summary": "Short summary with normalized grammar"
}`

const analyzeUser = `Analyze this meeting transcript:

{{.Transcript}}`

const researchSystem = `You are a research agent. Identify the important entities in a meeting transcript and explain why they matter:
projects and initiatives, people and teams, technologies and tools, and outside organizations.

Return an object of this shape:
{
  "entities": [{"name": "...", "type": "project|person|technology|organization", "context": "one or two sentences"}],
  "key_topics": ["topic"],
  "summary": "Short summary of the background context"
}`

const researchUser = `Meeting transcript:
{{truncate 1000 .Transcript}}

Meeting analysis:
{{json .Analysis}}`

const relatedSystem = `You decide which existing calendar events are related to a meeting.

Return an array ordered from most to least relevant:
[{"event_id": "calendar event id", "relevance_score": 8, "reasoning": "why it is related"}]

Return [] when nothing is related.`

const relatedUser = `Meeting analysis:
{{json .Analysis}}

Calendar events:
{{range .Events}}- id={{.ID}} title={{printf "%q" .Title}} start={{.Start.Format "2006-01-02 15:04"}}{{with .Description}} description={{printf "%q" (truncate 100 .)}}{{end}}
{{end}}`

const planSystem = `You plan calendar actions for a meeting. Today is {{.Today}}; tomorrow is {{.Tomorrow}}. Times are in {{.Timezone}}.

Produce one action per distinct meeting, event or task. Never merge several requests into a single action:
if three meetings are mentioned, return three CREATE_EVENT actions.

Available action types:
- CREATE_EVENT: schedule a future meeting mentioned in the transcript. Requires event_title and event_date.
- ADD_NOTES: append discussion notes to an existing event. Requires calendar_event_id.
- FIND_SLOT: look up free time between 9:00 and 17:00 on weekdays. A found slot is used by a CREATE_EVENT for the same date and duration.
- UPDATE_EVENT: change the title or description of an existing event. Requires calendar_event_id.

Rules:
- Only create events for future meetings. Past discussions become ADD_NOTES on the related event.
- Dates are YYYY-MM-DD. "tomorrow" is {{.Tomorrow}}; "next week" is seven days from today; weekday names mean the next such day.
- duration_minutes follows the transcript ("30-minute sync" is 30, "half an hour" is 30, "two hours" is 120, "all-day" is 480). Use 60 when no duration is given.
- attendees are the first names mentioned, lower-cased. The system resolves them to email addresses.

Return an array:
[
  {
    "action_type": "CREATE_EVENT",
    "event_title": "Project Phoenix Planning Session",
    "event_date": "2025-11-05",
    "duration_minutes": 120,
    "attendees": ["rahual", "kritika"],
    "notes": "Q4 roadmap planning",
    "reasoning": "The transcript asks for a two hour planning session next week"
  },
  {
    "action_type": "ADD_NOTES",
    "calendar_event_id": "abc123",
    "notes": "Action items assigned",
    "reasoning": "Record the outcome of the discussion"
  }
]

Return [] when no action is needed.`

const planUser = `Transcript:
{{truncate 2000 .Transcript}}

Analysis:
{{json .Analysis}}
{{with .Research}}
Research:
{{json .}}
{{end}}
Related meetings:
{{range .Related}}- id={{.ID}} title={{printf "%q" .Title}} start={{.Start.Format "2006-01-02 15:04"}}
{{else}}(none)
{{end}}
Upcoming calendar:
{{range .Events}}- id={{.ID}} title={{printf "%q" .Title}} start={{.Start.Format "2006-01-02 15:04"}}
{{else}}(none)
{{end}}`

const decisionSystem = `You evaluate planned meeting actions. For each action judge priority, urgency, stakeholder impact,
timeline feasibility and risk.

Return an object of this shape:
{
  "decisions": [
    {"action_index": 0, "priority": "critical|high|medium|low", "feasibility": 8, "recommendation": "...", "risks": ["..."], "mitigation": "..."}
  ],
  "overall_assessment": "...",
  "critical_path_items": ["..."]
}`

const decisionUser = `Planned actions (action_index is the position in this list):
{{json .Actions}}`

const riskSystem = `You assess the risks in planned meeting actions: calendar conflicts and double bookings,
compressed timelines, resource conflicts, broken dependencies and external blockers.

Return an object of this shape:
{
  "risks": [
    {"description": "...", "severity": "critical|high|medium|low", "affected_actions": [0], "mitigation": "...", "owner": "..."}
  ],
  "overall_risk_level": "medium",
  "critical_blockers": ["..."],
  "recommendations": ["..."]
}`

const riskUser = `Planned actions (affected_actions refers to positions in this list):
{{json .Actions}}

Existing calendar:
{{range .Events}}- {{.Title}} {{.Start.Format "2006-01-02 15:04"}} to {{.End.Format "15:04"}}
{{else}}(none)
{{end}}`

const summarySystem = `You are a meeting assistant. Write a structured markdown summary with exactly these sections:

## Meeting Overview
Two or three sentences about the meeting.

## Key Topics Discussed
- one bullet per topic

## Scheduled Events
- **Event Title**: date, attendees, duration

## Action Items
- [ ] Specific action item (assigned to: name)

Be specific and concise. Start directly with the "## Meeting Overview" header.`

const summaryUser = `Transcript preview:
{{truncate 500 .Transcript}}

Actions taken:
{{range $i, $a := .Actions}}- {{$a.Type}}{{with $a.Title}} "{{.}}"{{end}}: {{$a.Reasoning}}
{{else}}(none)
{{end}}
Results:
{{range .Results}}- [{{.Status}}] {{.Message}}
{{else}}(none)
{{end}}`

const nextStepsSystem = `You are a meeting facilitator. Suggest three or four proactive next steps for the team:
preparation for scheduled meetings, follow-ups that need attention, stakeholder communication and materials to prepare.

Answer with a numbered list of short, specific steps.`

const nextStepsUser = `Meeting summary:
{{.Summary}}

Scheduled events: {{len .Actions}}`
