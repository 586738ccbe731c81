// Package summary turns a finished run into the summary email.
package summary

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/agenthands/minutes/internal/calendar"
	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/mail"
)

// MaxNextSteps caps the suggested next steps kept from the model.
const MaxNextSteps = 4

type Summarizer struct {
	loc  *time.Location
	md   goldmark.Markdown
	tmpl *template.Template
	now  func() time.Time
}

func NewSummarizer(loc *time.Location) *Summarizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Summarizer{
		loc:  loc,
		md:   goldmark.New(goldmark.WithExtensions(extension.GFM)),
		tmpl: template.Must(template.New("email").Funcs(template.FuncMap{"label": actionLabel}).Parse(emailTemplate)),
		now:  time.Now,
	}
}

type resultView struct {
	model.ExecutionResult
	Link string
}

type emailData struct {
	Title     string
	Generated string
	Summary   template.HTML
	Actions   []model.MeetingAction
	Results   []resultView
	NextSteps []string
}

// Subject is the email subject for a run.
func (s *Summarizer) Subject(state model.WorkflowState) string {
	stamp := s.now().In(s.loc).Format("2006-01-02 03:04 PM MST")
	if state.Analysis != nil && state.Analysis.Title != "" {
		return fmt.Sprintf("Meeting Summary: %s (%s)", state.Analysis.Title, stamp)
	}
	return "Meeting Summary: " + stamp
}

// HTML renders the markdown summary together with the planned actions,
// execution results and next steps.
func (s *Summarizer) HTML(state model.WorkflowState, summary string, nextSteps []string) (string, error) {
	var md bytes.Buffer
	if err := s.md.Convert([]byte(summary), &md); err != nil {
		return "", fmt.Errorf("failed to render summary markdown: %w", err)
	}

	data := emailData{
		Generated: s.now().In(s.loc).Format("January 2, 2006 at 03:04 PM MST"),
		Summary:   template.HTML(md.String()),
		Actions:   state.PlannedActions,
		NextSteps: nextSteps,
	}
	if state.Analysis != nil {
		data.Title = state.Analysis.Title
	}
	for _, r := range state.ExecutionResults {
		data.Results = append(data.Results, resultView{ExecutionResult: r, Link: calendar.EditLink(r.EventID)})
	}

	var out bytes.Buffer
	if err := s.tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("failed to render summary email: %w", err)
	}
	return out.String(), nil
}

// Compose builds the summary email for recipients.
func (s *Summarizer) Compose(state model.WorkflowState, summary string, nextSteps []string, recipients []string) (mail.Message, error) {
	html, err := s.HTML(state, summary, nextSteps)
	if err != nil {
		return mail.Message{}, err
	}
	text := summary
	if len(nextSteps) > 0 {
		text += "\n\nSuggested next steps:\n- " + strings.Join(nextSteps, "\n- ")
	}
	return mail.Message{
		To:      recipients,
		Subject: s.Subject(state),
		Text:    text,
		HTML:    html,
	}, nil
}

// ParseSteps reads a numbered or bulleted list into at most max steps.
// Headings and blank lines are skipped.
func ParseSteps(text string, max int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimLeft(line, "-*• ")
		if i := strings.IndexAny(line, ".)"); i > 0 && i <= 3 && isDigits(line[:i]) {
			line = strings.TrimSpace(line[i+1:])
		}
		if line == "" {
			continue
		}
		out = append(out, line)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func actionLabel(t model.ActionType) string {
	switch t {
	case model.ActionAddNotes:
		return "Add Notes"
	case model.ActionCreateEvent:
		return "Create Event"
	case model.ActionFindSlot:
		return "Find Slot"
	case model.ActionUpdateEvent:
		return "Update Event"
	}
	return string(t)
}

const emailTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px;">
<div style="background: #667eea; color: white; padding: 24px; border-radius: 8px;">
<h1 style="margin: 0;">Meeting Summary{{with .Title}}: {{.}}{{end}}</h1>
<p style="margin: 8px 0 0 0;">{{.Generated}}</p>
</div>
<div class="summary-content">{{.Summary}}</div>
{{if .Actions}}
<h2>Actions Planned</h2>
<table style="width: 100%; border-collapse: collapse;">
<thead><tr><th>Action</th><th>Details</th><th>Reasoning</th></tr></thead>
<tbody>
{{range .Actions}}<tr><td>{{label .Type}}</td><td>{{if .Title}}{{.Title}}{{else}}N/A{{end}}</td><td>{{.Reasoning}}</td></tr>
{{end}}</tbody>
</table>
{{end}}
{{if .Results}}
<h2>Execution Results</h2>
{{range .Results}}<div class="result result-{{.Status}}">
<strong>{{.Message}}</strong>
{{with .Link}}<br/><a href="{{.}}">Edit in Calendar</a>{{end}}
{{with .EventID}}<div style="font-size: 11px; color: #999;">ID: {{.}}</div>{{end}}
</div>
{{end}}
{{end}}
{{if .NextSteps}}
<h2>Suggested Next Steps</h2>
<ol>
{{range .NextSteps}}<li>{{.}}</li>
{{end}}</ol>
{{end}}
</body>
</html>
`
