package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agenthands/minutes/internal/core/extract"
	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/core/summary"
)

func (p *Pipeline) buildStages() []Stage {
	writes := func(f ...model.Field) model.Ownership { return model.Ownership{Writes: f} }
	return []Stage{
		{StageAnalyze, "Analyzing meeting transcript", writes(model.FieldAnalysis), p.analyze},
		{StageResearch, "Extracting entities and gathering context", writes(model.FieldResearch), p.research},
		{StageCalendar, "Fetching calendar events", writes(model.FieldCalendarEvents), p.fetchCalendar},
		{StageRelated, "Finding related meetings", writes(model.FieldRelatedMeetings), p.findRelated},
		{StagePlan, "Planning calendar actions", writes(model.FieldPlannedActions), p.plan},
		{StageDecision, "Analyzing options and providing recommendations",
			model.Ownership{Writes: []model.Field{model.FieldDecisions}, Revises: []model.Field{model.FieldPlannedActions}}, p.decide},
		{StageRisk, "Evaluating risks and potential issues",
			model.Ownership{Writes: []model.Field{model.FieldRisks}, Revises: []model.Field{model.FieldPlannedActions}}, p.assessRisk},
		{StageExecute, "Executing planned actions", writes(model.FieldExecutionResults), p.execute},
		{StageSummary, "Generating meeting summary and sending notifications", writes(model.FieldSummary, model.FieldNextSteps), p.summarize},
	}
}

func (p *Pipeline) analyze(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error) {
	rec.Log(model.LogProcessing, fmt.Sprintf("Analyzing transcript (%d characters)", len(s.Transcript)), nil)
	a, err := askJSON[model.Analysis](ctx, p, rec, opAnalyze, p.data(s))
	if err != nil {
		return nil, err
	}
	rec.Log(model.LogOutput, fmt.Sprintf("Identified %d participants, %d topics and %d action items",
		len(a.Participants), len(a.Topics), len(a.ActionItems)), map[string]interface{}{
		"title":        a.Title,
		"participants": a.Participants,
	})
	return new(model.Patch).SetAnalysis(a), nil
}

func (p *Pipeline) research(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error) {
	r, err := askJSON[model.Research](ctx, p, rec, opResearch, p.data(s))
	if err != nil {
		return nil, err
	}
	rec.Log(model.LogOutput, fmt.Sprintf("Identified %d entities", len(r.Entities)), nil)
	return new(model.Patch).SetResearch(r), nil
}

func (p *Pipeline) fetchCalendar(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error) {
	now := p.opts.Now().In(p.opts.Location)
	from, to := now.AddDate(0, 0, -p.opts.DaysBack), now.AddDate(0, 0, p.opts.DaysAhead)
	rec.Log(model.LogInput, fmt.Sprintf("Reading calendar from %s to %s", from.Format(model.DateLayout), to.Format(model.DateLayout)), nil)

	callCtx, cancel := context.WithTimeout(ctx, p.opts.CalendarTimeout)
	defer cancel()
	events, err := p.deps.Calendar.ListEvents(callCtx, from, to, p.opts.MaxEvents)
	if err != nil {
		return nil, &model.CollaboratorError{Service: "calendar", Op: "list_events", Err: err}
	}
	rec.Log(model.LogOutput, fmt.Sprintf("Fetched %d calendar events", len(events)), nil)
	return new(model.Patch).SetCalendarEvents(events), nil
}

func (p *Pipeline) findRelated(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error) {
	if len(s.CalendarEvents) == 0 {
		rec.Log(model.LogProcessing, "No calendar events to compare against", nil)
		return new(model.Patch).SetRelatedMeetings(nil), nil
	}

	picks, err := askJSON[list[model.RelatedMeeting]](ctx, p, rec, opRelated, p.data(s))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.CalendarEvent, len(s.CalendarEvents))
	for _, ev := range s.CalendarEvents {
		byID[ev.ID] = ev
	}
	var related []model.CalendarEvent
	seen := make(map[string]bool)
	for _, pick := range picks {
		ev, ok := byID[pick.EventID]
		if !ok {
			rec.Log(model.LogProcessing, "Ignoring unknown event id "+pick.EventID, nil)
			continue
		}
		if seen[ev.ID] {
			continue
		}
		seen[ev.ID] = true
		related = append(related, ev)
	}
	rec.Log(model.LogOutput, fmt.Sprintf("Found %d related meetings", len(related)), nil)
	return new(model.Patch).SetRelatedMeetings(related), nil
}

func (p *Pipeline) plan(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error) {
	raw, err := askJSON[list[model.MeetingAction]](ctx, p, rec, opPlan, p.data(s))
	if err != nil {
		return nil, err
	}

	actions := make([]model.MeetingAction, 0, len(raw))
	for i, a := range raw {
		t, err := model.ParseActionType(string(a.Type))
		if err != nil {
			return nil, &extract.Error{Reason: "unknown action type", Text: string(a.Type), Err: err}
		}
		a.Type = t
		if a.DurationMinutes <= 0 {
			a.DurationMinutes = model.DefaultDurationMinutes
		}
		if err := a.Validate(); err != nil {
			var ve *model.ValidationError
			if errors.As(err, &ve) {
				ve.Index = i
			}
			return nil, err
		}
		actions = append(actions, a)
		rec.Log(model.LogOutput, describeAction(i, a), nil)
	}
	rec.Log(model.LogProcessing, fmt.Sprintf("Planned %d actions", len(actions)), nil)
	return new(model.Patch).SetPlannedActions(actions), nil
}

func describeAction(i int, a model.MeetingAction) string {
	switch a.Type {
	case model.ActionCreateEvent:
		return fmt.Sprintf("#%d %s %q on %s (%d min)", i, a.Type, a.Title, a.Date, a.DurationMinutes)
	case model.ActionFindSlot:
		return fmt.Sprintf("#%d %s %d min %s", i, a.Type, a.DurationMinutes, a.Date)
	default:
		return fmt.Sprintf("#%d %s on %s", i, a.Type, a.TargetEventID)
	}
}

func (p *Pipeline) decide(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error) {
	actions := append([]model.MeetingAction(nil), s.PlannedActions...)
	if len(actions) == 0 {
		rec.Log(model.LogProcessing, "No planned actions to evaluate", nil)
		return new(model.Patch).SetDecisions(model.DecisionReport{}).SetPlannedActions(actions), nil
	}
	rec.Log(model.LogInput, fmt.Sprintf("Evaluating %d planned actions", len(actions)), nil)

	reply, err := askJSON[decisionReply](ctx, p, rec, opDecision, p.data(s))
	if err != nil {
		return nil, err
	}
	report := model.DecisionReport(reply)
	for _, d := range report.Decisions {
		if d.ActionIndex < 0 || d.ActionIndex >= len(actions) {
			continue
		}
		actions[d.ActionIndex].Priority = strings.ToLower(strings.TrimSpace(d.Priority))
	}
	rec.Log(model.LogOutput, fmt.Sprintf("Decision analysis complete: %d actions evaluated", len(report.Decisions)),
		map[string]interface{}{"overall_assessment": report.OverallAssessment})
	return new(model.Patch).SetDecisions(report).SetPlannedActions(actions), nil
}

func (p *Pipeline) assessRisk(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error) {
	actions := append([]model.MeetingAction(nil), s.PlannedActions...)
	if len(actions) == 0 {
		rec.Log(model.LogProcessing, "No planned actions to assess", nil)
		return new(model.Patch).SetRisks(model.RiskReport{}).SetPlannedActions(actions), nil
	}
	rec.Log(model.LogInput, fmt.Sprintf("Assessing risks for %d planned actions", len(actions)), nil)

	reply, err := askJSON[riskReply](ctx, p, rec, opRisk, p.data(s))
	if err != nil {
		return nil, err
	}
	report := model.RiskReport(reply)
	for _, r := range report.Risks {
		sev := strings.ToLower(strings.TrimSpace(r.Severity))
		for _, idx := range r.AffectedActions {
			if idx < 0 || idx >= len(actions) {
				continue
			}
			if model.SeverityRank(sev) > model.SeverityRank(actions[idx].RiskLevel) {
				actions[idx].RiskLevel = sev
			}
		}
	}
	rec.Log(model.LogOutput, fmt.Sprintf("Identified %d risks", len(report.Risks)),
		map[string]interface{}{"overall_risk_level": report.OverallRiskLevel})
	return new(model.Patch).SetRisks(report).SetPlannedActions(actions), nil
}

func (p *Pipeline) execute(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error) {
	rec.Log(model.LogInput, fmt.Sprintf("Executing %d actions", len(s.PlannedActions)), nil)
	results, err := p.deps.Executor.Execute(ctx, s.PlannedActions)
	if err != nil {
		return nil, err
	}

	counts := map[model.ResultStatus]int{}
	for _, r := range results {
		counts[r.Status]++
		t := model.LogOutput
		if r.Status == model.StatusError {
			t = model.LogError
		}
		rec.Log(t, fmt.Sprintf("#%d %s: %s", r.ActionIndex, r.Status, r.Message), nil)
	}
	rec.Log(model.LogProcessing, fmt.Sprintf("%d succeeded, %d failed, %d warnings",
		counts[model.StatusSuccess], counts[model.StatusError], counts[model.StatusWarning]), nil)
	return new(model.Patch).AppendResults(results...), nil
}

func (p *Pipeline) summarize(ctx context.Context, s model.WorkflowState, rec *Recorder) (*model.Patch, error) {
	rec.Log(model.LogInput, fmt.Sprintf("Summarizing %d planned actions", len(s.PlannedActions)), nil)
	data := p.data(s)
	text, err := p.askText(ctx, rec, opSummary, data)
	if err != nil {
		return nil, err
	}

	data.Summary = text
	var steps []string
	if raw, err := p.askText(ctx, rec, opNextSteps, data); err != nil {
		rec.Log(model.LogError, "Next steps unavailable: "+err.Error(), nil)
	} else {
		steps = summary.ParseSteps(raw, summary.MaxNextSteps)
	}

	if err := p.send(ctx, s, text, steps, rec); err != nil {
		return nil, err
	}
	return new(model.Patch).SetSummary(text).SetNextSteps(steps), nil
}

func (p *Pipeline) send(ctx context.Context, s model.WorkflowState, text string, steps []string, rec *Recorder) error {
	if p.deps.Mail == nil || len(p.opts.Recipients) == 0 {
		rec.Log(model.LogProcessing, "No email recipients configured; summary email skipped", nil)
		return nil
	}
	msg, err := p.deps.Summarizer.Compose(s, text, steps, p.opts.Recipients)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.opts.MailTimeout)
	defer cancel()
	if err := p.deps.Mail.Send(callCtx, msg); err != nil {
		return &model.CollaboratorError{Service: "mail", Op: "send", Err: err}
	}
	rec.Log(model.LogOutput, fmt.Sprintf("Summary email sent to %d recipients", len(msg.To)),
		map[string]interface{}{"subject": msg.Subject})
	return nil
}
