package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/agenthands/minutes/internal/core/extract"
	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/llm"
	"github.com/agenthands/minutes/internal/metrics"
)

func (p *Pipeline) data(s model.WorkflowState) promptData {
	now := p.opts.Now().In(p.opts.Location)
	d := promptData{
		Today:      now.Format(model.DateLayout),
		Tomorrow:   now.AddDate(0, 0, 1).Format(model.DateLayout),
		Timezone:   p.opts.Location.String(),
		Transcript: s.Transcript,
		Analysis:   s.Analysis,
		Research:   s.Research,
		Events:     s.CalendarEvents,
		Related:    s.RelatedMeetings,
		Actions:    s.PlannedActions,
		Results:    s.ExecutionResults,
	}
	if s.Summary != nil {
		d.Summary = *s.Summary
	}
	return d
}

// generate renders the operation's prompt and performs one LLM call under
// the per-call timeout. It records an api_call entry on success.
func (p *Pipeline) generate(ctx context.Context, rec *Recorder, op string, data promptData) (string, error) {
	system, user, jsonOut, err := p.prompts.render(op, data)
	if err != nil {
		return "", err
	}
	rec.Log(model.LogInput, fmt.Sprintf("Prompt prepared for %s", op),
		map[string]interface{}{"operation": op, "prompt_chars": len(system) + len(user)})

	callCtx, cancel := context.WithTimeout(ctx, p.opts.LLMTimeout)
	defer cancel()

	resp, err := p.deps.LLM.Generate(callCtx, llm.Request{
		Operation:   op,
		System:      system,
		Prompt:      user,
		Temperature: p.opts.Temperature,
		TopP:        p.opts.TopP,
		MaxTokens:   p.opts.MaxTokens,
		JSON:        jsonOut,
	})
	if err != nil {
		metrics.RecordLLMCallLatency(op, "error", 0)
		return "", &model.CollaboratorError{Service: "llm", Op: op, Err: err}
	}
	metrics.RecordLLMCallLatency(op, "ok", resp.Latency)
	rec.Log(model.LogAPICall, fmt.Sprintf("LLM %s call completed", op), map[string]interface{}{
		"model":             resp.Model,
		"latency_ms":        resp.Latency.Milliseconds(),
		"prompt_tokens":     resp.PromptTokens,
		"completion_tokens": resp.CompletionTokens,
	})
	return resp.Text, nil
}

func recordReasoning(rec *Recorder, reasoning string) {
	if reasoning != "" {
		rec.Log(model.LogThinking, extract.Truncate(reasoning, extract.MaxReasoningLen), nil)
	}
}

// askJSON performs the LLM micro-protocol for operations with a structured
// answer: call, log reasoning, extract and decode into T.
func askJSON[T any](ctx context.Context, p *Pipeline, rec *Recorder, op string, data promptData) (T, error) {
	var zero T
	text, err := p.generate(ctx, rec, op, data)
	if err != nil {
		return zero, err
	}
	out, reasoning, err := extract.Decode[T](text)
	recordReasoning(rec, reasoning)
	if err != nil {
		return zero, err
	}
	return out, nil
}

// askText is askJSON for free-form answers; reasoning is stripped.
func (p *Pipeline) askText(ctx context.Context, rec *Recorder, op string, data promptData) (string, error) {
	text, err := p.generate(ctx, rec, op, data)
	if err != nil {
		return "", err
	}
	clean, reasoning := extract.StripReasoning(text)
	recordReasoning(rec, reasoning)
	return clean, nil
}

// list decodes either a JSON array or a single value wrapped as a one element
// list. null decodes to an empty list.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*l = nil
		return nil
	case len(b) > 0 && b[0] == '[':
		var xs []T
		if err := json.Unmarshal(b, &xs); err != nil {
			return err
		}
		*l = xs
		return nil
	}
	var x T
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	*l = list[T]{x}
	return nil
}

// decisionReply accepts a bare array of decisions as well as the full report.
type decisionReply model.DecisionReport

func (r *decisionReply) UnmarshalJSON(b []byte) error {
	if b = bytes.TrimSpace(b); len(b) > 0 && b[0] == '[' {
		var ds []model.Decision
		if err := json.Unmarshal(b, &ds); err != nil {
			return err
		}
		*r = decisionReply{Decisions: ds, OverallAssessment: "Analysis complete"}
		return nil
	}
	return json.Unmarshal(b, (*model.DecisionReport)(r))
}

// riskReply accepts a bare array of risks as well as the full report.
type riskReply model.RiskReport

func (r *riskReply) UnmarshalJSON(b []byte) error {
	if b = bytes.TrimSpace(b); len(b) > 0 && b[0] == '[' {
		var rs []model.Risk
		if err := json.Unmarshal(b, &rs); err != nil {
			return err
		}
		*r = riskReply{Risks: rs}
		return nil
	}
	return json.Unmarshal(b, (*model.RiskReport)(r))
}
