// Package archive keeps a searchable record of processed meetings in
// Memgraph: the meeting itself, who attended, what was discussed and which
// calendar events came out of it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/agenthands/minutes/internal/core/attendee"
	"github.com/agenthands/minutes/internal/core/extract"
	"github.com/agenthands/minutes/internal/core/model"
	"github.com/agenthands/minutes/internal/driver"
)

const (
	maxTranscript = 4000
	defaultLimit  = 10
)

type Meeting struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time `json:"created_at"`
	Participants []string  `json:"participants"`
}

type Archive struct {
	Driver   driver.GraphDriver
	resolver *attendee.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

func New(d driver.GraphDriver, resolver *attendee.Resolver, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{Driver: d, resolver: resolver, logger: logger, now: time.Now}
}

// Record stores a successfully completed run.
func (a *Archive) Record(ctx context.Context, s model.WorkflowState) error {
	if s.Error != nil {
		return errors.New("refusing to archive a failed run")
	}

	var title string
	if s.Analysis != nil {
		title = s.Analysis.Title
	}
	if title == "" {
		title = "Untitled meeting"
	}
	var summary string
	if s.Summary != nil {
		summary = *s.Summary
	}

	_, err := a.Driver.ExecuteQuery(ctx, driver.SaveMeetingQuery, map[string]interface{}{
		"uuid":         s.RunID,
		"title":        title,
		"summary":      summary,
		"transcript":   extract.Truncate(s.Transcript, maxTranscript),
		"created_at":   a.now().UTC(),
		"action_count": len(s.PlannedActions),
	})
	if err != nil {
		return fmt.Errorf("failed to save meeting: %w", err)
	}

	if s.Analysis != nil {
		for _, name := range s.Analysis.Participants {
			if strings.TrimSpace(name) == "" {
				continue
			}
			var email string
			if a.resolver != nil {
				email = a.resolver.Resolve(name).Email
			}
			if _, err := a.Driver.ExecuteQuery(ctx, driver.SaveAttendeeQuery, map[string]interface{}{
				"meeting_uuid": s.RunID,
				"name":         name,
				"email":        email,
			}); err != nil {
				return fmt.Errorf("failed to save attendee %s: %w", name, err)
			}
		}
		for _, topic := range s.Analysis.Topics {
			if _, err := a.Driver.ExecuteQuery(ctx, driver.SaveTopicQuery, map[string]interface{}{
				"meeting_uuid": s.RunID,
				"name":         strings.ToLower(strings.TrimSpace(topic)),
			}); err != nil {
				return fmt.Errorf("failed to save topic %s: %w", topic, err)
			}
		}
	}

	for _, r := range s.ExecutionResults {
		if r.EventID == "" || r.Status != model.StatusSuccess {
			continue
		}
		var eventTitle string
		if r.ActionIndex >= 0 && r.ActionIndex < len(s.PlannedActions) {
			eventTitle = s.PlannedActions[r.ActionIndex].Title
		}
		if _, err := a.Driver.ExecuteQuery(ctx, driver.SaveScheduledEventQuery, map[string]interface{}{
			"meeting_uuid": s.RunID,
			"event_id":     r.EventID,
			"title":        eventTitle,
			"action_type":  string(r.ActionType),
			"status":       string(r.Status),
		}); err != nil {
			return fmt.Errorf("failed to save event %s: %w", r.EventID, err)
		}
	}

	a.logger.Info("meeting archived", zap.String("run_id", s.RunID), zap.String("title", title))
	return nil
}

// Recent lists the latest archived meetings.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Meeting, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	res, err := a.Driver.ExecuteQuery(ctx, driver.GetRecentMeetingsQuery, map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, err
	}
	return meetings(res), nil
}

// Search finds meetings whose title, summary or topics contain query.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]Meeting, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return a.Recent(ctx, limit)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	res, err := a.Driver.ExecuteQuery(ctx, driver.SearchMeetingsQuery, map[string]interface{}{
		"query": query,
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}
	return meetings(res), nil
}

func meetings(res neo4j.EagerResult) []Meeting {
	out := make([]Meeting, 0, len(res.Records))
	for _, rec := range res.Records {
		uuid, _ := rec.Get("uuid")
		title, _ := rec.Get("title")
		summary, _ := rec.Get("summary")
		created, _ := rec.Get("created_at")
		participants, _ := rec.Get("participants")

		m := Meeting{
			ID:        asString(uuid),
			Title:     asString(title),
			Summary:   asString(summary),
			CreatedAt: asTime(created),
		}
		if list, ok := participants.([]interface{}); ok {
			for _, p := range list {
				if s := asString(p); s != "" {
					m.Participants = append(m.Participants, s)
				}
			}
		}
		out = append(out, m)
	}
	return out
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case neo4j.LocalDateTime:
		return t.Time()
	case string:
		parsed, _ := time.Parse(time.RFC3339, t)
		return parsed
	}
	return time.Time{}
}
