package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/agenthands/minutes/internal/core/model"
)

// Google is a Calendar backed by the Google Calendar API.
type Google struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

func NewGoogle(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*Google, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Google{svc: svc, calendarID: calendarID, loc: loc}, nil
}

func (g *Google) ListEvents(ctx context.Context, from, to time.Time, max int) ([]model.CalendarEvent, error) {
	call := g.svc.Events.List(g.calendarID).
		Context(ctx).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	out := make([]model.CalendarEvent, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Status == "cancelled" {
			continue
		}
		ev := model.CalendarEvent{
			ID:          item.Id,
			Title:       item.Summary,
			Description: item.Description,
		}
		if ev.Title == "" {
			ev.Title = "No Title"
		}
		ev.Start = g.parseTime(item.Start)
		ev.End = g.parseTime(item.End)
		for _, a := range item.Attendees {
			if a.Email != "" {
				ev.Attendees = append(ev.Attendees, a.Email)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// parseTime reads a timed or all-day boundary.
func (g *Google) parseTime(dt *gcal.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t.In(g.loc)
		}
	}
	if dt.Date != "" {
		if t, err := time.ParseInLocation(model.DateLayout, dt.Date, g.loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (g *Google) eventTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.In(g.loc).Format(time.RFC3339), TimeZone: g.loc.String()}
}

func (g *Google) CreateEvent(ctx context.Context, ev NewEvent) (string, error) {
	body := &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Start:       g.eventTime(ev.Start),
		End:         g.eventTime(ev.End),
	}
	for _, email := range ev.Attendees {
		body.Attendees = append(body.Attendees, &gcal.EventAttendee{Email: email})
	}
	created, err := g.svc.Events.Insert(g.calendarID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	return created.Id, nil
}

func (g *Google) AddNotes(ctx context.Context, eventID, notes string) error {
	ev, err := g.svc.Events.Get(g.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get event %s: %w", eventID, err)
	}
	ev.Description = strings.TrimSpace(ev.Description + NotesSeparator + notes)
	if _, err := g.svc.Events.Update(g.calendarID, eventID, ev).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update event %s: %w", eventID, err)
	}
	return nil
}

func (g *Google) UpdateEvent(ctx context.Context, eventID string, u Update) error {
	ev, err := g.svc.Events.Get(g.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get event %s: %w", eventID, err)
	}
	if u.Title != nil {
		ev.Summary = *u.Title
	}
	if u.Description != nil {
		ev.Description = *u.Description
	}
	if u.Start != nil {
		ev.Start = g.eventTime(*u.Start)
	}
	if u.End != nil {
		ev.End = g.eventTime(*u.End)
	}
	if _, err := g.svc.Events.Update(g.calendarID, eventID, ev).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update event %s: %w", eventID, err)
	}
	return nil
}

func (g *Google) FindSlots(ctx context.Context, q SlotQuery) ([]model.TimeSlot, error) {
	from, to := span(q, g.loc)
	busy, err := g.ListEvents(ctx, from, to, 250)
	if err != nil {
		return nil, err
	}
	return FreeSlots(busy, q, g.loc), nil
}
