package calendar

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/agenthands/minutes/internal/core/model"
)

// Memory is an in-process calendar. It is used for local runs and tests.
type Memory struct {
	mu     sync.Mutex
	events map[string]model.CalendarEvent
	loc    *time.Location
	// NewID generates event ids; overridable for deterministic tests.
	NewID func() string
}

func NewMemory(loc *time.Location, seed ...model.CalendarEvent) *Memory {
	if loc == nil {
		loc = time.UTC
	}
	m := &Memory{
		events: make(map[string]model.CalendarEvent),
		loc:    loc,
		NewID:  func() string { return uuid.New().String() },
	}
	for _, ev := range seed {
		m.events[ev.ID] = ev
	}
	return m
}

// NewMemoryFromICS seeds a Memory calendar from an iCalendar file.
func NewMemoryFromICS(path string, loc *time.Location) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar file '%s': %w", path, err)
	}
	defer f.Close()

	events, err := ParseICS(f, loc)
	if err != nil {
		return nil, err
	}
	return NewMemory(loc, events...), nil
}

// ParseICS decodes VEVENT components. Events without a UID get a
// deterministic id from their start time and title.
func ParseICS(r io.Reader, loc *time.Location) ([]model.CalendarEvent, error) {
	if loc == nil {
		loc = time.UTC
	}
	dec := ical.NewDecoder(r)
	var out []model.CalendarEvent
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}
		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			ev, ok := parseEvent(comp, loc)
			if ok {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

func parseEvent(comp *ical.Component, loc *time.Location) (model.CalendarEvent, bool) {
	var ev model.CalendarEvent
	if p := comp.Props.Get(ical.PropUID); p != nil {
		ev.ID = p.Value
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		ev.Title = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		ev.Description = p.Value
	}
	if p := comp.Props.Get(ical.PropStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return ev, false
	}

	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return ev, false
	}
	t, err := start.DateTime(loc)
	if err != nil {
		return ev, false
	}
	ev.Start = t
	if end := comp.Props.Get(ical.PropDateTimeEnd); end != nil {
		if t, err := end.DateTime(loc); err == nil {
			ev.End = t
		}
	}
	if ev.End.IsZero() {
		ev.End = ev.Start.Add(time.Hour)
	}

	for _, p := range comp.Props[ical.PropAttendee] {
		email := strings.TrimPrefix(strings.TrimPrefix(p.Value, "mailto:"), "MAILTO:")
		if email != "" {
			ev.Attendees = append(ev.Attendees, email)
		}
	}

	if ev.ID == "" {
		ev.ID = ev.Start.Format(time.RFC3339) + "-" + ev.Title
	}
	return ev, true
}

func (m *Memory) ListEvents(ctx context.Context, from, to time.Time, max int) ([]model.CalendarEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.CalendarEvent
	for _, ev := range m.events {
		if ev.End.After(from) && ev.Start.Before(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (m *Memory) CreateEvent(ctx context.Context, ev NewEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ev.End.After(ev.Start) {
		return "", fmt.Errorf("event %q ends before it starts", ev.Title)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.NewID()
	m.events[id] = model.CalendarEvent{
		ID:          id,
		Title:       ev.Title,
		Start:       ev.Start,
		End:         ev.End,
		Description: ev.Description,
		Attendees:   append([]string(nil), ev.Attendees...),
	}
	return id, nil
}

func (m *Memory) AddNotes(ctx context.Context, eventID, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}
	ev.Description = strings.TrimSpace(ev.Description + NotesSeparator + notes)
	m.events[eventID] = ev
	return nil
}

func (m *Memory) UpdateEvent(ctx context.Context, eventID string, u Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}
	if u.Title != nil {
		ev.Title = *u.Title
	}
	if u.Description != nil {
		ev.Description = *u.Description
	}
	if u.Start != nil {
		ev.Start = *u.Start
	}
	if u.End != nil {
		ev.End = *u.End
	}
	m.events[eventID] = ev
	return nil
}

func (m *Memory) FindSlots(ctx context.Context, q SlotQuery) ([]model.TimeSlot, error) {
	from, to := span(q, m.loc)
	busy, err := m.ListEvents(ctx, from, to, 0)
	if err != nil {
		return nil, err
	}
	return FreeSlots(busy, q, m.loc), nil
}

// Get returns a stored event.
func (m *Memory) Get(eventID string) (model.CalendarEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	return ev, ok
}
