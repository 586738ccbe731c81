// Package calendar holds the calendar collaborators used by the workflow:
// a Google Calendar client and an in-memory calendar for development.
package calendar

import (
	"context"
	"sort"
	"time"

	"github.com/agenthands/minutes/internal/core/model"
)

type Reader interface {
	ListEvents(ctx context.Context, from, to time.Time, max int) ([]model.CalendarEvent, error)
}

type Writer interface {
	CreateEvent(ctx context.Context, ev NewEvent) (string, error)
	AddNotes(ctx context.Context, eventID, notes string) error
	UpdateEvent(ctx context.Context, eventID string, u Update) error
	FindSlots(ctx context.Context, q SlotQuery) ([]model.TimeSlot, error)
}

type Calendar interface {
	Reader
	Writer
}

type NewEvent struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// Update carries the fields to change; nil fields are left alone.
type Update struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
}

// SlotQuery describes a search for free time.
type SlotQuery struct {
	// From is the first day searched; only its date in the query location
	// matters.
	From     time.Time
	Days     int
	Duration time.Duration
	// WorkStart and WorkEnd are hours of the day.
	WorkStart       int
	WorkEnd         int
	ExcludeWeekends bool
	// NotBefore clips slots on the current day. Zero means no clipping.
	NotBefore time.Time
	Max       int
}

const defaultMaxSlots = 5

// NotesSeparator is placed between an event's description and appended notes.
const NotesSeparator = "\n\nNotes:\n"

// EditLink is the Google Calendar page for editing an event.
func EditLink(eventID string) string {
	if eventID == "" {
		return ""
	}
	return "https://calendar.google.com/calendar/u/0/r/eventedit/" + eventID
}

// FreeSlots finds gaps of at least q.Duration inside working hours, one slot
// per gap, starting at the beginning of the gap. Days are evaluated in loc.
func FreeSlots(busy []model.CalendarEvent, q SlotQuery, loc *time.Location) []model.TimeSlot {
	if loc == nil {
		loc = time.UTC
	}
	days := q.Days
	if days <= 0 {
		days = 1
	}
	maxSlots := q.Max
	if maxSlots <= 0 {
		maxSlots = defaultMaxSlots
	}

	sorted := append([]model.CalendarEvent(nil), busy...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	first := q.From.In(loc)
	var out []model.TimeSlot
	for d := 0; d < days; d++ {
		day := time.Date(first.Year(), first.Month(), first.Day()+d, 0, 0, 0, 0, loc)
		if q.ExcludeWeekends && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			continue
		}
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), q.WorkStart, 0, 0, 0, loc)
		dayEnd := time.Date(day.Year(), day.Month(), day.Day(), q.WorkEnd, 0, 0, 0, loc)

		cursor := dayStart
		if q.NotBefore.After(cursor) {
			cursor = q.NotBefore
		}
		for _, ev := range sorted {
			if !ev.End.After(dayStart) || !ev.Start.Before(dayEnd) {
				continue
			}
			if ev.Start.Sub(cursor) >= q.Duration {
				out = append(out, model.TimeSlot{Start: cursor, End: cursor.Add(q.Duration)})
				if len(out) >= maxSlots {
					return out
				}
			}
			if ev.End.After(cursor) {
				cursor = ev.End
			}
		}
		if dayEnd.Sub(cursor) >= q.Duration {
			out = append(out, model.TimeSlot{Start: cursor, End: cursor.Add(q.Duration)})
			if len(out) >= maxSlots {
				return out
			}
		}
	}
	return out
}

// span returns the [from, to) range covered by a slot query.
func span(q SlotQuery, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	days := q.Days
	if days <= 0 {
		days = 1
	}
	f := q.From.In(loc)
	from := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, days)
}
