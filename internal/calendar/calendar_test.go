package calendar

import (
	"context"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/minutes/internal/core/model"
)

func newYork(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func at(loc *time.Location, day, hour, min int) time.Time {
	// November 2025: the 3rd is a Monday.
	return time.Date(2025, time.November, day, hour, min, 0, 0, loc)
}

func query(loc *time.Location, day, days int, d time.Duration) SlotQuery {
	return SlotQuery{
		From:            at(loc, day, 0, 0),
		Days:            days,
		Duration:        d,
		WorkStart:       9,
		WorkEnd:         17,
		ExcludeWeekends: true,
	}
}

func TestFreeSlotsGaps(t *testing.T) {
	loc := newYork(t)
	busy := []model.CalendarEvent{
		{ID: "b", Start: at(loc, 3, 13, 0), End: at(loc, 3, 16, 30)},
		{ID: "a", Start: at(loc, 3, 9, 0), End: at(loc, 3, 12, 30)},
	}

	slots := FreeSlots(busy, query(loc, 3, 2, 30*time.Minute), loc)
	require.Len(t, slots, 3)
	assert.Equal(t, at(loc, 3, 12, 30), slots[0].Start)
	assert.Equal(t, at(loc, 3, 13, 0), slots[0].End)
	assert.Equal(t, at(loc, 3, 16, 30), slots[1].Start)
	assert.Equal(t, at(loc, 4, 9, 0), slots[2].Start, "second day is free from the start of working hours")
}

func TestFreeSlotsNoRoom(t *testing.T) {
	loc := newYork(t)
	busy := []model.CalendarEvent{{ID: "all", Start: at(loc, 3, 8, 0), End: at(loc, 3, 18, 0)}}

	assert.Empty(t, FreeSlots(busy, query(loc, 3, 1, time.Hour), loc))
}

func TestFreeSlotsSkipsWeekends(t *testing.T) {
	loc := newYork(t)
	slots := FreeSlots(nil, query(loc, 8, 3, time.Hour), loc) // Sat, Sun, Mon
	require.Len(t, slots, 1)
	assert.Equal(t, time.Monday, slots[0].Start.Weekday())

	q := query(loc, 8, 1, time.Hour)
	q.ExcludeWeekends = false
	assert.Len(t, FreeSlots(nil, q, loc), 1)
}

func TestFreeSlotsNotBeforeAndMax(t *testing.T) {
	loc := newYork(t)
	q := query(loc, 3, 10, time.Hour)
	q.NotBefore = at(loc, 3, 16, 30)
	q.Max = 2

	slots := FreeSlots(nil, q, loc)
	require.Len(t, slots, 2)
	assert.Equal(t, at(loc, 4, 9, 0), slots[0].Start, "16:30 leaves no hour on the 3rd")
	assert.Equal(t, at(loc, 5, 9, 0), slots[1].Start)
}

func TestMemoryCalendar(t *testing.T) {
	loc := newYork(t)
	ctx := context.Background()
	m := NewMemory(loc, model.CalendarEvent{ID: "seed", Title: "Standup", Start: at(loc, 3, 9, 0), End: at(loc, 3, 10, 0)})
	m.NewID = func() string { return "evt-1" }

	id, err := m.CreateEvent(ctx, NewEvent{Title: "Sync", Start: at(loc, 3, 14, 0), End: at(loc, 3, 14, 30), Attendees: []string{"a@x.io"}})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)

	_, err = m.CreateEvent(ctx, NewEvent{Title: "Bad", Start: at(loc, 3, 14, 0), End: at(loc, 3, 14, 0)})
	assert.Error(t, err)

	events, err := m.ListEvents(ctx, at(loc, 3, 0, 0), at(loc, 4, 0, 0), 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "seed", events[0].ID)

	require.NoError(t, m.AddNotes(ctx, "seed", "Discussed Q4"))
	ev, _ := m.Get("seed")
	assert.Equal(t, "Notes:\nDiscussed Q4", ev.Description)

	title := "Daily Standup"
	require.NoError(t, m.UpdateEvent(ctx, "seed", Update{Title: &title}))
	ev, _ = m.Get("seed")
	assert.Equal(t, title, ev.Title)

	assert.Error(t, m.AddNotes(ctx, "missing", "x"))
	assert.Error(t, m.UpdateEvent(ctx, "missing", Update{}))

	slots, err := m.FindSlots(ctx, query(loc, 3, 1, time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, at(loc, 3, 10, 0), slots[0].Start)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.ListEvents(cancelled, at(loc, 3, 0, 0), at(loc, 4, 0, 0), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//minutes//test//EN
BEGIN:VEVENT
UID:roadmap-1
DTSTAMP:20251101T120000Z
SUMMARY:Q4 Roadmap Review
DESCRIPTION:Quarterly planning
DTSTART:20251103T150000Z
DTEND:20251103T160000Z
ATTENDEE:mailto:alice@corp.io
END:VEVENT
BEGIN:VEVENT
UID:cancelled-1
DTSTAMP:20251101T120000Z
SUMMARY:Old sync
STATUS:CANCELLED
DTSTART:20251104T150000Z
DTEND:20251104T160000Z
END:VEVENT
END:VCALENDAR
`

func TestParseICS(t *testing.T) {
	loc := newYork(t)
	events, err := ParseICS(strings.NewReader(strings.ReplaceAll(sampleICS, "\n", "\r\n")), loc)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "roadmap-1", ev.ID)
	assert.Equal(t, "Q4 Roadmap Review", ev.Title)
	assert.Equal(t, []string{"alice@corp.io"}, ev.Attendees)
	assert.True(t, ev.Start.Equal(at(loc, 3, 10, 0)))
	assert.Equal(t, time.Hour, ev.End.Sub(ev.Start))
}

func TestEditLink(t *testing.T) {
	assert.Equal(t, "https://calendar.google.com/calendar/u/0/r/eventedit/abc", EditLink("abc"))
	assert.Empty(t, EditLink(""))
}
