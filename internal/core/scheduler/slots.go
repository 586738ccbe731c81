package scheduler

import (
	"fmt"
	"time"

	"github.com/agenthands/minutes/internal/core/model"
)

// slotBook holds discovered slots keyed by date and duration. A slot is
// handed out at most once.
type slotBook struct {
	byKey map[string][]model.TimeSlot
}

func newSlotBook() *slotBook {
	return &slotBook{byKey: make(map[string][]model.TimeSlot)}
}

func slotKey(date string, d time.Duration) string {
	return fmt.Sprintf("%s|%d", date, int(d/time.Minute))
}

// add files slots under their date. A start already on file for that date
// and duration is skipped, so overlapping searches cannot book it twice.
func (b *slotBook) add(slots []model.TimeSlot, d time.Duration, loc *time.Location) {
	for _, sl := range slots {
		k := slotKey(sl.Start.In(loc).Format(model.DateLayout), d)
		if b.has(k, sl.Start) {
			continue
		}
		b.byKey[k] = append(b.byKey[k], sl)
	}
}

func (b *slotBook) has(k string, start time.Time) bool {
	for _, sl := range b.byKey[k] {
		if sl.Start.Equal(start) {
			return true
		}
	}
	return false
}

func (b *slotBook) take(date string, d time.Duration) (model.TimeSlot, bool) {
	k := slotKey(date, d)
	q := b.byKey[k]
	if len(q) == 0 {
		return model.TimeSlot{}, false
	}
	b.byKey[k] = q[1:]
	return q[0], true
}
