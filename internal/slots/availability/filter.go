package availability

import (
	"time"

	"licensedesk/pkg/model"
)

// FilterValid keeps the items still bookable at now, preserving order.
func FilterValid[T Bookable](items []T, now time.Time, loc *time.Location) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !item.Open() || item.Remaining() <= 0 {
			continue
		}
		end, err := item.End(loc)
		if err != nil || !now.Before(end) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Candidate adapts a slot to Bookable.
type Candidate struct {
	*model.Slot
}

func (c Candidate) Open() bool {
	return c.IsAvailable
}

func (c Candidate) End(loc *time.Location) (time.Time, error) {
	return EffectiveEnd(c.Slot, loc)
}

func (c Candidate) Remaining() int {
	return CapacityRemaining(c.Slot)
}

func Candidates(slots []*model.Slot) []Candidate {
	out := make([]Candidate, len(slots))
	for i, s := range slots {
		out[i] = Candidate{Slot: s}
	}
	return out
}

// ValidSlots is FilterValid over plain slots.
func ValidSlots(slots []*model.Slot, now time.Time, loc *time.Location) []*model.Slot {
	valid := FilterValid(Candidates(slots), now, loc)
	out := make([]*model.Slot, len(valid))
	for i, c := range valid {
		out[i] = c.Slot
	}
	return out
}
