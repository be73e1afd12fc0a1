// Package availability decides whether a slot can still be booked at a given
// instant and how urgently it should be presented. Every function is pure and
// must be re-evaluated on each use since the answer depends on the clock.
package availability

import (
	"fmt"
	"time"

	"licensedesk/pkg/model"
)

const (
	DefaultSoonThreshold   = 24 * time.Hour
	DefaultUrgentThreshold = 2 * time.Hour
)

// Thresholds configures the classification bands. Urgent must be smaller
// than Soon.
type Thresholds struct {
	Soon   time.Duration
	Urgent time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{Soon: DefaultSoonThreshold, Urgent: DefaultUrgentThreshold}
}

// Bookable is the shape every slot kind shares for validity decisions.
type Bookable interface {
	Open() bool
	End(loc *time.Location) (time.Time, error)
	Remaining() int
}

// Evaluator binds the slot time zone and thresholds.
type Evaluator struct {
	Location   *time.Location
	Thresholds Thresholds
}

func NewEvaluator(loc *time.Location, thresholds Thresholds) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	if thresholds.Soon <= 0 || thresholds.Urgent <= 0 || thresholds.Urgent >= thresholds.Soon {
		thresholds = DefaultThresholds()
	}
	return &Evaluator{Location: loc, Thresholds: thresholds}
}

// EffectiveEnd is the earlier of the slot's date and end time and its
// explicit expiry, if any.
func EffectiveEnd(slot *model.Slot, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	natural, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, slot.Date+" "+slot.EndTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("slot %s: invalid date/end_time %q %q: %w", slot.ID, slot.Date, slot.EndTime, err)
	}
	if slot.SlotExpiresAt != nil && slot.SlotExpiresAt.Before(natural) {
		return slot.SlotExpiresAt.UTC(), nil
	}
	return natural.UTC(), nil
}

// EffectiveStart is the slot's date and start time.
func EffectiveStart(slot *model.Slot, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, slot.Date+" "+slot.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("slot %s: invalid date/start_time %q %q: %w", slot.ID, slot.Date, slot.StartTime, err)
	}
	return start.UTC(), nil
}

// CapacityRemaining ignores holds; the store accounts for those.
func CapacityRemaining(slot *model.Slot) int {
	return max(0, slot.Capacity()-slot.CurrentBookings)
}

// IsValid reports whether slot can be booked at now. An unparseable time
// window is never valid.
func IsValid(slot *model.Slot, now time.Time, loc *time.Location) bool {
	if !slot.IsAvailable || CapacityRemaining(slot) == 0 {
		return false
	}
	end, err := EffectiveEnd(slot, loc)
	if err != nil {
		return false
	}
	return now.Before(end)
}

// Classify buckets the time left before the slot's effective end. It only
// looks at the clock, so once expired a slot stays expired for every later
// now.
func Classify(slot *model.Slot, now time.Time, loc *time.Location, th Thresholds) model.SlotStatus {
	end, err := EffectiveEnd(slot, loc)
	if err != nil {
		return model.StatusExpired
	}
	return ClassifyRemaining(end.Sub(now), th)
}

// ClassifyRemaining treats both thresholds as inclusive: exactly Urgent left
// is urgent, exactly Soon left is soon.
func ClassifyRemaining(remaining time.Duration, th Thresholds) model.SlotStatus {
	switch {
	case remaining <= 0:
		return model.StatusExpired
	case remaining <= th.Urgent:
		return model.StatusUrgent
	case remaining <= th.Soon:
		return model.StatusSoon
	default:
		return model.StatusAvailable
	}
}

func (e *Evaluator) EffectiveEnd(slot *model.Slot) (time.Time, error) {
	return EffectiveEnd(slot, e.Location)
}

func (e *Evaluator) IsValid(slot *model.Slot, now time.Time) bool {
	return IsValid(slot, now, e.Location)
}

func (e *Evaluator) Classify(slot *model.Slot, now time.Time) model.SlotStatus {
	return Classify(slot, now, e.Location, e.Thresholds)
}

// Annotate builds the display view of slot at now. Unlike CapacityRemaining,
// the view counts other callers' active holds as taken.
func (e *Evaluator) Annotate(slot *model.Slot, now time.Time) model.SlotView {
	free := max(0, CapacityRemaining(slot)-len(slot.ActiveHolds(now)))
	view := model.SlotView{
		Slot:              *slot,
		Status:            model.StatusExpired,
		CapacityRemaining: free,
	}
	end, err := e.EffectiveEnd(slot)
	if err != nil {
		return view
	}
	remaining := end.Sub(now)
	view.Status = ClassifyRemaining(remaining, e.Thresholds)
	view.SecondsRemaining = int64(max(0, remaining) / time.Second)
	view.Bookable = free > 0 && e.IsValid(slot, now)
	return view
}
