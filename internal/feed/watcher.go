package feed

import (
	"context"
	"slices"
	"sync"

	"licensedesk/pkg/model"
)

// Catalog is the read side the feed re-queries on every change.
type Catalog interface {
	List(ctx context.Context, filter model.SlotFilter) ([]model.SlotView, error)
}

// Watcher keeps one subscriber's catalog snapshot. Events are only triggers:
// the snapshot is always the result of a fresh query, never a patch.
type Watcher struct {
	catalog Catalog
	filter  model.SlotFilter

	mu       sync.Mutex
	snapshot []model.SlotView
}

func NewWatcher(catalog Catalog, filter model.SlotFilter) *Watcher {
	return &Watcher{catalog: catalog, filter: filter}
}

func (w *Watcher) Filter() model.SlotFilter {
	return w.filter
}

// Load runs the initial query.
func (w *Watcher) Load(ctx context.Context) ([]model.SlotView, error) {
	views, err := w.catalog.List(ctx, w.filter)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshot = views
	return slices.Clone(views), nil
}

// Apply re-runs the query if event concerns the watched kind and reports
// whether the bookable set changed. Applying the same event twice leaves the
// snapshot as the first application did.
func (w *Watcher) Apply(ctx context.Context, event model.ChangeEvent) ([]model.SlotView, bool, error) {
	if event.Kind != "" && event.Kind != w.filter.Kind {
		return w.Snapshot(), false, nil
	}

	views, err := w.catalog.List(ctx, w.filter)
	if err != nil {
		return w.Snapshot(), false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	changed := !sameSlots(w.snapshot, views)
	w.snapshot = views
	return slices.Clone(views), changed, nil
}

func (w *Watcher) Snapshot() []model.SlotView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.snapshot)
}

// Drop removes a slot locally, as when its countdown reached zero.
func (w *Watcher) Drop(slotID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	before := len(w.snapshot)
	w.snapshot = slices.DeleteFunc(w.snapshot, func(v model.SlotView) bool { return v.ID == slotID })
	return len(w.snapshot) != before
}

// sameSlots compares what a client renders: order, identity, remaining
// capacity and bookability. Seconds remaining are driven by countdowns.
func sameSlots(a, b []model.SlotView) bool {
	return slices.EqualFunc(a, b, func(x, y model.SlotView) bool {
		return x.ID == y.ID &&
			x.CapacityRemaining == y.CapacityRemaining &&
			x.Bookable == y.Bookable &&
			x.Version == y.Version
	})
}
