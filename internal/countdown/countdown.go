// Package countdown drives per-slot and per-hold countdowns. Remaining time
// is recomputed from the wall clock on every tick, so a late tick never
// accumulates drift.
package countdown

import (
	"context"
	"sync"
	"time"
)

const DefaultInterval = time.Second

type Result int

const (
	Expired Result = iota + 1
	Cancelled
)

func (r Result) String() string {
	switch r {
	case Expired:
		return "expired"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Options struct {
	Interval time.Duration
	Now      func() time.Time
}

func (o Options) normalize() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// TickFunc receives the remaining time, never negative.
type TickFunc func(remaining time.Duration)

// Run calls onTick immediately and then every interval until deadline is
// reached or ctx is cancelled. The final tick at expiry reports zero.
func Run(ctx context.Context, deadline time.Time, opts Options, onTick TickFunc) Result {
	opts = opts.normalize()

	emit := func() bool {
		remaining := deadline.Sub(opts.Now())
		if remaining < 0 {
			remaining = 0
		}
		if onTick != nil {
			onTick(remaining)
		}
		return remaining == 0
	}

	if ctx.Err() != nil {
		return Cancelled
	}
	if emit() {
		return Expired
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Cancelled
		case <-ticker.C:
			if emit() {
				return Expired
			}
		}
	}
}

// Group keeps at most one running countdown per key. Starting a key that
// is already running cancels the previous countdown first.
type Group struct {
	opts   Options
	mu     sync.Mutex
	timers map[string]*timer
	wg     sync.WaitGroup
}

type timer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewGroup(opts Options) *Group {
	return &Group{
		opts:   opts.normalize(),
		timers: make(map[string]*timer),
	}
}

// Start runs a countdown for key in its own goroutine. onDone, when set,
// receives the result once the key has been freed.
func (g *Group) Start(ctx context.Context, key string, deadline time.Time, onTick TickFunc, onDone func(Result)) {
	g.Stop(key)

	runCtx, cancel := context.WithCancel(ctx)
	t := &timer{cancel: cancel, done: make(chan struct{})}

	g.mu.Lock()
	g.timers[key] = t
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer close(t.done)
		defer cancel()

		result := Run(runCtx, deadline, g.opts, onTick)

		g.mu.Lock()
		if g.timers[key] == t {
			delete(g.timers, key)
		}
		g.mu.Unlock()

		if onDone != nil {
			onDone(result)
		}
	}()
}

// Stop cancels the countdown for key and waits for it to finish.
func (g *Group) Stop(key string) {
	g.mu.Lock()
	t, ok := g.timers[key]
	if ok {
		delete(g.timers, key)
	}
	g.mu.Unlock()

	if ok {
		t.cancel()
		<-t.done
	}
}

// Retain stops every countdown whose key is not in keep.
func (g *Group) Retain(keep map[string]bool) {
	g.mu.Lock()
	var stale []string
	for key := range g.timers {
		if !keep[key] {
			stale = append(stale, key)
		}
	}
	g.mu.Unlock()

	for _, key := range stale {
		g.Stop(key)
	}
}

func (g *Group) Active(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.timers[key]
	return ok
}

func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

// StopAll cancels every countdown and waits for all goroutines to exit.
func (g *Group) StopAll() {
	g.mu.Lock()
	timers := g.timers
	g.timers = make(map[string]*timer)
	g.mu.Unlock()

	for _, t := range timers {
		t.cancel()
	}
	g.wg.Wait()
}
