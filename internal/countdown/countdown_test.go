package countdown

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AlreadyPastDeadline(t *testing.T) {
	var ticks []time.Duration
	result := Run(context.Background(), time.Now().Add(-time.Minute), Options{Interval: time.Millisecond}, func(d time.Duration) {
		ticks = append(ticks, d)
	})

	assert.Equal(t, Expired, result)
	require.Len(t, ticks, 1)
	assert.Equal(t, time.Duration(0), ticks[0])
}

func TestRun_CountsDownToZero(t *testing.T) {
	var mu sync.Mutex
	var ticks []time.Duration

	result := Run(context.Background(), time.Now().Add(40*time.Millisecond), Options{Interval: 5 * time.Millisecond}, func(d time.Duration) {
		mu.Lock()
		ticks = append(ticks, d)
		mu.Unlock()
	})

	assert.Equal(t, Expired, result)
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(ticks), 2)
	assert.Equal(t, time.Duration(0), ticks[len(ticks)-1])
	for i := 1; i < len(ticks); i++ {
		assert.LessOrEqual(t, ticks[i], ticks[i-1], "remaining time must never increase")
	}
}

func TestRun_UsesInjectedClock(t *testing.T) {
	deadline := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	now := deadline.Add(-90 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	var first time.Duration
	result := Run(ctx, deadline, Options{Interval: time.Hour, Now: func() time.Time { return now }}, func(d time.Duration) {
		first = d
		cancel()
	})

	assert.Equal(t, Cancelled, result)
	assert.Equal(t, 90*time.Second, first)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	result := Run(ctx, time.Now().Add(time.Hour), Options{}, func(time.Duration) { called = true })

	assert.Equal(t, Cancelled, result)
	assert.False(t, called)
}

func TestGroup_ReplaceCancelsPrevious(t *testing.T) {
	g := NewGroup(Options{Interval: time.Millisecond})
	defer g.StopAll()

	results := make(chan Result, 2)
	g.Start(context.Background(), "hold", time.Now().Add(time.Hour), nil, func(r Result) { results <- r })
	g.Start(context.Background(), "hold", time.Now().Add(time.Hour), nil, func(r Result) { results <- r })

	assert.Equal(t, Cancelled, <-results)
	assert.Equal(t, 1, g.Len())
	assert.True(t, g.Active("hold"))
}

func TestGroup_ExpiryFreesKey(t *testing.T) {
	g := NewGroup(Options{Interval: time.Millisecond})
	defer g.StopAll()

	done := make(chan Result, 1)
	g.Start(context.Background(), "slot-1", time.Now().Add(5*time.Millisecond), nil, func(r Result) { done <- r })

	select {
	case r := <-done:
		assert.Equal(t, Expired, r)
	case <-time.After(time.Second):
		t.Fatal("countdown did not expire")
	}
	assert.False(t, g.Active("slot-1"))
}

func TestGroup_Retain(t *testing.T) {
	g := NewGroup(Options{Interval: time.Hour})
	defer g.StopAll()

	var cancelled atomic.Int32
	onDone := func(r Result) {
		if r == Cancelled {
			cancelled.Add(1)
		}
	}
	for _, key := range []string{"a", "b", "c"} {
		g.Start(context.Background(), key, time.Now().Add(time.Hour), nil, onDone)
	}

	g.Retain(map[string]bool{"b": true})

	assert.Equal(t, 1, g.Len())
	assert.True(t, g.Active("b"))
	assert.Equal(t, int32(2), cancelled.Load())
}

func TestGroup_StopAll(t *testing.T) {
	g := NewGroup(Options{Interval: time.Hour})
	g.Start(context.Background(), "a", time.Now().Add(time.Hour), nil, nil)
	g.Start(context.Background(), "b", time.Now().Add(time.Hour), nil, nil)

	g.StopAll()

	assert.Equal(t, 0, g.Len())
}
