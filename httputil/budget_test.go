package httputil

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type simClock struct{ t time.Time }

func (c *simClock) Now() time.Time          { return c.t }
func (c *simClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// grants issues n back-to-back reservations, advancing the clock by each
// returned delay as a blocked caller would.
func grants(t *testing.T, b *Budget, clock *simClock, n int) []time.Time {
	t.Helper()
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		delay, err := b.Reserve()
		require.NoError(t, err)
		clock.Advance(delay)
		out = append(out, clock.Now())
	}
	return out
}

func maxInWindow(times []time.Time, window time.Duration) int {
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	best := 0
	for i := range times {
		n := 0
		for j := i; j < len(times) && times[j].Sub(times[i]) < window; j++ {
			n++
		}
		best = max(best, n)
	}
	return best
}

func TestBudgetNeverExceedsPerMinute(t *testing.T) {
	for _, perMinute := range []int{1, 2, 10, 30, 60, 250} {
		clock := &simClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
		b := NewBudget(perMinute, clock.Now)

		times := grants(t, b, clock, perMinute*4+5)
		assert.LessOrEqual(t, maxInWindow(times, time.Minute), perMinute, "perMinute=%d", perMinute)
	}
}

func TestBudgetBlocksRatherThanDrops(t *testing.T) {
	clock := &simClock{t: time.Unix(0, 0)}
	b := NewBudget(30, clock.Now)

	times := grants(t, b, clock, 90)
	assert.Len(t, times, 90)
	// 90 requests at 30/min need well over two simulated minutes.
	assert.Greater(t, times[len(times)-1].Sub(times[0]), 2*time.Minute)
}

func TestBudgetSharedAcrossCallers(t *testing.T) {
	clock := &simClock{t: time.Unix(0, 0)}
	b := NewBudget(20, clock.Now)

	// Interleaved listing and transaction fetches draw from the same budget.
	var all []time.Time
	for i := 0; i < 30; i++ {
		all = append(all, grants(t, b, clock, 1)...)
		all = append(all, grants(t, b, clock, 1)...)
	}
	assert.LessOrEqual(t, maxInWindow(all, time.Minute), 20)
}

func TestBudgetWaitHonoursContext(t *testing.T) {
	b := NewBudget(1, nil)
	_, err := b.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
