package httputil

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Budget caps outbound requests at perMinute in any rolling minute. It is
// shared by every fetch the process makes.
//
// The bucket holds burst tokens and refills at (perMinute-burst)/60s, so a
// 60s window can see at most burst + (perMinute-burst) requests.
type Budget struct {
	limiter   *rate.Limiter
	perMinute int
	now       func() time.Time
}

var ErrBudgetExceeded = errors.New("request budget cannot grant reservation")

func NewBudget(perMinute int, now func() time.Time) *Budget {
	if perMinute < 1 {
		perMinute = 1
	}
	if now == nil {
		now = time.Now
	}

	burst := max(1, perMinute/10)
	refill := perMinute - burst
	limit := rate.Limit(float64(refill) / 60)
	if refill < 1 {
		limit = rate.Every(61 * time.Second)
	}

	return &Budget{
		limiter:   rate.NewLimiter(limit, burst),
		perMinute: perMinute,
		now:       now,
	}
}

func (b *Budget) PerMinute() int { return b.perMinute }

// Reserve books the next request slot and returns how long the caller must
// wait before sending it.
func (b *Budget) Reserve() (time.Duration, error) {
	now := b.now()
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0, ErrBudgetExceeded
	}
	return r.DelayFrom(now), nil
}

// Wait blocks until a request may be sent. It returns the time spent waiting.
func (b *Budget) Wait(ctx context.Context) (time.Duration, error) {
	now := b.now()
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0, ErrBudgetExceeded
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return 0, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return delay, nil
	case <-ctx.Done():
		r.CancelAt(b.now())
		return 0, ctx.Err()
	}
}
