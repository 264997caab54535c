package engine

import (
	"context"
	"sync"
	"time"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// RateLimiter enforces the per-agent reply budget over UTC hour windows.
type RateLimiter struct {
	store storage.RateWindowStore
	now   func() time.Time
}

// NewRateLimiter returns a limiter reading the clock from now (time.Now when nil).
func NewRateLimiter(store storage.RateWindowStore, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{store: store, now: now}
}

// Window returns the hour window containing the current time.
func (l *RateLimiter) Window() time.Time {
	return types.HourWindow(l.now())
}

// Admit reports whether the current window still has room. It only reads;
// callers that go on to Increment race with each other, so the executor
// uses Reserve instead.
func (l *RateLimiter) Admit(ctx context.Context, agentID string, limit int) (bool, error) {
	count, err := l.store.GetRateWindow(ctx, agentID, l.Window())
	if err != nil {
		return false, err
	}
	return count < limit, nil
}

// Increment adds one reply to the current window, creating it at 1.
func (l *RateLimiter) Increment(ctx context.Context, agentID string) error {
	hour := l.Window()
	count, err := l.store.GetRateWindow(ctx, agentID, hour)
	if err != nil {
		return err
	}
	return l.store.UpsertRateWindow(ctx, agentID, hour, count+1)
}

// Count returns the number of replies in the current window.
func (l *RateLimiter) Count(ctx context.Context, agentID string) (int, error) {
	return l.store.GetRateWindow(ctx, agentID, l.Window())
}

// Reserve claims one reply slot in the current window atomically. It returns
// nil without error when the window is full.
func (l *RateLimiter) Reserve(ctx context.Context, agentID string, limit int) (*Reservation, error) {
	hour := l.Window()
	ok, err := l.store.AdmitReply(ctx, agentID, hour, limit)
	if err != nil || !ok {
		return nil, err
	}
	return &Reservation{store: l.store, agentID: agentID, hour: hour}, nil
}

// Reservation is a claimed reply slot. It must be kept once the reply is
// recorded or released if the reply fails.
type Reservation struct {
	store   storage.RateWindowStore
	agentID string
	hour    time.Time

	once sync.Once
}

// Hour is the window the slot was claimed in.
func (r *Reservation) Hour() time.Time { return r.hour }

// Keep makes the slot permanent.
func (r *Reservation) Keep() {
	r.once.Do(func() {})
}

// Release returns the slot to its window. Releasing after Keep, or twice,
// does nothing.
func (r *Reservation) Release(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		err = r.store.ReleaseReply(ctx, r.agentID, r.hour)
	})
	return err
}
