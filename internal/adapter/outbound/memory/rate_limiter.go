// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Sentinel-Gate/edgegate/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.Limiter with GCRA over a process-local
// map of theoretical arrival times. State is lost on restart and is not
// shared between gateway replicas.
type RateLimiter struct {
	mu  sync.Mutex
	tat map[string]time.Time
	now func() time.Time

	sweepEvery time.Duration
	idleTTL    time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewRateLimiter creates a limiter that forgets keys idle for idleTTL,
// checked every sweepEvery once Start is called.
func NewRateLimiter(sweepEvery, idleTTL time.Duration) *RateLimiter {
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	return &RateLimiter{
		tat:        make(map[string]time.Time),
		now:        time.Now,
		sweepEvery: sweepEvery,
		idleTTL:    idleTTL,
		stop:       make(chan struct{}),
	}
}

// Allow admits one event for key under limit.
func (r *RateLimiter) Allow(_ context.Context, key string, limit ratelimit.Limit) (ratelimit.Decision, error) {
	emission := limit.Emission()
	tolerance := limit.Tolerance()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	tat := r.tat[key]
	if tat.Before(now) {
		tat = now
	}
	next := tat.Add(emission)

	if allowAt := next.Add(-tolerance); now.Before(allowAt) {
		return ratelimit.Decision{RetryAfter: allowAt.Sub(now)}, nil
	}
	r.tat[key] = next

	remaining := int((tolerance - next.Sub(now)) / emission)
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Decision{Allowed: true, Remaining: remaining}, nil
}

// Start launches the idle-key sweeper. It exits on ctx cancellation or Stop.
func (r *RateLimiter) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *RateLimiter) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for key, tat := range r.tat {
		if tat.Before(cutoff) {
			delete(r.tat, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("rate limiter swept idle keys", "removed", removed, "tracked", len(r.tat))
	}
}

// Stop halts the sweeper and waits for it. Safe to call more than once.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// Len returns the number of tracked keys.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tat)
}

var _ ratelimit.Limiter = (*RateLimiter)(nil)
