// Package ratelimit defines the per-client request budget applied at the
// edge before authentication runs.
package ratelimit

import (
	"context"
	"time"
)

// Limit is a GCRA budget: Rate events per Period, with up to Burst events
// admitted back to back.
type Limit struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// Emission is the spacing between admitted events at the sustained rate.
func (l Limit) Emission() time.Duration {
	rate := l.Rate
	if rate <= 0 {
		rate = 1
	}
	return l.Period / time.Duration(rate)
}

// Tolerance is how far ahead of now the theoretical arrival time may run.
func (l Limit) Tolerance() time.Duration {
	burst := l.Burst
	if burst <= 0 {
		burst = l.Rate
	}
	if burst <= 0 {
		burst = 1
	}
	return time.Duration(burst) * l.Emission()
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is zero when Allowed.
	RetryAfter time.Duration
}

// Limiter admits or rejects one event for key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (Decision, error)
}

// ClientKey is the limiter key for a client address.
func ClientKey(ip string) string {
	return "edge:ip:" + ip
}
