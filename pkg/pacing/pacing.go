package pacing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy is a randomized delay inserted between operations. Each Wait first
// takes a token from the optional rate limiter, then sleeps a duration drawn
// uniformly from [Min, Max].
type Policy struct {
	Min time.Duration
	Max time.Duration

	limiter *rate.Limiter
	mu      sync.Mutex
	rnd     *rand.Rand
}

type Option func(*Policy)

// WithLimiter caps Waits with a limiter, possibly shared between policies.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(p *Policy) {
		p.limiter = limiter
	}
}

func WithRand(rnd *rand.Rand) Option {
	return func(p *Policy) {
		p.rnd = rnd
	}
}

func NewPolicy(min, max time.Duration, opts ...Option) (*Policy, error) {
	if min < 0 || max < min {
		return nil, fmt.Errorf("invalid delay range [%v, %v]", min, max)
	}
	p := &Policy{
		Min: min,
		Max: max,
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewLimiter builds a limiter for WithLimiter; nil when perMinute <= 0.
func NewLimiter(perMinute float64) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perMinute/60), 1)
}

// Next draws the next delay.
func (p *Policy) Next() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Min + time.Duration(p.rnd.Int64N(int64(p.Max-p.Min)+1))
}

// Wait blocks for the next delay or until ctx is done.
func (p *Policy) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	delay := p.Next()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
