package pacing

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicyRejectsInvertedRange(t *testing.T) {
	_, err := NewPolicy(2*time.Second, time.Second)
	assert.Error(t, err)

	_, err = NewPolicy(-time.Second, time.Second)
	assert.Error(t, err)
}

func TestNextStaysWithinBounds(t *testing.T) {
	p, err := NewPolicy(5*time.Second, 15*time.Second, WithRand(rand.New(rand.NewPCG(1, 2))))
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		d := p.Next()
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 15*time.Second)
	}
}

func TestNextFixedDelay(t *testing.T) {
	p, err := NewPolicy(time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, p.Next())
}

func TestWaitZeroDelay(t *testing.T) {
	p, err := NewPolicy(0, 0)
	require.NoError(t, err)

	start := time.Now()
	assert.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitNilPolicy(t *testing.T) {
	var p *Policy
	assert.NoError(t, p.Wait(context.Background()))
}

func TestWaitCancelled(t *testing.T) {
	p, err := NewPolicy(time.Hour, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitSleeps(t *testing.T) {
	p, err := NewPolicy(20*time.Millisecond, 30*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSharedLimiterThrottles(t *testing.T) {
	// 600 per minute is one token every 100ms, burst 1
	limiter := NewLimiter(600)
	require.NotNil(t, limiter)

	a, err := NewPolicy(0, 0, WithLimiter(limiter))
	require.NoError(t, err)
	b, err := NewPolicy(0, 0, WithLimiter(limiter))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, a.Wait(context.Background()))
	require.NoError(t, b.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestNewLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
}
