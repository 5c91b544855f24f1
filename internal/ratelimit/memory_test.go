package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiterBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiterWithClock(clock.Now)
	policy := Policy{Name: "test", MaxRequests: 3, Window: 60 * time.Second}
	ctx := context.Background()

	for i, wantRemaining := range []int{2, 1, 0} {
		res, err := l.Check(ctx, "u1", policy)
		require.NoError(t, err)
		assert.True(t, res.Success, "call %d", i+1)
		assert.Equal(t, wantRemaining, res.Remaining)
	}

	res, err := l.Check(ctx, "u1", policy)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 60*time.Second, res.RetryAfter(clock.Now()))

	// The reset instant itself is still inside the window.
	clock.Advance(60 * time.Second)
	res, _ = l.Check(ctx, "u1", policy)
	assert.False(t, res.Success)

	clock.Advance(time.Millisecond)
	res, _ = l.Check(ctx, "u1", policy)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter()
	policy := Policy{Name: "test", MaxRequests: 1, Window: time.Minute}
	ctx := context.Background()

	first, _ := l.Check(ctx, policy.Key("a"), policy)
	second, _ := l.Check(ctx, policy.Key("b"), policy)
	again, _ := l.Check(ctx, policy.Key("a"), policy)

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.False(t, again.Success)
}

func TestMemoryLimiterSweepsExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiterWithClock(clock.Now)
	policy := Policy{Name: "test", MaxRequests: 1, Window: time.Second}
	ctx := context.Background()

	for i := 0; i <= sweepThreshold; i++ {
		_, err := l.Check(ctx, fmt.Sprintf("id-%d", i), policy)
		require.NoError(t, err)
	}
	require.Equal(t, sweepThreshold+1, l.Len())

	clock.Advance(2 * time.Second)
	_, err := l.Check(ctx, "fresh", policy)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())
}

func TestMemoryLimiterConcurrentCallers(t *testing.T) {
	l := NewMemoryLimiter()
	policy := Policy{Name: "test", MaxRequests: 50, Window: time.Minute}
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(ctx, "shared", policy)
			assert.NoError(t, err)
			if res.Success {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestResultHelpers(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	res := Result{ResetTime: now.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2*time.Second, res.RetryAfter(now))
	assert.Equal(t, int64(1_700_000_002), res.ResetUnix())

	past := Result{ResetTime: now.Add(-time.Second)}
	assert.Equal(t, time.Second, past.RetryAfter(now))

	assert.Equal(t, "agent:42", AgentPolicy.Key("42"))
}
