package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	tb := NewTokenBucket(2, 1)
	tb.now = func() time.Time { return clock }
	tb.lastRefill = clock

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
	assert.Equal(t, 0, tb.Remaining())

	clock = clock.Add(1500 * time.Millisecond)
	assert.Equal(t, 1, tb.Remaining())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock = clock.Add(time.Hour)
	assert.Equal(t, 2, tb.Remaining())
}

func TestTokenBucket_WaitCancelled(t *testing.T) {
	tb := NewTokenBucket(1, 0.001)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

func TestSlidingWindow(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	sw := NewSlidingWindow(2, time.Second)
	sw.now = func() time.Time { return clock }

	assert.True(t, sw.Allow())
	clock = clock.Add(500 * time.Millisecond)
	assert.True(t, sw.Allow())
	assert.False(t, sw.Allow())
	assert.Equal(t, 0, sw.Remaining())

	clock = clock.Add(600 * time.Millisecond)
	assert.Equal(t, 1, sw.Remaining())
	assert.True(t, sw.Allow())
}

func TestManager(t *testing.T) {
	m := NewManager()
	assert.NotSame(t, m.Get("unknown"), m.Get("backpack:account"))
	assert.Same(t, m.Get("backpack:account"), m.Get("backpack:account"))
	assert.Same(t, m.Get("unknown"), m.Get("other"))

	custom := NewTokenBucket(1, 1)
	m.Set("custom", custom)
	assert.Same(t, custom, m.Get("custom"))
	require.NoError(t, m.Wait(context.Background(), "custom"))
}
