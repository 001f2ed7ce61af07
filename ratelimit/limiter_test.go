package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurstThenDenies(t *testing.T) {
	l := New(1, 2)

	assert.True(t, l.Allow("api"))
	assert.True(t, l.Allow("api"))
	assert.False(t, l.Allow("api"), "burst of 2 exhausted")
}

func TestKeysAreIndependentBuckets(t *testing.T) {
	l := New(1, 1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "key b has its own bucket")
}

func TestWaitHonoursContextDeadline(t *testing.T) {
	l := New(0.001, 1)
	require.True(t, l.Allow("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "slow")
	assert.Error(t, err, "no token could arrive before the deadline")
}
