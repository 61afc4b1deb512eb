package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitAll(t *testing.T) {
	assert.True(t, AdmitAll{}.Admit(time.Now()))
	assert.True(t, AdmitAll{}.Admit(time.Now()))
}

func TestTokenBucket_BurstThenThrottle(t *testing.T) {
	b := NewTokenBucket(2, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, b.Admit(now))
	assert.True(t, b.Admit(now))
	assert.False(t, b.Admit(now), "burst exhausted")

	// Half an interval refills half a token, still not enough.
	now = now.Add(30 * time.Second)
	assert.False(t, b.Admit(now))

	// A full interval later one token is available.
	now = now.Add(45 * time.Second)
	assert.True(t, b.Admit(now))
	assert.False(t, b.Admit(now))
}

func TestTokenBucket_RefillCapsAtBurst(t *testing.T) {
	b := NewTokenBucket(2, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, b.Admit(now))

	// A long idle stretch refills to the cap, not beyond.
	now = now.Add(time.Hour)
	assert.True(t, b.Admit(now))
	assert.True(t, b.Admit(now))
	assert.False(t, b.Admit(now))
}

func TestTokenBucket_DefensiveDefaults(t *testing.T) {
	b := NewTokenBucket(0, 0)
	now := time.Now()

	assert.True(t, b.Admit(now), "zero burst still admits once")
	assert.False(t, b.Admit(now))
}
