package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffPolicyDoubles(t *testing.T) {
	p := NewBackoffPolicy(2*time.Second, time.Minute)
	assert.Equal(t, 2*time.Second, p.NextDelay(0))
	assert.Equal(t, 4*time.Second, p.NextDelay(1))
	assert.Equal(t, 8*time.Second, p.NextDelay(2))
	assert.Equal(t, time.Minute, p.NextDelay(10))
}

func TestBackoffPolicyDefaults(t *testing.T) {
	p := NewBackoffPolicy(0, 0)
	assert.Equal(t, 2*time.Second, p.Min)
	assert.Equal(t, 2*time.Second, p.Max)
}

func TestBackoffPolicyShouldRetry(t *testing.T) {
	p := NewBackoffPolicy(time.Second, time.Minute)
	assert.True(t, p.ShouldRetry(CloseReason{Code: CloseNetwork}))
	assert.False(t, p.ShouldRetry(CloseReason{Code: CloseLoggedOut}))
	assert.False(t, p.ShouldRetry(CloseReason{Code: CloseReplaced}))
}
