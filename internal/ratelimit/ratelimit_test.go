package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("u-otieno"))
	assert.True(t, l.Allow("u-otieno"))
	assert.False(t, l.Allow("u-otieno"))
	assert.Equal(t, 0, l.Remaining("u-otieno"))

	// other callers have their own window
	assert.True(t, l.Allow("u-kamau"))
	assert.Equal(t, 1, l.Remaining("u-kamau"))

	now = now.Add(61 * time.Second)
	assert.Equal(t, 2, l.Sweep())
	assert.True(t, l.Allow("u-otieno"))

	l.Reset("u-otieno")
	assert.Equal(t, 2, l.Remaining("u-otieno"))
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0, time.Minute)
	for range 100 {
		assert.True(t, l.Allow("k"))
	}
}
