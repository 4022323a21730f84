package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 8, BaseDelay: 2 * time.Second}

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{name: "first attempt", attempt: 1, want: 2 * time.Second},
		{name: "second attempt", attempt: 2, want: 4 * time.Second},
		{name: "third attempt", attempt: 3, want: 8 * time.Second},
		{name: "fourth attempt", attempt: 4, want: 16 * time.Second},
		{name: "seventh attempt", attempt: 7, want: 128 * time.Second},
		{name: "attempt below one clamps to base", attempt: 0, want: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Delay(tt.attempt))
		})
	}
}

func TestPolicy_DelayMonotonic(t *testing.T) {
	p := DefaultPolicy

	prev := time.Duration(0)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		delay := p.Delay(attempt)
		assert.GreaterOrEqual(t, delay, prev, "delay before attempt %d shrank", attempt+1)
		prev = delay
	}
}

func TestPolicy_RetryDelays(t *testing.T) {
	delays := DefaultPolicy.RetryDelays()

	assert.Len(t, delays, DefaultPolicy.MaxAttempts-1)
	assert.Equal(t, 2*time.Second, delays[0])
	assert.Equal(t, 128*time.Second, delays[len(delays)-1])

	assert.Empty(t, Policy{MaxAttempts: 1, BaseDelay: time.Second}.RetryDelays())
}

func TestPolicy_Exhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second}

	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}
