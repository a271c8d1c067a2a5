package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicyDelaysIncrease(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Minute, p.Delay(1))
	assert.Equal(t, 5*time.Minute, p.Delay(2))
	assert.Equal(t, 15*time.Minute, p.Delay(3))
	assert.Less(t, p.Delay(1), p.Delay(2))
	assert.Less(t, p.Delay(2), p.Delay(3))
}

func TestPolicyDelayClamps(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Minute, p.Delay(0))
	assert.Equal(t, 15*time.Minute, p.Delay(9))
	assert.Equal(t, time.Minute, Policy{MaxAttempts: 1}.Delay(1))
}

func TestShouldDeadLetterOnFourthFailure(t *testing.T) {
	p := DefaultPolicy()
	for attempt := 1; attempt <= 3; attempt++ {
		assert.False(t, p.ShouldDeadLetter(attempt), "attempt %d", attempt)
	}
	assert.True(t, p.ShouldDeadLetter(4))
}
