package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_LapReportsRealElapsedTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClock(start)

	assert.Equal(t, 16*time.Millisecond, c.Lap(start.Add(16*time.Millisecond)))
	assert.Equal(t, 40*time.Millisecond, c.Lap(start.Add(56*time.Millisecond)), "a slow frame yields a longer tick")

	c.Reset(start.Add(5 * time.Second))
	assert.Equal(t, 10*time.Millisecond, c.Lap(start.Add(5*time.Second+10*time.Millisecond)))
}
