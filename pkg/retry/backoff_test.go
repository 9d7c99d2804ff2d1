package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoffDuration(t *testing.T) {
	initial := time.Second

	first := CalculateBackoffDuration(1, initial, 2.0, time.Minute)
	second := CalculateBackoffDuration(2, initial, 2.0, time.Minute)
	third := CalculateBackoffDuration(3, initial, 2.0, time.Minute)

	assert.Equal(t, 2*time.Second, first)
	assert.Equal(t, first*2, second)
	assert.Equal(t, second*2, third)
}

func TestCalculateBackoffDurationCapped(t *testing.T) {
	capped := CalculateBackoffDuration(10, time.Second, 2.0, 30*time.Second)
	assert.Equal(t, 30*time.Second, capped)
}
