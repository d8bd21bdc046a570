package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestAdaptiveLimiter_BlockedThenRecover(t *testing.T) {
	lim := NewAdaptiveLimiter(60)
	initial := rate.Every(time.Second)
	assert.InDelta(t, float64(initial), float64(lim.Rate()), 1e-9)

	lim.OnBlocked()
	assert.InDelta(t, float64(initial)/2, float64(lim.Rate()), 1e-9)

	lim.OnBlocked()
	lim.OnBlocked()
	assert.InDelta(t, float64(initial)/4, float64(lim.Rate()), 1e-9, "floored at a quarter")

	for range 20 {
		lim.OnSuccess()
	}
	assert.InDelta(t, float64(initial), float64(lim.Rate()), 1e-9, "capped at the initial rate")
}

func TestAdaptiveLimiter_Unlimited(t *testing.T) {
	lim := NewAdaptiveLimiter(0)
	lim.OnBlocked()
	lim.OnSuccess()
	assert.Equal(t, rate.Inf, lim.Rate())
}
