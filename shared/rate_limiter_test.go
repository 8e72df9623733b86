package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterCountsRequests(t *testing.T) {
	limiter := NewHTTPRequestRateLimiter(time.Millisecond)
	assert.EqualValues(t, 0, limiter.GetRequestCount())

	limiter.EnforceRateLimit()
	limiter.EnforceRateLimit()

	assert.EqualValues(t, 2, limiter.GetRequestCount())
}
