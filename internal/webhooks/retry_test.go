package webhooks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.True(t, cfg.ShouldRetry(0, errors.New("connection refused")))
	assert.True(t, cfg.ShouldRetry(500, nil))
	assert.True(t, cfg.ShouldRetry(502, nil))
	assert.True(t, cfg.ShouldRetry(503, nil))
	assert.True(t, cfg.ShouldRetry(504, nil))
	assert.True(t, cfg.ShouldRetry(429, nil))

	assert.False(t, cfg.ShouldRetry(200, nil))
	assert.False(t, cfg.ShouldRetry(204, nil))
	assert.False(t, cfg.ShouldRetry(400, nil))
	assert.False(t, cfg.ShouldRetry(401, nil))
	assert.False(t, cfg.ShouldRetry(404, nil))
	assert.False(t, cfg.ShouldRetry(410, nil))
}

func TestBackoff_ExponentialGrowth(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0, // deterministic for the test
	}

	assert.Equal(t, 1*time.Second, cfg.Backoff(0))
	assert.Equal(t, 2*time.Second, cfg.Backoff(1))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 8*time.Second, cfg.Backoff(3))
}

func TestBackoff_CappedAtMax(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}

	assert.Equal(t, 5*time.Second, cfg.Backoff(10))
}

func TestBackoff_JitterStaysBounded(t *testing.T) {
	cfg := DefaultRetryConfig()

	for i := 0; i < 100; i++ {
		backoff := cfg.Backoff(1)
		assert.GreaterOrEqual(t, backoff, time.Duration(float64(2*time.Second)*0.9))
		assert.LessOrEqual(t, backoff, time.Duration(float64(2*time.Second)*1.1))
	}
}
