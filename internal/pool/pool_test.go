package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoffCapsAtMax(t *testing.T) {
	min := 1 * time.Second
	max := 60 * time.Second

	assert.Equal(t, 1*time.Second, nextBackoff(0, min, max))
	assert.Equal(t, 2*time.Second, nextBackoff(1, min, max))
	assert.Equal(t, 4*time.Second, nextBackoff(2, min, max))
	assert.Equal(t, 60*time.Second, nextBackoff(10, min, max))
}

func TestClassifyPublishError(t *testing.T) {
	r := classifyPublishError("wss://relay.example", context.DeadlineExceeded)
	assert.Equal(t, "timeout", r.Error)
	assert.False(t, r.Success)

	r = classifyPublishError("wss://relay.example", errors.New("connection closed before OK"))
	assert.Equal(t, "connection_closed", r.Error)

	r = classifyPublishError("wss://relay.example", errors.New("blocked: spam"))
	assert.Equal(t, "blocked: spam", r.Error)
}

func TestPublishAllSettledIndependence(t *testing.T) {
	p := New(DefaultConfig())
	// Destinations that cannot be reached fail independently without
	// blocking each other; this exercises the allSettled fan-out shape
	// without requiring a live relay.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	report := p.Publish(ctx, []string{"wss://127.0.0.1:1", "wss://127.0.0.1:2"}, validTestEvent())
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 0, report.SuccessCount)
	for _, r := range report.Results {
		assert.False(t, r.Success)
		assert.NotEmpty(t, r.Error)
	}
}
