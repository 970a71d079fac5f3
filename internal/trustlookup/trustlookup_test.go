package trustlookup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, clampScore(-0.5))
	assert.Equal(t, 50, clampScore(0.5))
	assert.Equal(t, 100, clampScore(1.0))
	assert.Equal(t, 100, clampScore(1.2))
}

func TestLookupCacheHitAvoidsRoundTrip(t *testing.T) {
	c, err := New("wss://trust.example.com", "servicepubkey", "", 16)
	assert.NoError(t, err)

	c.cache.Add("pubkey1", cacheEntry{score: 77, cachedAt: time.Now()})
	score, ok := c.Lookup(context.Background(), "pubkey1")
	assert.True(t, ok)
	assert.Equal(t, 77, score)
}
