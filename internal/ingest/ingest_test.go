package ingest

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTelemetryEventRequiresDTag(t *testing.T) {
	ev := &nostr.Event{Tags: nostr.Tags{{"rtt-open", "100"}}}
	_, ok := parseTelemetryEvent(ev)
	assert.False(t, ok)
}

func TestParseTelemetryEventHappyPath(t *testing.T) {
	ev := &nostr.Event{
		ID:        "deadbeef",
		PubKey:    "monitor-pk",
		CreatedAt: 1000,
		Tags: nostr.Tags{
			{"d", "wss://Relay.Example.com/"},
			{"rtt-open", "120"},
			{"rtt-read", "340"},
			{"n", "clearnet"},
			{"N", "1,11,65"},
			{"g", "u4pruydqqvj"},
		},
	}

	m, ok := parseTelemetryEvent(ev)
	require.True(t, ok)
	assert.Equal(t, "deadbeef", m.EventID)
	assert.Equal(t, "wss://relay.example.com", m.RelayURL)
	require.NotNil(t, m.RTTOpen)
	assert.Equal(t, int64(120), *m.RTTOpen)
	require.NotNil(t, m.RTTRead)
	assert.Equal(t, int64(340), *m.RTTRead)
	assert.Equal(t, "clearnet", m.Network)
	assert.ElementsMatch(t, []int{1, 11, 65}, m.SupportedNIPs)
	assert.Equal(t, "u4pruydqqvj", m.Geohash)
}

func TestParseTelemetryEventDiscardsOutOfRangeRTT(t *testing.T) {
	ev := &nostr.Event{
		Tags: nostr.Tags{
			{"d", "wss://relay.example.com"},
			{"rtt-open", "999999"},
			{"rtt-read", "-1"},
		},
	}
	m, ok := parseTelemetryEvent(ev)
	require.True(t, ok)
	assert.Nil(t, m.RTTOpen)
	assert.Nil(t, m.RTTRead)
}

func TestParseNIPListValidatesRange(t *testing.T) {
	out := parseNIPList([]string{"1,0,65536,42"})
	assert.ElementsMatch(t, []int{1, 42}, out)
}

func TestParseRTT(t *testing.T) {
	if _, ok := parseRTT("not-a-number"); ok {
		t.Error("expected parse failure")
	}
	if v, ok := parseRTT("60000"); !ok || v != 60000 {
		t.Errorf("boundary value should be accepted, got %d, %v", v, ok)
	}
	if _, ok := parseRTT("60001"); ok {
		t.Error("expected out-of-range rejection")
	}
}
