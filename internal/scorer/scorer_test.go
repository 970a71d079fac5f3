package scorer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaywatch/scoutd/internal/geo"
	"github.com/relaywatch/scoutd/internal/model"
)

// fakeStore is a minimal in-memory store.DataStore stand-in scoped to
// what the scorer reads.
type fakeStore struct {
	probes        map[string][]model.ProbeResult
	telemetry     map[string]model.TelemetryStats
	trackedCounts map[string]int
	monitorLatest map[string]map[string]model.TelemetryMetric
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		probes:        map[string][]model.ProbeResult{},
		telemetry:     map[string]model.TelemetryStats{},
		trackedCounts: map[string]int{},
		monitorLatest: map[string]map[string]model.TelemetryMetric{},
	}
}

func (f *fakeStore) StoreProbe(context.Context, model.ProbeResult) error             { return nil }
func (f *fakeStore) StoreTelemetryMetric(context.Context, model.TelemetryMetric) error { return nil }
func (f *fakeStore) UpdateMonitorStats(context.Context, string, string, int64) error { return nil }

func (f *fakeStore) GetProbes(_ context.Context, url string, _ time.Duration) ([]model.ProbeResult, error) {
	return f.probes[url], nil
}
func (f *fakeStore) GetTelemetryStats(_ context.Context, url string) (model.TelemetryStats, error) {
	return f.telemetry[url], nil
}
func (f *fakeStore) GetMonitorTrackedRelayCount(_ context.Context, pubkey string) (int, error) {
	return f.trackedCounts[pubkey], nil
}
func (f *fakeStore) GetMonitorLatestForAllRelays(_ context.Context, pubkey string) (map[string]model.TelemetryMetric, error) {
	return f.monitorLatest[pubkey], nil
}
func (f *fakeStore) GetLastPublishedAssertion(context.Context, string) (*model.PublishedAssertionRecord, error) {
	return nil, nil
}
func (f *fakeStore) StorePublishedAssertion(context.Context, model.PublishedAssertionRecord) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

func TestScorerEndToEndReachableRelay(t *testing.T) {
	fs := newFakeStore()
	url := "wss://relay.example.com"
	now := time.Now().Unix()
	fs.probes[url] = []model.ProbeResult{
		{URL: url, Timestamp: now - 100, Reachable: true, ConnectTime: ms(50)},
		{URL: url, Timestamp: now - 50, Reachable: true, ConnectTime: ms(60)},
		{URL: url, Timestamp: now, Reachable: true, ConnectTime: ms(55)},
	}
	fs.telemetry[url] = model.TelemetryStats{}

	s := New(fs, nil, nil, 0, 0)
	info := &model.NIP11Info{Name: "relay", Description: "a test relay", Contact: "op@example.com"}

	result, err := s.Score(context.Background(), url, info, model.OperatorResolution{}, model.JurisdictionInfo{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.Reliability, 0)
	require.LessOrEqual(t, result.Reliability, 100)
	require.Equal(t, model.StatusInsufficientData, result.Status)
}

func TestScorerUnreachableLatestProbeCapsEffectiveReliability(t *testing.T) {
	fs := newFakeStore()
	url := "wss://flaky.example.com"
	now := time.Now().Unix()
	fs.probes[url] = []model.ProbeResult{
		{URL: url, Timestamp: now - 100, Reachable: true, ConnectTime: ms(50)},
		{URL: url, Timestamp: now, Reachable: false},
	}

	s := New(fs, nil, nil, 0, 0)
	result, err := s.Score(context.Background(), url, nil, model.OperatorResolution{}, model.JurisdictionInfo{})
	require.NoError(t, err)
	require.Equal(t, model.StatusUnreachable, result.Status)
}

func TestScorerUsesQualifyingMonitorPercentiles(t *testing.T) {
	fs := newFakeStore()
	url := "wss://relay.example.com"
	monitor := "monitor-pk"
	now := time.Now().Unix()

	fs.probes[url] = []model.ProbeResult{{URL: url, Timestamp: now, Reachable: true, ConnectTime: ms(10)}}
	fs.trackedCounts[monitor] = 25
	fs.telemetry[url] = model.TelemetryStats{
		MonitorLatest: map[string]model.TelemetryMetric{
			monitor: {RTTOpen: ms(10), RTTRead: ms(20)},
		},
	}
	fs.monitorLatest[monitor] = map[string]model.TelemetryMetric{
		url:                        {RTTOpen: ms(10), RTTRead: ms(20)},
		"wss://slower.example.com": {RTTOpen: ms(100), RTTRead: ms(200)},
	}

	freedom, alliance := geo.NewStaticTables()
	s := New(fs, freedom, alliance, 0, 0)

	result, err := s.Score(context.Background(), url, nil, model.OperatorResolution{}, model.JurisdictionInfo{})
	require.NoError(t, err)
	// This relay is the fastest of the two the qualifying monitor tracks,
	// so its reliability should reflect a strong latency component.
	require.Greater(t, result.Reliability, 50)
}
