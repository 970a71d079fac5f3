// Package store defines the DataStore contract every other component
// coordinates through (§6 of spec.md) and a badger-backed implementation.
//
// DataStore is deliberately narrow: it persists probes, telemetry
// metrics, monitor stats, and published-assertion history — never raw
// event payloads, per the system's non-goals.
package store

import (
	"context"
	"time"

	"github.com/relaywatch/scoutd/internal/model"
)

// DataStore is the single source of mutable state visible across
// components. Implementations must be safe for concurrent callers.
type DataStore interface {
	StoreProbe(ctx context.Context, p model.ProbeResult) error
	StoreTelemetryMetric(ctx context.Context, m model.TelemetryMetric) error
	UpdateMonitorStats(ctx context.Context, monitorPubkey string, relayURL string, seenAt int64) error

	// GetProbes returns probes for url with timestamp within the last
	// window, oldest first.
	GetProbes(ctx context.Context, url string, window time.Duration) ([]model.ProbeResult, error)

	// GetTelemetryStats returns every stored metric for url plus, per
	// monitor, that monitor's single latest metric for url.
	GetTelemetryStats(ctx context.Context, url string) (model.TelemetryStats, error)

	// GetMonitorTrackedRelayCount returns how many distinct relays a
	// monitor has reported telemetry for, used by the scorer's
	// "qualifying monitor" test.
	GetMonitorTrackedRelayCount(ctx context.Context, monitorPubkey string) (int, error)

	// GetMonitorLatestForAllRelays returns, for one monitor, its latest
	// metric per relay URL it has ever reported on. Used for percentile
	// ranking.
	GetMonitorLatestForAllRelays(ctx context.Context, monitorPubkey string) (map[string]model.TelemetryMetric, error)

	GetLastPublishedAssertion(ctx context.Context, url string) (*model.PublishedAssertionRecord, error)
	StorePublishedAssertion(ctx context.Context, rec model.PublishedAssertionRecord) error

	Close() error
}

// ErrNotFound names the "lookup found nothing" case, distinct from a
// storage-layer failure. BadgerStore's lookups do not return it:
// GetLastPublishedAssertion reports a missing record as (nil, nil).
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }
