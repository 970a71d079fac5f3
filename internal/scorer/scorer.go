// Package scorer derives reliability, quality, accessibility, and
// confidence for a relay from its probe history and ingested telemetry,
// per spec.md §4.4.
package scorer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaywatch/scoutd/internal/geo"
	"github.com/relaywatch/scoutd/internal/model"
	"github.com/relaywatch/scoutd/internal/store"
)

// QualifyingMonitorMinRelays is the default distinct-tracked-relay
// threshold a monitor must clear to contribute to latency percentile
// ranking. Per spec.md §9's open question, qualification is
// re-evaluated at score time rather than cached on MonitorStats.
const QualifyingMonitorMinRelays = 20

// Result is everything the AssertionBuilder needs out of one scoring
// pass for a relay.
type Result struct {
	Reliability           int
	Quality               int
	Accessibility         int
	Overall               int
	Confidence            model.Confidence
	Status                model.Status
	WeightedObservations  int
	ObservationPeriodDays float64
	FirstSeen             int64
}

// Scorer computes scores by reading probe and telemetry history out of
// a DataStore and consulting jurisdiction lookup tables.
type Scorer struct {
	store                      store.DataStore
	freedom                    geo.FreedomTable
	alliance                   geo.AllianceTable
	qualifyingMonitorMinRelays int
	probeWindow                time.Duration
}

// New builds a Scorer. qualifyingMonitorMinRelays <= 0 falls back to
// QualifyingMonitorMinRelays.
func New(ds store.DataStore, freedom geo.FreedomTable, alliance geo.AllianceTable, qualifyingMonitorMinRelays int, probeWindow time.Duration) *Scorer {
	if qualifyingMonitorMinRelays <= 0 {
		qualifyingMonitorMinRelays = QualifyingMonitorMinRelays
	}
	if probeWindow <= 0 {
		probeWindow = 30 * 24 * time.Hour
	}
	return &Scorer{
		store:                      ds,
		freedom:                    freedom,
		alliance:                   alliance,
		qualifyingMonitorMinRelays: qualifyingMonitorMinRelays,
		probeWindow:                probeWindow,
	}
}

// Score runs the full reliability/quality/accessibility/confidence
// pipeline for one relay. latestNIP11 is the NIP-11 document from the
// most recent probe, if any; jurisdiction and operator are the results
// of the geo and operator-resolution collaborators.
func (s *Scorer) Score(ctx context.Context, relayURL string, latestNIP11 *model.NIP11Info, operator model.OperatorResolution, jurisdiction model.JurisdictionInfo) (Result, error) {
	probes, err := s.store.GetProbes(ctx, relayURL, s.probeWindow)
	if err != nil {
		return Result{}, err
	}
	telemetry, err := s.store.GetTelemetryStats(ctx, relayURL)
	if err != nil {
		return Result{}, err
	}

	reliability, err := s.scoreReliability(ctx, relayURL, probes, telemetry)
	if err != nil {
		return Result{}, err
	}

	quality := ComputeQuality(
		ComputePolicyClarityScore(latestNIP11),
		ComputeSecurityScore(relayURL),
		ComputeOperatorScore(operator),
	)

	accessibility := ComputeAccessibility(
		ComputeBarriersScore(latestNIP11),
		ComputeLimitRestrictivenessScore(latestNIP11),
		ComputeJurisdictionScore(jurisdiction.CountryCode, s.freedom),
		ComputeSurveillanceScore(jurisdiction.CountryCode, s.alliance),
	)

	var latestProbe *model.ProbeResult
	if len(probes) > 0 {
		latestProbe = &probes[len(probes)-1]
	}

	effectiveReliability := reliability
	if latestProbe != nil && !latestProbe.Reachable {
		effectiveReliability = ComputeUptimeScore(probes)
		if effectiveReliability > 50 {
			effectiveReliability = 50
		}
	}
	overall := ComputeOverallScore(effectiveReliability, quality, accessibility)

	periodDays := observationPeriodDays(probes, telemetry)
	weightedObs := ComputeWeightedObservations(len(probes), len(telemetry.Metrics), len(telemetry.MonitorLatest), periodDays)
	confidence := ComputeConfidence(weightedObs)
	status := ComputeStatus(latestProbe != nil && latestProbe.Reachable, latestProbe != nil, weightedObs)

	return Result{
		Reliability:           reliability,
		Quality:               quality,
		Accessibility:         accessibility,
		Overall:               overall,
		Confidence:            confidence,
		Status:                status,
		WeightedObservations:  weightedObs,
		ObservationPeriodDays: periodDays,
		FirstSeen:             firstSeen(probes, telemetry),
	}, nil
}

func (s *Scorer) scoreReliability(ctx context.Context, relayURL string, probes []model.ProbeResult, telemetry model.TelemetryStats) (int, error) {
	uptime := ComputeUptimeScore(probes)
	recovery := ComputeRecoveryScore(probes)
	consistency := ComputeConsistencyScore(probes)

	latencyInputs, err := s.qualifyingMonitorLatencyInputs(ctx, relayURL, telemetry)
	if err != nil {
		return 0, err
	}

	var fallbackMS *int64
	for i := len(probes) - 1; i >= 0; i-- {
		if probes[i].ReadTime != nil {
			fallbackMS = probes[i].ReadTime
			break
		}
		if probes[i].ConnectTime != nil {
			fallbackMS = probes[i].ConnectTime
			break
		}
	}
	latency := ComputeLatencyScore(latencyInputs, fallbackMS)

	return ComputeReliability(uptime, recovery, consistency, latency), nil
}

// qualifyingMonitorLatencyInputs fans out, concurrently, one goroutine
// per monitor that has reported on this relay: a DataStore call to check
// qualification and, for a qualifying monitor, a second one to build its
// peer latency set.
func (s *Scorer) qualifyingMonitorLatencyInputs(ctx context.Context, relayURL string, telemetry model.TelemetryStats) ([]MonitorLatencyInputs, error) {
	if len(telemetry.MonitorLatest) == 0 {
		return nil, nil
	}

	type indexed struct {
		idx    int
		inputs MonitorLatencyInputs
		ok     bool
	}

	monitors := make([]string, 0, len(telemetry.MonitorLatest))
	for pubkey := range telemetry.MonitorLatest {
		monitors = append(monitors, pubkey)
	}

	results := make([]indexed, len(monitors))
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, pubkey := range monitors {
		i, pubkey := i, pubkey
		g.Go(func() error {
			count, err := s.store.GetMonitorTrackedRelayCount(gctx, pubkey)
			if err != nil {
				return err
			}
			if count < s.qualifyingMonitorMinRelays {
				return nil
			}

			allLatest, err := s.store.GetMonitorLatestForAllRelays(gctx, pubkey)
			if err != nil {
				return err
			}

			mine := telemetry.MonitorLatest[pubkey]
			in := MonitorLatencyInputs{ConnectMS: mine.RTTOpen, ReadMS: mine.RTTRead}
			for peerURL, metric := range allLatest {
				if peerURL == relayURL {
					continue
				}
				if metric.RTTOpen != nil {
					in.ConnectPeers = append(in.ConnectPeers, *metric.RTTOpen)
				}
				if metric.RTTRead != nil {
					in.ReadPeers = append(in.ReadPeers, *metric.RTTRead)
				}
			}

			mu.Lock()
			results[i] = indexed{idx: i, inputs: in, ok: true}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]MonitorLatencyInputs, 0, len(results))
	for _, r := range results {
		if r.ok {
			out = append(out, r.inputs)
		}
	}
	return out, nil
}

func observationPeriodDays(probes []model.ProbeResult, telemetry model.TelemetryStats) float64 {
	first := firstSeen(probes, telemetry)
	if first == 0 {
		return 0
	}
	days := float64(time.Now().Unix()-first) / 86400
	if days < 0 {
		return 0
	}
	return days
}

func firstSeen(probes []model.ProbeResult, telemetry model.TelemetryStats) int64 {
	var first int64
	if len(probes) > 0 {
		first = probes[0].Timestamp
	}
	for _, m := range telemetry.Metrics {
		if first == 0 || m.Timestamp < first {
			first = m.Timestamp
		}
	}
	return first
}
