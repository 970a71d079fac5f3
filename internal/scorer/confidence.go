package scorer

import (
	"math"

	"github.com/relaywatch/scoutd/internal/model"
)

// ComputeWeightedObservations implements spec.md §4.4's weighted
// observation-count formula. Probe observations count at face value;
// telemetry observations are bonused by how many distinct monitors
// corroborate them and by how long the relay has been under
// observation, up to a 30-day cap.
func ComputeWeightedObservations(probeCount, telemetryCount, monitors int, periodDays float64) int {
	monitorBonus := 1 + float64(monitors)/10
	timeFactor := 1 + math.Min(30, periodDays)/30
	telemetryContribution := float64(telemetryCount) * monitorBonus * timeFactor
	return int(math.Round(float64(probeCount) + telemetryContribution))
}

// ComputeConfidence buckets a weighted-observation count per spec.md
// §4.4's thresholds.
func ComputeConfidence(weightedObservations int) model.Confidence {
	switch {
	case weightedObservations < 100:
		return model.ConfidenceLow
	case weightedObservations < 500:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceHigh
	}
}

// ComputeStatus determines the headline status of an assertion: an
// unreachable latest probe takes priority over the observation-count
// check, which in turn takes priority over a plain "evaluated".
func ComputeStatus(latestProbeReachable bool, hasProbe bool, weightedObservations int) model.Status {
	if hasProbe && !latestProbeReachable {
		return model.StatusUnreachable
	}
	if weightedObservations < 10 {
		return model.StatusInsufficientData
	}
	return model.StatusEvaluated
}

// ComputeOverallScore implements spec.md §4.4's final blend. When the
// latest probe is unreachable, callers pass effectiveReliability =
// min(50, historicalUptimePercent) while still recording the computed
// reliability in the published assertion.
func ComputeOverallScore(effectiveReliability, quality, accessibility int) int {
	return clampRound(0.40*float64(effectiveReliability) + 0.35*float64(quality) + 0.25*float64(accessibility))
}
