package scorer

import (
	"math"
	"sort"

	"github.com/relaywatch/scoutd/internal/model"
)

// ComputeUptimeScore implements spec.md §4.4: round(100 * reachable /
// total), 0 for an empty probe set.
func ComputeUptimeScore(probes []model.ProbeResult) int {
	if len(probes) == 0 {
		return 0
	}
	reachable := 0
	for _, p := range probes {
		if p.Reachable {
			reachable++
		}
	}
	return clampRound(100 * float64(reachable) / float64(len(probes)))
}

// outage is a contiguous run of unreachable probes bounded by reachable
// probes on both sides; a run at the start or end of the series is not
// recorded as an outage.
type outage struct {
	startTS, endTS int64
}

// ComputeRecoveryScore groups consecutive-by-timestamp probes into
// outage intervals and scores the average outage duration per spec.md
// §4.4's piecewise function.
func ComputeRecoveryScore(probes []model.ProbeResult) int {
	if len(probes) < 2 {
		return 80
	}

	sorted := make([]model.ProbeResult, len(probes))
	copy(sorted, probes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	var outages []outage
	var outageStart int64
	inOutage := false
	for i, p := range sorted {
		if !p.Reachable {
			if !inOutage && i > 0 && sorted[i-1].Reachable {
				inOutage = true
				outageStart = sorted[i-1].Timestamp
			}
			continue
		}
		if inOutage {
			outages = append(outages, outage{startTS: outageStart, endTS: p.Timestamp})
			inOutage = false
		}
	}
	// An outage that never recovers by the end of the series is not
	// bounded by a reachable probe on both sides; it is excluded from the
	// average, matching "bounded by reachable probes".

	if len(outages) == 0 {
		return 100
	}

	var total float64
	for _, o := range outages {
		total += float64(o.endTS - o.startTS)
	}
	avg := total / float64(len(outages))

	switch {
	case avg <= 600:
		return scaleLinear(avg, 0, 600, 100, 90)
	case avg <= 1800:
		return scaleLinear(avg, 600, 1800, 90, 75)
	case avg <= 7200:
		return scaleLinear(avg, 1800, 7200, 75, 50)
	default:
		score := 50 * (1 - (avg-7200)/14400)
		if score < 0 {
			score = 0
		}
		return clampRound(score)
	}
}

// scaleLinear linearly interpolates x from [xlo,xhi] into [ylo,yhi]. It
// is used for the piecewise bands in ComputeRecoveryScore, where ylo is
// the score at xlo and yhi is the score at xhi (ylo may be greater than
// yhi, since score decreases as outage duration grows).
func scaleLinear(x, xlo, xhi, ylo, yhi float64) int {
	if xhi == xlo {
		return clampRound(ylo)
	}
	t := (x - xlo) / (xhi - xlo)
	return clampRound(ylo + t*(yhi-ylo))
}

// ComputeConsistencyScore derives a score from the IQR of reachable
// probes' connect times divided by their median. A constant added to
// every sample leaves the IQR unchanged but raises the median, so the
// score is not invariant to such a shift: it rises as the shift grows.
func ComputeConsistencyScore(probes []model.ProbeResult) int {
	var samples []float64
	for _, p := range probes {
		if p.Reachable && p.ConnectTime != nil {
			samples = append(samples, float64(*p.ConnectTime))
		}
	}
	if len(samples) < 3 {
		return 70
	}
	sort.Float64s(samples)

	p25 := percentile(samples, 25)
	p50 := percentile(samples, 50)
	p75 := percentile(samples, 75)

	denom := math.Max(1, p50)
	iqrRatio := (p75 - p25) / denom
	return clamp(clampRound(100 - 50*iqrRatio))
}

// percentile computes the p-th percentile of sorted values using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// ComputeReliability combines uptime, recovery, consistency, and latency
// with the 40/20/20/20 weights from spec.md §4.4.
func ComputeReliability(uptime, recovery, consistency, latency int) int {
	return clampRound(0.40*float64(uptime) + 0.20*float64(recovery) + 0.20*float64(consistency) + 0.20*float64(latency))
}
