package scorer

// ComputeLatencyPercentileScore ranks value against peers, where lower
// latency is better: the fastest value in the combined set scores 100,
// the slowest scores 0. With no value or no peers to compare against,
// the rank is indeterminate and spec.md §4.4 calls for the neutral
// default of 50.
func ComputeLatencyPercentileScore(value *int64, peers []int64) int {
	if value == nil || len(peers) == 0 {
		return 50
	}

	all := make([]int64, 0, len(peers)+1)
	all = append(all, peers...)
	all = append(all, *value)

	n := len(all)
	if n == 1 {
		return 100
	}

	slowerOrEqual := 0
	for _, v := range all {
		if v >= *value {
			slowerOrEqual++
		}
	}
	return clampRound(100 * float64(slowerOrEqual-1) / float64(n-1))
}

// MonitorLatencyInputs bundles one qualifying monitor's latest readings
// for the relay under evaluation alongside its readings for every other
// relay it tracks, so connect and read times can each be percentile
// ranked against that monitor's peer set independently.
type MonitorLatencyInputs struct {
	ConnectMS      *int64
	ConnectPeers   []int64
	ReadMS         *int64
	ReadPeers      []int64
}

// combinedLatencyScore blends the connect and read percentile scores for
// a single monitor: 30% weight on connect, 70% on read, per spec.md
// §4.4. When the monitor never observed a read RTT (write-only or
// unreachable-for-read relay), the connect score alone stands in.
func combinedLatencyScore(in MonitorLatencyInputs) int {
	connectScore := ComputeLatencyPercentileScore(in.ConnectMS, in.ConnectPeers)
	if in.ReadMS == nil {
		return connectScore
	}
	readScore := ComputeLatencyPercentileScore(in.ReadMS, in.ReadPeers)
	return clampRound(0.30*float64(connectScore) + 0.70*float64(readScore))
}

// ComputeLatencyScore averages combinedLatencyScore across every
// qualifying monitor. With no qualifying monitor, it falls back to a
// tiered score on the absolute measured latency (ms), since there is no
// peer set to rank against.
func ComputeLatencyScore(monitors []MonitorLatencyInputs, fallbackAbsoluteMS *int64) int {
	if len(monitors) == 0 {
		return tieredAbsoluteLatencyScore(fallbackAbsoluteMS)
	}
	var total float64
	for _, m := range monitors {
		total += float64(combinedLatencyScore(m))
	}
	return clampRound(total / float64(len(monitors)))
}

// tieredAbsoluteLatencyScore scores an isolated relay (no peer monitors
// to rank against) by absolute round-trip time, per spec.md §4.4's
// tiered fallback table.
func tieredAbsoluteLatencyScore(ms *int64) int {
	if ms == nil {
		return 50
	}
	switch {
	case *ms <= 50:
		return 100
	case *ms <= 100:
		return 95
	case *ms <= 150:
		return 90
	case *ms <= 200:
		return 85
	case *ms <= 300:
		return 75
	case *ms <= 500:
		return 60
	case *ms <= 750:
		return 40
	case *ms <= 1000:
		return 20
	default:
		return 0
	}
}
