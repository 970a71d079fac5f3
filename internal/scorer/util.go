package scorer

import "math"

// clampRound rounds to the nearest int and clamps to [0, 100].
func clampRound(v float64) int {
	return clamp(int(math.Round(v)))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
