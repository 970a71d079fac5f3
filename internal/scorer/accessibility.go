package scorer

import (
	"sort"

	"github.com/relaywatch/scoutd/internal/geo"
	"github.com/relaywatch/scoutd/internal/model"
)

// diminishingMultipliers weights the sorted (descending) raw barrier
// penalties so that stacking many barriers doesn't compound as harshly
// as their raw sum, per spec.md §4.4.
var diminishingMultipliers = []float64{1.0, 0.5, 0.3, 0.2}

func multiplierAt(i int) float64 {
	if i < len(diminishingMultipliers) {
		return diminishingMultipliers[i]
	}
	return diminishingMultipliers[len(diminishingMultipliers)-1]
}

// ComputeBarriersScore starts from 100 and subtracts diminishing-returns
// weighted penalties for each barrier a relay's NIP-11 limitation
// advertises. restricted_writes is deliberately excluded: it is treated
// as specialization, not a barrier.
func ComputeBarriersScore(info *model.NIP11Info) int {
	if info == nil {
		return 70
	}
	lim := info.Limitation

	var raw []float64
	if lim != nil {
		if lim.AuthRequired {
			raw = append(raw, 30)
		}
		if lim.PaymentRequired {
			raw = append(raw, 40)
		}
		if lim.MinPowDifficulty > 0 {
			d := float64(lim.MinPowDifficulty)
			if d > 15 {
				d = 15
			}
			raw = append(raw, d)
		}
	}
	if len(raw) == 0 {
		return 100
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(raw)))
	var penalty float64
	for i, p := range raw {
		penalty += p * multiplierAt(i)
	}
	return clamp(clampRound(100 - penalty))
}

// limitBand is one threshold/deduction pair from the spec.md §6 table;
// bands are checked narrowest-threshold-first.
type limitBand struct {
	lessThan int64
	penalty  int
}

var (
	maxSubscriptionsBands = []limitBand{{5, 15}, {10, 5}}
	maxContentLengthBands = []limitBand{{1000, 15}, {5000, 5}}
	maxMessageLengthBands = []limitBand{{10000, 10}, {32000, 3}}
	maxFiltersBands       = []limitBand{{5, 10}, {10, 3}}
	maxEventTagsBands     = []limitBand{{50, 5}}
)

// ComputeLimitRestrictivenessScore subtracts a deduction for each
// abnormally-tight NIP-11 limit, per spec.md §6's threshold table.
func ComputeLimitRestrictivenessScore(info *model.NIP11Info) int {
	if info == nil {
		return 80
	}
	lim := info.Limitation
	if lim == nil {
		return 100
	}
	score := 100
	score -= bandPenalty(lim.MaxSubscriptions, maxSubscriptionsBands)
	score -= bandPenalty(lim.MaxContentLength, maxContentLengthBands)
	score -= bandPenalty(lim.MaxMessageLength, maxMessageLengthBands)
	score -= bandPenalty(lim.MaxFilters, maxFiltersBands)
	score -= bandPenalty(lim.MaxEventTags, maxEventTagsBands)
	return clamp(score)
}

// bandPenalty applies the tightest (smallest lessThan) matching band. A
// limit of 0 means "not advertised" and is not penalized.
func bandPenalty(value int64, bands []limitBand) int {
	if value <= 0 {
		return 0
	}
	for _, b := range bands {
		if value < b.lessThan {
			return b.penalty
		}
	}
	return 0
}

// ComputeJurisdictionScore converts a Freedom-House-style 0..100 score
// for the relay's resolved country into an accessibility penalty, per
// spec.md §4.4's free/partly-free/not-free bands.
func ComputeJurisdictionScore(countryCode string, table geo.FreedomTable) int {
	if countryCode == "" || table == nil {
		return 75
	}
	freedom, known := table.FreedomScore(countryCode)
	if !known {
		return 75
	}

	var penalty float64
	switch {
	case freedom >= 70:
		penalty = 0
	case freedom >= 40:
		t := float64(69-freedom) / 29
		penalty = 10 * t
	default:
		t := float64(39-freedom) / 39
		penalty = 10 + 10*t
	}
	return clamp(clampRound(100 - penalty))
}

// ComputeSurveillanceScore looks up the intelligence-sharing alliance of
// the relay's resolved country, per spec.md §4.4's fixed score table.
func ComputeSurveillanceScore(countryCode string, table geo.AllianceTable) int {
	if countryCode == "" || table == nil {
		return 85
	}
	switch table.AllianceOf(countryCode) {
	case geo.AlliancePrivacyFriendly:
		return 100
	case geo.AllianceNonAligned:
		return 90
	case geo.AllianceFourteenEyes:
		return 80
	case geo.AllianceNineEyes:
		return 75
	case geo.AllianceFiveEyes:
		return 70
	default:
		return 85
	}
}

// ComputeAccessibility combines barriers, limit restrictiveness,
// jurisdiction, and surveillance with the 40/20/20/20 weights from
// spec.md §4.4.
func ComputeAccessibility(barriers, limits, jurisdiction, surveillance int) int {
	return clampRound(0.40*float64(barriers) + 0.20*float64(limits) + 0.20*float64(jurisdiction) + 0.20*float64(surveillance))
}
