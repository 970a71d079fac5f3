// Package assertion builds the externally visible RelayAssertion record
// (spec.md §4.5) out of a relay's latest probe, its scorer output, and
// its operator/jurisdiction collaborators, and converts it to the
// unsigned kind-30385 event form (spec.md §6).
package assertion

import (
	"fmt"
	"strconv"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaywatch/scoutd/internal/model"
	"github.com/relaywatch/scoutd/internal/scorer"
)

const AssertionKind = 30385

// AlgorithmMeta identifies the scoring algorithm version an assertion
// was produced by, carried through to the published event's tags.
type AlgorithmMeta struct {
	Version string
	URL     string
}

// Build is a pure function fusing a relay's latest probe, scorer
// result, operator resolution, and jurisdiction into a RelayAssertion.
// probes must be ordered oldest-first; the last entry is treated as the
// latest probe.
func Build(relayURL string, probes []model.ProbeResult, result scorer.Result, operator model.OperatorResolution, jurisdiction model.JurisdictionInfo, algo AlgorithmMeta) model.RelayAssertion {
	var latest *model.ProbeResult
	if len(probes) > 0 {
		latest = &probes[len(probes)-1]
	}

	policy, policyConfidence := derivePolicy(latest)

	a := model.RelayAssertion{
		RelayURL:          relayURL,
		Status:            result.Status,
		Score:             result.Overall,
		Reliability:       result.Reliability,
		Quality:           result.Quality,
		Accessibility:     result.Accessibility,
		Confidence:        result.Confidence,
		Observations:      result.WeightedObservations,
		ObservationPeriod: formatObservationPeriod(result.ObservationPeriodDays),
		FirstSeen:         result.FirstSeen,
		Policy:            policy,
		PolicyConfidence:  policyConfidence,
		CountryCode:       jurisdiction.CountryCode,
		Region:            jurisdiction.Region,
		IsHosting:         jurisdiction.IsHosting,
		Network:           networkFor(jurisdiction),
		Algorithm:         algo.Version,
		AlgorithmURL:      algo.URL,
	}

	if operator.OperatorPubkey != nil {
		a.OperatorPubkey = operator.OperatorPubkey
		a.OperatorVerified = operator.Method
		confidence := operator.Confidence
		a.OperatorConfidence = &confidence
		a.OperatorTrust = operator.TrustScore
	}

	return a
}

// derivePolicy infers the assertion's headline access policy from the
// latest probe's relayType/accessLevel, since the raw data model has no
// explicit policy field of its own to pass through.
func derivePolicy(latest *model.ProbeResult) (model.Policy, int) {
	if latest == nil {
		return model.PolicyOpen, 0
	}
	if latest.RelayType == model.RelayTypeSpecialized {
		return model.PolicySpecialized, 90
	}
	switch latest.AccessLevel {
	case model.AccessOpen:
		return model.PolicyOpen, 90
	case model.AccessAuthRequired, model.AccessPaymentRequired:
		return model.PolicyCurated, 80
	case model.AccessRestricted:
		return model.PolicyModerated, 70
	default:
		return model.PolicyOpen, 40
	}
}

func networkFor(j model.JurisdictionInfo) model.Network {
	if j.IsTor {
		return model.NetworkTor
	}
	return model.NetworkClearnet
}

func formatObservationPeriod(days float64) string {
	if days < 1 {
		return "<1d"
	}
	return fmt.Sprintf("%dd", int(days))
}

// ToUnsignedEvent converts a RelayAssertion into the unsigned kind-30385
// event form per spec.md §6: empty content, tags emitted in order only
// when the corresponding field is present.
func ToUnsignedEvent(a model.RelayAssertion, createdAt int64) nostr.Event {
	ev := nostr.Event{
		Kind:      AssertionKind,
		CreatedAt: nostr.Timestamp(createdAt),
		Content:   "",
	}

	tags := nostr.Tags{
		{"d", a.RelayURL},
		{"status", string(a.Status)},
	}
	if a.Algorithm != "" {
		tags = append(tags, nostr.Tag{"algorithm", a.Algorithm})
	}
	if a.AlgorithmURL != "" {
		tags = append(tags, nostr.Tag{"algorithm_url", a.AlgorithmURL})
	}
	tags = append(tags,
		nostr.Tag{"score", strconv.Itoa(a.Score)},
		nostr.Tag{"reliability", strconv.Itoa(a.Reliability)},
		nostr.Tag{"quality", strconv.Itoa(a.Quality)},
		nostr.Tag{"accessibility", strconv.Itoa(a.Accessibility)},
		nostr.Tag{"confidence", string(a.Confidence)},
		nostr.Tag{"observations", strconv.Itoa(a.Observations)},
		nostr.Tag{"observation_period", a.ObservationPeriod},
		nostr.Tag{"first_seen", strconv.FormatInt(a.FirstSeen, 10)},
	)
	if a.OperatorPubkey != nil {
		tags = append(tags, nostr.Tag{"operator", *a.OperatorPubkey})
		if a.OperatorVerified != "" {
			tags = append(tags, nostr.Tag{"operator_verified", string(a.OperatorVerified)})
		}
		if a.OperatorConfidence != nil {
			tags = append(tags, nostr.Tag{"operator_confidence", strconv.Itoa(*a.OperatorConfidence)})
		}
		if a.OperatorTrust != nil {
			tags = append(tags, nostr.Tag{"operator_trust", strconv.Itoa(*a.OperatorTrust)})
		}
	}
	tags = append(tags,
		nostr.Tag{"policy", string(a.Policy)},
		nostr.Tag{"policy_confidence", strconv.Itoa(a.PolicyConfidence)},
	)
	if a.CountryCode != "" {
		tags = append(tags, nostr.Tag{"country_code", a.CountryCode})
	}
	if a.Region != "" {
		tags = append(tags, nostr.Tag{"region", a.Region})
	}
	tags = append(tags,
		nostr.Tag{"is_hosting", strconv.FormatBool(a.IsHosting)},
		nostr.Tag{"network", string(a.Network)},
	)

	ev.Tags = tags
	return ev
}

// FromEvent reconstructs a RelayAssertion from a kind-30385 event's
// tags. It is the ToUnsignedEvent round-trip's inverse. The Publisher
// does not call it: material-change detection compares against the
// PublishedAssertionRecord kept in the store.
func FromEvent(ev *nostr.Event) (model.RelayAssertion, error) {
	a := model.RelayAssertion{}
	get := func(name string) (string, bool) {
		for _, tag := range ev.Tags {
			if len(tag) >= 2 && tag[0] == name {
				return tag[1], true
			}
		}
		return "", false
	}

	if v, ok := get("d"); ok {
		a.RelayURL = v
	}
	if v, ok := get("status"); ok {
		a.Status = model.Status(v)
	}
	if v, ok := get("algorithm"); ok {
		a.Algorithm = v
	}
	if v, ok := get("algorithm_url"); ok {
		a.AlgorithmURL = v
	}
	if v, ok := get("score"); ok {
		a.Score = atoi(v)
	}
	if v, ok := get("reliability"); ok {
		a.Reliability = atoi(v)
	}
	if v, ok := get("quality"); ok {
		a.Quality = atoi(v)
	}
	if v, ok := get("accessibility"); ok {
		a.Accessibility = atoi(v)
	}
	if v, ok := get("confidence"); ok {
		a.Confidence = model.Confidence(v)
	}
	if v, ok := get("observations"); ok {
		a.Observations = atoi(v)
	}
	if v, ok := get("observation_period"); ok {
		a.ObservationPeriod = v
	}
	if v, ok := get("first_seen"); ok {
		n, _ := strconv.ParseInt(v, 10, 64)
		a.FirstSeen = n
	}
	if v, ok := get("operator"); ok {
		pk := v
		a.OperatorPubkey = &pk
	}
	if v, ok := get("operator_verified"); ok {
		a.OperatorVerified = model.VerificationMethod(v)
	}
	if v, ok := get("operator_confidence"); ok {
		n := atoi(v)
		a.OperatorConfidence = &n
	}
	if v, ok := get("operator_trust"); ok {
		n := atoi(v)
		a.OperatorTrust = &n
	}
	if v, ok := get("policy"); ok {
		a.Policy = model.Policy(v)
	}
	if v, ok := get("policy_confidence"); ok {
		a.PolicyConfidence = atoi(v)
	}
	if v, ok := get("country_code"); ok {
		a.CountryCode = v
	}
	if v, ok := get("region"); ok {
		a.Region = v
	}
	if v, ok := get("is_hosting"); ok {
		a.IsHosting = v == "true"
	}
	if v, ok := get("network"); ok {
		a.Network = model.Network(v)
	}

	return a, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
