package assertion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaywatch/scoutd/internal/model"
	"github.com/relaywatch/scoutd/internal/scorer"
)

func TestBuildDerivesOpenPolicyFromOpenAccess(t *testing.T) {
	probes := []model.ProbeResult{{AccessLevel: model.AccessOpen, RelayType: model.RelayTypeGeneral}}
	a := Build("wss://relay.example.com", probes, scorer.Result{Status: model.StatusEvaluated}, model.OperatorResolution{}, model.JurisdictionInfo{}, AlgorithmMeta{Version: "v1"})
	assert.Equal(t, model.PolicyOpen, a.Policy)
	assert.Equal(t, 90, a.PolicyConfidence)
}

func TestBuildDerivesSpecializedPolicy(t *testing.T) {
	probes := []model.ProbeResult{{RelayType: model.RelayTypeSpecialized}}
	a := Build("wss://relay.example.com", probes, scorer.Result{}, model.OperatorResolution{}, model.JurisdictionInfo{}, AlgorithmMeta{})
	assert.Equal(t, model.PolicySpecialized, a.Policy)
}

func TestBuildCarriesOperatorFieldsWhenPresent(t *testing.T) {
	pk := "abc123"
	trust := 77
	op := model.OperatorResolution{OperatorPubkey: &pk, Method: model.VerifyDNS, Confidence: 80, TrustScore: &trust}
	a := Build("wss://relay.example.com", nil, scorer.Result{}, op, model.JurisdictionInfo{}, AlgorithmMeta{})
	require.NotNil(t, a.OperatorPubkey)
	assert.Equal(t, pk, *a.OperatorPubkey)
	assert.Equal(t, model.VerifyDNS, a.OperatorVerified)
	require.NotNil(t, a.OperatorConfidence)
	assert.Equal(t, 80, *a.OperatorConfidence)
	require.NotNil(t, a.OperatorTrust)
	assert.Equal(t, 77, *a.OperatorTrust)
}

func TestBuildOmitsOperatorFieldsWhenAbsent(t *testing.T) {
	a := Build("wss://relay.example.com", nil, scorer.Result{}, model.OperatorResolution{}, model.JurisdictionInfo{}, AlgorithmMeta{})
	assert.Nil(t, a.OperatorPubkey)
}

func TestFormatObservationPeriod(t *testing.T) {
	assert.Equal(t, "<1d", formatObservationPeriod(0.5))
	assert.Equal(t, "5d", formatObservationPeriod(5.9))
}

func TestToUnsignedEventAndFromEventRoundTrip(t *testing.T) {
	pk := "abc123"
	trust := 42
	confidence := 80
	original := model.RelayAssertion{
		RelayURL:           "wss://relay.example.com",
		Status:             model.StatusEvaluated,
		Score:              72,
		Reliability:        80,
		Quality:            70,
		Accessibility:      60,
		Confidence:         model.ConfidenceMedium,
		Observations:       150,
		ObservationPeriod:  "14d",
		FirstSeen:          1700000000,
		OperatorPubkey:     &pk,
		OperatorVerified:   model.VerifyNIP11Signed,
		OperatorConfidence: &confidence,
		OperatorTrust:      &trust,
		Policy:             model.PolicyOpen,
		PolicyConfidence:   90,
		CountryCode:        "DE",
		Region:             "EU",
		IsHosting:          true,
		Network:            model.NetworkClearnet,
		Algorithm:          "v1",
		AlgorithmURL:       "https://example.com/algo",
	}

	ev := ToUnsignedEvent(original, 1700000100)
	assert.Equal(t, AssertionKind, ev.Kind)
	assert.Equal(t, "", ev.Content)

	roundTripped, err := FromEvent(&ev)
	require.NoError(t, err)
	assert.Equal(t, original, roundTripped)
}

func TestToUnsignedEventOmitsAbsentOptionalTags(t *testing.T) {
	a := model.RelayAssertion{RelayURL: "wss://relay.example.com", Status: model.StatusUnreachable}
	ev := ToUnsignedEvent(a, 1700000000)
	for _, tag := range ev.Tags {
		assert.NotEqual(t, "operator", tag[0])
		assert.NotEqual(t, "country_code", tag[0])
	}
}
