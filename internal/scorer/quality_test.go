package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaywatch/scoutd/internal/model"
)

func TestComputePolicyClarityScoreMissingNIP11(t *testing.T) {
	assert.Equal(t, 50, ComputePolicyClarityScore(nil))
}

func TestComputePolicyClarityScoreNoIdentityCapsAt50(t *testing.T) {
	info := &model.NIP11Info{Contact: "operator@example.com"}
	assert.LessOrEqual(t, ComputePolicyClarityScore(info), 50)
}

func TestComputePolicyClarityScoreNoContactCapsAt70(t *testing.T) {
	info := &model.NIP11Info{Name: "relay", Description: "a relay"}
	assert.LessOrEqual(t, ComputePolicyClarityScore(info), 70)
}

func TestComputePolicyClarityScoreFullyDocumented(t *testing.T) {
	info := &model.NIP11Info{
		Name:        "relay",
		Description: "a relay",
		Contact:     "operator@example.com",
		Software:    "strfry",
		Version:     "1.0",
		Limitation:  &model.Limitation{MaxMessageLength: 64000},
	}
	score := ComputePolicyClarityScore(info)
	assert.Greater(t, score, 85)
}

func TestComputePolicyClarityScorePaymentRequiredWithoutFeesPenalized(t *testing.T) {
	withFees := &model.NIP11Info{
		Name: "r", Description: "d", Contact: "c",
		Limitation: &model.Limitation{PaymentRequired: true},
		Fees:       &model.Fees{Admission: []map[string]any{{"amount": 1000}}},
	}
	withoutFees := &model.NIP11Info{
		Name: "r", Description: "d", Contact: "c",
		Limitation: &model.Limitation{PaymentRequired: true},
	}
	assert.Greater(t, ComputePolicyClarityScore(withFees), ComputePolicyClarityScore(withoutFees))
}

func TestComputePolicyClarityScorePostedPolicyURLBonus(t *testing.T) {
	withLink := &model.NIP11Info{Name: "r", Description: "d", PostedPolicy: "see https://relay.example.com/policy for details"}
	withoutLink := &model.NIP11Info{Name: "r", Description: "d", PostedPolicy: "writers must behave"}
	assert.Greater(t, ComputePolicyClarityScore(withLink), ComputePolicyClarityScore(withoutLink))
}

func TestLinksToPolicyDocumentRejectsLocalAndPrivate(t *testing.T) {
	assert.False(t, linksToPolicyDocument("policy hosted at http://localhost/policy"))
	assert.False(t, linksToPolicyDocument("policy hosted at http://192.168.1.1/policy"))
	assert.False(t, linksToPolicyDocument(""))
	assert.True(t, linksToPolicyDocument("policy: https://example.com/terms"))
}

func TestComputeSecurityScore(t *testing.T) {
	assert.Equal(t, 100, ComputeSecurityScore("wss://relay.example.com"))
	assert.Equal(t, 0, ComputeSecurityScore("ws://relay.example.com"))
	assert.Equal(t, 50, ComputeSecurityScore("unknown"))
}

func TestComputeOperatorScoreNoOperator(t *testing.T) {
	assert.Equal(t, 50, ComputeOperatorScore(model.OperatorResolution{}))
}

func TestComputeOperatorScoreConfidenceOnly(t *testing.T) {
	pk := "abc"
	res := model.OperatorResolution{OperatorPubkey: &pk, Confidence: 80}
	assert.Equal(t, 80, ComputeOperatorScore(res))
}

func TestComputeOperatorScoreBlendsTrust(t *testing.T) {
	pk := "abc"
	trust := 40
	res := model.OperatorResolution{OperatorPubkey: &pk, Confidence: 80, TrustScore: &trust}
	assert.Equal(t, 60, ComputeOperatorScore(res))
}
