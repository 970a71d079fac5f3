package prober

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaywatch/scoutd/internal/model"
)

func TestClassifyRelayTypeUnknownWithoutNIP11(t *testing.T) {
	assert.Equal(t, model.RelayTypeUnknown, classifyRelayType(nil))
}

func TestClassifyRelayTypeNIP46(t *testing.T) {
	info := &model.NIP11Info{SupportedNIPs: []int{46}}
	assert.Equal(t, model.RelayTypeNIP46, classifyRelayType(info))
}

func TestClassifyRelayTypeSpecializedRestrictedWrites(t *testing.T) {
	info := &model.NIP11Info{
		SupportedNIPs: []int{1, 2, 11, 42, 50, 65},
		Limitation:    &model.Limitation{RestrictedWrites: true},
	}
	assert.Equal(t, model.RelayTypeSpecialized, classifyRelayType(info))
}

func TestClassifyRelayTypeSpecializedNarrowNIPs(t *testing.T) {
	info := &model.NIP11Info{SupportedNIPs: []int{1, 11}}
	assert.Equal(t, model.RelayTypeSpecialized, classifyRelayType(info))
}

func TestClassifyRelayTypeGeneral(t *testing.T) {
	info := &model.NIP11Info{SupportedNIPs: []int{1, 2, 9, 11, 12, 16, 20, 22, 28, 33, 40}}
	assert.Equal(t, model.RelayTypeGeneral, classifyRelayType(info))
}

func TestClassifyAccessFromClosedReason(t *testing.T) {
	assert.Equal(t, model.AccessAuthRequired, classifyAccessFromClosedReason("auth-required: please authenticate"))
	assert.Equal(t, model.AccessPaymentRequired, classifyAccessFromClosedReason("payment-required: send sats"))
	assert.Equal(t, model.AccessRestricted, classifyAccessFromClosedReason("restricted: not allowed"))
	assert.Equal(t, model.AccessUnknown, classifyAccessFromClosedReason("error: something else"))
}

func TestConvertSupportedNIPsHandlesMixedNumericTypes(t *testing.T) {
	assert.Equal(t, []int{1, 11, 42}, convertSupportedNIPs([]any{1, int64(11), float64(42)}))
}

func TestConvertSupportedNIPsEmpty(t *testing.T) {
	assert.Nil(t, convertSupportedNIPs(nil))
}

func TestProbeNormalizesInvalidURL(t *testing.T) {
	p := New(DefaultConfig())
	result := p.Probe(context.Background(), "wss://%zz")
	assert.False(t, result.Reachable)
	assert.Contains(t, result.Error, "normalize")
	assert.Equal(t, model.RelayTypeUnknown, result.RelayType)
}
