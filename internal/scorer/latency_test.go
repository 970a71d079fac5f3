package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeLatencyPercentileScoreEmptyPeers(t *testing.T) {
	v := int64(100)
	assert.Equal(t, 50, ComputeLatencyPercentileScore(&v, nil))
}

func TestComputeLatencyPercentileScoreNilValue(t *testing.T) {
	assert.Equal(t, 50, ComputeLatencyPercentileScore(nil, []int64{10, 20, 30}))
}

func TestComputeLatencyPercentileScoreFastest(t *testing.T) {
	v := int64(10)
	assert.Equal(t, 100, ComputeLatencyPercentileScore(&v, []int64{20, 30, 40}))
}

func TestComputeLatencyPercentileScoreSlowest(t *testing.T) {
	v := int64(40)
	assert.Equal(t, 0, ComputeLatencyPercentileScore(&v, []int64{10, 20, 30}))
}

func TestComputeLatencyPercentileOrderPreserving(t *testing.T) {
	peers := []int64{50, 80, 120, 200}
	fast := int64(30)
	slow := int64(60)
	assert.GreaterOrEqual(t, ComputeLatencyPercentileScore(&fast, peers), ComputeLatencyPercentileScore(&slow, peers))
}

func TestComputeLatencyScoreFallsBackToTieredAbsolute(t *testing.T) {
	v := int64(40)
	assert.Equal(t, 100, ComputeLatencyScore(nil, &v))
	v = 1500
	assert.Equal(t, 0, ComputeLatencyScore(nil, &v))
}

func TestComputeLatencyScoreNoInputsAtAll(t *testing.T) {
	assert.Equal(t, 50, ComputeLatencyScore(nil, nil))
}

func TestCombinedLatencyScoreUsesConnectOnlyWithoutRead(t *testing.T) {
	v := int64(10)
	in := MonitorLatencyInputs{ConnectMS: &v, ConnectPeers: []int64{20, 30, 40}}
	assert.Equal(t, 100, combinedLatencyScore(in))
}
