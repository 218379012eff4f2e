package netproto

import (
	"testing"

	"github.com/evalgo-forge/ecsreplica/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockSampleRoundTrip(t *testing.T) {
	w := wire.NewWriter(32)
	EncodeClockSample(w, 10, ClockSample{T0: 1.5, T1: 1.6, T2: 1.7})

	r := wire.NewReader(w.Bytes())
	hdr, err := DecodeHeader(r)
	require.NoError(t, err)
	assert.Equal(t, TypeClocksync, hdr.Type)

	s, err := DecodeClockSample(r)
	require.NoError(t, err)
	assert.Equal(t, ClockSample{T0: 1.5, T1: 1.6, T2: 1.7}, s)
}

func TestEstimateOffsetZeroRTTMeansEqualClocks(t *testing.T) {
	// A perfectly synchronized, zero-latency exchange: t0==t1==t2==t3.
	offset, rtt := EstimateOffset(ClockSample{T0: 100, T1: 100, T2: 100}, 100)
	assert.Equal(t, 0.0, offset)
	assert.Equal(t, 0.0, rtt)
}

func TestEstimateOffsetDetectsPositiveSkew(t *testing.T) {
	// Responder's clock reads 5 seconds ahead; instantaneous (zero-RTT) exchange.
	offset, rtt := EstimateOffset(ClockSample{T0: 100, T1: 105, T2: 105}, 100)
	assert.Equal(t, 5.0, offset)
	assert.Equal(t, 0.0, rtt)
}

func TestClockSyncStateTracksPerPeerEstimates(t *testing.T) {
	state := NewClockSyncState()
	_, ok := state.Estimate(1)
	assert.False(t, ok)

	state.Update(1, ClockSample{T0: 0, T1: 1, T2: 1}, 2, 50)
	pc, ok := state.Estimate(1)
	require.True(t, ok)
	assert.Equal(t, uint64(50), pc.UpdatedAtTick)
}
