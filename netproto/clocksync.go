package netproto

import (
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// ClockSample is the three-timestamp Clocksync body spec.md §6 defines:
// `float64 t0, t1, t2` — the requester's send time, the responder's
// receive time, and the responder's send time, in that order.
type ClockSample struct {
	T0, T1, T2 float64
}

// EncodeClockSample writes the full Clocksync message.
func EncodeClockSample(w *wire.Writer, tick uint32, s ClockSample) {
	EncodeHeader(w, TypeClocksync, tick)
	w.WriteFloat64(s.T0)
	w.WriteFloat64(s.T1)
	w.WriteFloat64(s.T2)
}

// DecodeClockSample reads a Clocksync body.
func DecodeClockSample(r *wire.Reader) (ClockSample, error) {
	t0, err := r.ReadFloat64()
	if err != nil {
		return ClockSample{}, err
	}
	t1, err := r.ReadFloat64()
	if err != nil {
		return ClockSample{}, err
	}
	t2, err := r.ReadFloat64()
	if err != nil {
		return ClockSample{}, err
	}
	return ClockSample{T0: t0, T1: t1, T2: t2}, nil
}

// EstimateOffset applies the standard NTP four-timestamp formula to a
// Clocksync exchange plus the requester's local receipt time t3, yielding
// the estimated clock offset (responder minus requester) and round-trip
// time, both in seconds.
func EstimateOffset(s ClockSample, t3 float64) (offsetSeconds, rttSeconds float64) {
	offsetSeconds = ((s.T1 - s.T0) + (s.T2 - t3)) / 2
	rttSeconds = (t3 - s.T0) - (s.T2 - s.T1)
	return offsetSeconds, rttSeconds
}

// PeerClock is the running offset/RTT estimate for one peer connection,
// refreshed by every Clocksync round trip.
type PeerClock struct {
	OffsetSeconds float64
	RTTSeconds    float64
	UpdatedAtTick uint64
}

// ClockSyncState tracks PeerClock per peer domain. A host can install it as
// a resource value (spec.md §5's singleton-component-on-the-resource-entity
// pattern) so systems can read the per-peer offset when timestamping
// locally-originated commands; nothing in this module installs it.
type ClockSyncState struct {
	peers map[ecsentity.DomainID]PeerClock
}

// NewClockSyncState creates an empty clock-sync tracker.
func NewClockSyncState() *ClockSyncState {
	return &ClockSyncState{peers: make(map[ecsentity.DomainID]PeerClock)}
}

// Update records a fresh Clocksync round trip with peer, replacing its
// previous estimate.
func (c *ClockSyncState) Update(peer ecsentity.DomainID, s ClockSample, t3 float64, tick uint64) {
	offset, rtt := EstimateOffset(s, t3)
	c.peers[peer] = PeerClock{OffsetSeconds: offset, RTTSeconds: rtt, UpdatedAtTick: tick}
}

// Estimate returns the most recent PeerClock recorded for peer, if any.
func (c *ClockSyncState) Estimate(peer ecsentity.DomainID) (PeerClock, bool) {
	pc, ok := c.peers[peer]
	return pc, ok
}
