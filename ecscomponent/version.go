package ecscomponent

import "github.com/evalgo-forge/ecsreplica/ecsentity"

// Version is the composite (tick, origin_domain_id) stamp stored alongside
// every component cell. Higher versions win under last-writer-wins: a
// higher tick always wins regardless of domain, and on equal tick the
// higher domain_id wins.
type Version uint64

const domainBits = ecsentity.DomainBits
const domainMask = (uint64(1) << domainBits) - 1

// MakeVersion packs a tick and an origin domain into a composite version.
func MakeVersion(tick uint64, domain ecsentity.DomainID) Version {
	return Version(tick<<domainBits | (uint64(domain) & domainMask))
}

// Tick extracts the tick component of a composite version.
func (v Version) Tick() uint64 { return uint64(v) >> domainBits }

// Domain extracts the origin domain component of a composite version.
func (v Version) Domain() ecsentity.DomainID {
	return ecsentity.DomainID(uint64(v) & domainMask)
}

// Less reports whether v should be overwritten by other under LWW: other's
// tick is strictly greater, or ticks are equal and other's domain is
// strictly greater.
func (v Version) Less(other Version) bool {
	return v < other
}
