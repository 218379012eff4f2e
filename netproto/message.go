// Package netproto implements the binary wire framing spec.md §6 defines:
// Handshake, Clocksync, Transaction, Command, and Snapshot messages, each a
// common header followed by a type-specific body, built on the wire
// package's typed reader/writer and the ecscomponent.Registry serde
// contract. It also carries the peer clock-sync support the distilled spec
// frames only as a wire body (EstimateOffset, ClockSyncState) and the
// command-entity descriptor (CommandSpec) spec.md's design notes describe
// but never formalize as a type.
package netproto

import (
	"fmt"

	"github.com/evalgo-forge/ecsreplica/wire"
)

// Type tags which message body follows the common header, per spec.md §6's
// "uint8 type (1=Handshake 2=Clocksync 3=Transaction 4=Command 5=Snapshot)".
type Type uint8

const (
	TypeHandshake Type = 1
	TypeClocksync Type = 2
	TypeTransaction Type = 3
	TypeCommand Type = 4
	TypeSnapshot Type = 5
)

// ErrUnknownType is returned when a header names a type byte this codec
// does not recognize. Per the protocol-anomaly handling policy, callers
// warn and drop the frame rather than panicking.
var ErrUnknownType = fmt.Errorf("netproto: unknown message type")

// Header is the 5-byte prefix every message begins with.
type Header struct {
	Type Type
	Tick uint32
}

// EncodeHeader writes typ and tick as the message's leading uint8/uint32.
func EncodeHeader(w *wire.Writer, typ Type, tick uint32) {
	w.WriteUint8(uint8(typ))
	w.WriteUint32(tick)
}

// DecodeHeader reads the leading uint8/uint32 header.
func DecodeHeader(r *wire.Reader) (Header, error) {
	t, err := r.ReadUint8()
	if err != nil {
		return Header{}, err
	}
	tick, err := r.ReadUint32()
	if err != nil {
		return Header{}, err
	}
	return Header{Type: Type(t), Tick: tick}, nil
}
