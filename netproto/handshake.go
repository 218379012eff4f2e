package netproto

import (
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/wire"
	"github.com/google/uuid"
)

// HandshakeRequest is the client→server handshake body: `uint8 version`.
type HandshakeRequest struct {
	Version uint8
}

// EncodeHandshakeRequest writes the full Handshake message (header + body)
// for a client opening a connection at tick.
func EncodeHandshakeRequest(w *wire.Writer, tick uint32, req HandshakeRequest) {
	EncodeHeader(w, TypeHandshake, tick)
	w.WriteUint8(req.Version)
}

// DecodeHandshakeRequest reads a Handshake request body. The caller has
// already consumed the header via DecodeHeader.
func DecodeHandshakeRequest(r *wire.Reader) (HandshakeRequest, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return HandshakeRequest{}, err
	}
	return HandshakeRequest{Version: v}, nil
}

// HandshakeResponse is the server→client handshake body: `uint8 domain_id,
// uint32 tick`, assigning the connecting peer its domain.
type HandshakeResponse struct {
	DomainID ecsentity.DomainID
	Tick     uint32
}

// EncodeHandshakeResponse writes the full Handshake response message.
func EncodeHandshakeResponse(w *wire.Writer, tick uint32, resp HandshakeResponse) {
	EncodeHeader(w, TypeHandshake, tick)
	w.WriteUint8(uint8(resp.DomainID))
	w.WriteUint32(resp.Tick)
}

// DecodeHandshakeResponse reads a Handshake response body.
func DecodeHandshakeResponse(r *wire.Reader) (HandshakeResponse, error) {
	d, err := r.ReadUint8()
	if err != nil {
		return HandshakeResponse{}, err
	}
	tick, err := r.ReadUint32()
	if err != nil {
		return HandshakeResponse{}, err
	}
	return HandshakeResponse{DomainID: ecsentity.DomainID(d), Tick: tick}, nil
}

// NewSessionID mints a correlation id for one connection's handshake
// exchange, attached to log lines on both sides of the connection so a
// session can be traced end to end. It is never carried on the wire and
// never used as an entity id — entities stay 31-bit packed integers.
func NewSessionID() uuid.UUID {
	return uuid.New()
}
