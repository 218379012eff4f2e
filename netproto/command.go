package netproto

import (
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// Command is the encode-side view of one buffered command: a typed value
// ready to serde-encode, bound to a target entity and component.
type Command struct {
	Target    ecsentity.Entity
	Component ecscomponent.ComponentID
	Value     any
	HasValue  bool
}

// CommandSpec formalizes spec.md's design-notes description of a command
// entity's intent payload: a target, the component it names, and the raw
// serde-encoded bytes for that component's value, left undecoded until a
// system actually asks for it (decode-on-demand mirrors the Snapshot
// body's lazy-block optimization).
type CommandSpec struct {
	Target    ecsentity.Entity
	Component ecscomponent.ComponentID
	Data      []byte
}

// DecodeValue decodes Data via the component's registered serde. A tag
// component (no serde) returns ok=false.
func (c CommandSpec) DecodeValue(reg *ecscomponent.Registry) (value any, ok bool, err error) {
	def, err := reg.Get(c.Component)
	if err != nil {
		return nil, false, err
	}
	if def.IsTag {
		return nil, false, nil
	}
	v, err := def.Serde.Decode(wire.NewReader(c.Data))
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// EncodeCommandBatch writes the full Command message: header, `uint16
// command_count`, then per command `varint target, varint component_id,
// payload (unless tag)`.
func EncodeCommandBatch(w *wire.Writer, reg *ecscomponent.Registry, tick uint32, commands []Command) error {
	EncodeHeader(w, TypeCommand, tick)
	w.WriteUint16(uint16(len(commands)))
	for _, c := range commands {
		w.WriteVarint(uint64(c.Target))
		w.WriteVarint(uint64(c.Component))
		if err := encodePayload(w, reg, c.Component, c.Value, c.HasValue); err != nil {
			return err
		}
	}
	return nil
}

// DecodeCommandBatchBody reads a Command body into CommandSpecs, capturing
// each command's raw payload bytes rather than eagerly decoding them.
func DecodeCommandBatchBody(r *wire.Reader, reg *ecscomponent.Registry) ([]CommandSpec, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	specs := make([]CommandSpec, 0, count)
	for i := uint16(0); i < count; i++ {
		target, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		id, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		cid := ecscomponent.ComponentID(id)
		def, err := reg.Get(cid)
		if err != nil {
			return nil, err
		}
		start := r.Pos()
		if !def.IsTag {
			if _, err := def.Serde.Decode(r); err != nil {
				return nil, err
			}
		}
		end := r.Pos()
		specs = append(specs, CommandSpec{
			Target:    ecsentity.Entity(target),
			Component: cid,
			Data:      r.Slice(start, end),
		})
	}
	return specs, nil
}
