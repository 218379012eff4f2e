package history

import (
	"fmt"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// EncodeCheckpoint serializes a checkpoint for the durable store: the
// tick, each entity's component set, then per-component cell blocks with
// each value serde-encoded. Components without a serde are structural-only
// in the blob (their membership survives, their value does not — a value
// the engine cannot encode cannot outlive the process either way).
func EncodeCheckpoint(reg *ecscomponent.Registry, c *Checkpoint) []byte {
	w := wire.NewWriter(4096)
	w.WriteVarint(c.Tick)

	w.WriteVarint(uint64(len(c.Vecs)))
	for e, ids := range c.Vecs {
		w.WriteVarint(uint64(e))
		w.WriteVarint(uint64(len(ids)))
		for _, id := range ids {
			w.WriteVarint(uint64(id))
		}
	}

	encodable := make([]ecscomponent.ComponentID, 0, len(c.Cells))
	for id := range c.Cells {
		if def, err := reg.Get(id); err == nil && def.Serde != nil {
			encodable = append(encodable, id)
		}
	}
	w.WriteVarint(uint64(len(encodable)))
	for _, id := range encodable {
		def, _ := reg.Get(id)
		byEntity := c.Cells[id]
		w.WriteVarint(uint64(id))
		w.WriteVarint(uint64(len(byEntity)))
		for e, cl := range byEntity {
			w.WriteVarint(uint64(e))
			w.WriteVarint(uint64(cl.Version))
			_ = def.Serde.Encode(cl.Value, w)
		}
	}
	return w.Bytes()
}

// DecodeCheckpoint reverses EncodeCheckpoint against the same component
// registry.
func DecodeCheckpoint(reg *ecscomponent.Registry, blob []byte) (*Checkpoint, error) {
	r := wire.NewReader(blob)
	tick, err := r.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("history: checkpoint blob: %w", err)
	}
	c := &Checkpoint{
		Tick:  tick,
		Cells: make(map[ecscomponent.ComponentID]map[ecsentity.Entity]cell),
		Vecs:  make(map[ecsentity.Entity][]ecscomponent.ComponentID),
	}

	entityCount, err := r.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("history: checkpoint blob: %w", err)
	}
	for i := uint64(0); i < entityCount; i++ {
		e, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("history: checkpoint blob: %w", err)
		}
		idCount, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("history: checkpoint blob: %w", err)
		}
		ids := make([]ecscomponent.ComponentID, 0, idCount)
		for j := uint64(0); j < idCount; j++ {
			id, err := r.ReadVarint()
			if err != nil {
				return nil, fmt.Errorf("history: checkpoint blob: %w", err)
			}
			ids = append(ids, ecscomponent.ComponentID(id))
		}
		c.Vecs[ecsentity.Entity(e)] = ids
	}

	compCount, err := r.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("history: checkpoint blob: %w", err)
	}
	for i := uint64(0); i < compCount; i++ {
		id, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("history: checkpoint blob: %w", err)
		}
		cid := ecscomponent.ComponentID(id)
		def, err := reg.Get(cid)
		if err != nil || def.Serde == nil {
			return nil, fmt.Errorf("history: checkpoint blob names component %d with no serde", cid)
		}
		cellCount, err := r.ReadVarint()
		if err != nil {
			return nil, fmt.Errorf("history: checkpoint blob: %w", err)
		}
		byEntity := make(map[ecsentity.Entity]cell, cellCount)
		for j := uint64(0); j < cellCount; j++ {
			e, err := r.ReadVarint()
			if err != nil {
				return nil, fmt.Errorf("history: checkpoint blob: %w", err)
			}
			ver, err := r.ReadVarint()
			if err != nil {
				return nil, fmt.Errorf("history: checkpoint blob: %w", err)
			}
			val, err := def.Serde.Decode(r)
			if err != nil {
				return nil, fmt.Errorf("history: checkpoint blob: %w", err)
			}
			byEntity[ecsentity.Entity(e)] = cell{Value: val, Version: ecscomponent.Version(ver)}
		}
		c.Cells[cid] = byEntity
	}
	return c, nil
}
