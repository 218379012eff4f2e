package netproto

import (
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// SnapshotEntry is one entity's value within a SnapshotBlock.
type SnapshotEntry struct {
	Entity  ecsentity.Entity
	Data    any
	HasData bool
}

// SnapshotBlock is every entity carrying one component, per spec.md §4.8's
// "a list of blocks { component_id, entities:[entity], data:[value] }".
type SnapshotBlock struct {
	ComponentID ecscomponent.ComponentID
	Entries     []SnapshotEntry
}

// Snapshot is a full snapshot message for one tick.
type Snapshot struct {
	Tick   uint64
	Blocks []SnapshotBlock
}

// EncodeSnapshot writes the full Snapshot message: header, `uint16
// block_count`, then per block `varint component_id, uint16 entity_count`
// and per entity `varint entity, payload (unless tag)`.
func EncodeSnapshot(w *wire.Writer, reg *ecscomponent.Registry, snap Snapshot) error {
	EncodeHeader(w, TypeSnapshot, uint32(snap.Tick))
	w.WriteUint16(uint16(len(snap.Blocks)))
	for _, block := range snap.Blocks {
		w.WriteVarint(uint64(block.ComponentID))
		w.WriteUint16(uint16(len(block.Entries)))
		for _, entry := range block.Entries {
			w.WriteVarint(uint64(entry.Entity))
			if err := encodePayload(w, reg, block.ComponentID, entry.Data, entry.HasData); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeSnapshotBody reads a full Snapshot body, given tick already read
// from the header. For the lazy, one-block-at-a-time alternative see
// BlockIterator.
func DecodeSnapshotBody(r *wire.Reader, reg *ecscomponent.Registry, tick uint64) (Snapshot, error) {
	it, err := NewBlockIterator(r, reg)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Tick: tick}
	for {
		block, ok, err := it.Next()
		if err != nil {
			return Snapshot{}, err
		}
		if !ok {
			break
		}
		snap.Blocks = append(snap.Blocks, block)
	}
	return snap, nil
}

// BlockIterator decodes a Snapshot body one block at a time, the lazy
// decoding path spec.md §4.8 allows "when the buffer is known to contain a
// single snapshot message" — useful when a caller only needs a handful of
// component IDs out of a large snapshot and wants to skip the rest without
// materializing every block.
type BlockIterator struct {
	r         *wire.Reader
	reg       *ecscomponent.Registry
	remaining uint16
}

// NewBlockIterator reads the block_count prefix and returns an iterator
// over the blocks that follow.
func NewBlockIterator(r *wire.Reader, reg *ecscomponent.Registry) (*BlockIterator, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	return &BlockIterator{r: r, reg: reg, remaining: count}, nil
}

// Next decodes and returns the next block, or ok=false once every block
// named by block_count has been consumed.
func (it *BlockIterator) Next() (block SnapshotBlock, ok bool, err error) {
	if it.remaining == 0 {
		return SnapshotBlock{}, false, nil
	}
	it.remaining--

	id, err := it.r.ReadVarint()
	if err != nil {
		return SnapshotBlock{}, false, err
	}
	cid := ecscomponent.ComponentID(id)
	entityCount, err := it.r.ReadUint16()
	if err != nil {
		return SnapshotBlock{}, false, err
	}
	entries := make([]SnapshotEntry, 0, entityCount)
	for i := uint16(0); i < entityCount; i++ {
		e, err := it.r.ReadVarint()
		if err != nil {
			return SnapshotBlock{}, false, err
		}
		data, hasData, err := decodePayload(it.r, it.reg, cid)
		if err != nil {
			return SnapshotBlock{}, false, err
		}
		entries = append(entries, SnapshotEntry{Entity: ecsentity.Entity(e), Data: data, HasData: hasData})
	}
	return SnapshotBlock{ComponentID: cid, Entries: entries}, true, nil
}
