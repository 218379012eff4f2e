package netproto

import (
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/replop"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// opTag is the per-op discriminator byte spec.md §6 defines ahead of each
// op's variant-specific body.
type opTag uint8

const (
	opTagSpawn   opTag = 1
	opTagDespawn opTag = 2
	opTagSet     opTag = 3
	opTagRemove  opTag = 4
	opTagAdd     opTag = 5
)

// ErrUnknownOpTag is a protocol anomaly: a transaction body named a tag
// byte this codec does not recognize. Per spec.md §7's handling policy the
// caller warns and drops the frame rather than propagating a panic.
var ErrUnknownOpTag = fmt.Errorf("netproto: unknown op tag")

// EncodeTransaction writes the full Transaction message (header + body):
// `uint8 domain_id, varint seq, uint16 op_count`, then each op.
func EncodeTransaction(w *wire.Writer, reg *ecscomponent.Registry, tx replop.Transaction) error {
	EncodeHeader(w, TypeTransaction, uint32(tx.Tick))
	w.WriteUint8(uint8(tx.DomainID))
	w.WriteVarint(tx.Seq)
	w.WriteUint16(uint16(len(tx.Ops)))
	for _, op := range tx.Ops {
		if err := encodeOp(w, reg, op); err != nil {
			return err
		}
	}
	return nil
}

// DecodeTransactionBody reads a Transaction body, given tick already read
// from the header.
func DecodeTransactionBody(r *wire.Reader, reg *ecscomponent.Registry, tick uint64) (replop.Transaction, error) {
	domain, err := r.ReadUint8()
	if err != nil {
		return replop.Transaction{}, err
	}
	seq, err := r.ReadVarint()
	if err != nil {
		return replop.Transaction{}, err
	}
	opCount, err := r.ReadUint16()
	if err != nil {
		return replop.Transaction{}, err
	}
	ops := make([]replop.Op, 0, opCount)
	for i := uint16(0); i < opCount; i++ {
		op, err := decodeOp(r, reg)
		if err != nil {
			return replop.Transaction{}, err
		}
		ops = append(ops, op)
	}
	return replop.Transaction{DomainID: ecsentity.DomainID(domain), Seq: seq, Tick: tick, Ops: ops}, nil
}

func encodeOp(w *wire.Writer, reg *ecscomponent.Registry, op replop.Op) error {
	switch op.Kind {
	case replop.KindSpawn:
		w.WriteUint8(uint8(opTagSpawn))
		return encodeSpawn(w, reg, op)
	case replop.KindDespawn:
		w.WriteUint8(uint8(opTagDespawn))
		w.WriteVarint(uint64(op.Entity))
		return nil
	case replop.KindSet:
		w.WriteUint8(uint8(opTagSet))
		return encodeSet(w, reg, op)
	case replop.KindRemove:
		w.WriteUint8(uint8(opTagRemove))
		w.WriteVarint(uint64(op.Entity))
		w.WriteVarint(uint64(op.ComponentID))
		return nil
	case replop.KindAdd:
		w.WriteUint8(uint8(opTagAdd))
		return encodeAdd(w, reg, op)
	default:
		return fmt.Errorf("netproto: unknown op kind %d", op.Kind)
	}
}

func decodeOp(r *wire.Reader, reg *ecscomponent.Registry) (replop.Op, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return replop.Op{}, err
	}
	switch opTag(tag) {
	case opTagSpawn:
		return decodeSpawn(r, reg)
	case opTagDespawn:
		e, err := r.ReadVarint()
		if err != nil {
			return replop.Op{}, err
		}
		return replop.Op{Kind: replop.KindDespawn, Entity: ecsentity.Entity(e)}, nil
	case opTagSet:
		return decodeSet(r, reg)
	case opTagRemove:
		e, err := r.ReadVarint()
		if err != nil {
			return replop.Op{}, err
		}
		id, err := r.ReadVarint()
		if err != nil {
			return replop.Op{}, err
		}
		return replop.Op{Kind: replop.KindRemove, Entity: ecsentity.Entity(e), ComponentID: ecscomponent.ComponentID(id)}, nil
	case opTagAdd:
		return decodeAdd(r, reg)
	default:
		return replop.Op{}, ErrUnknownOpTag
	}
}

func encodeSpawn(w *wire.Writer, reg *ecscomponent.Registry, op replop.Op) error {
	w.WriteVarint(uint64(op.Entity))
	w.WriteUint16(uint16(len(op.Components)))
	for _, c := range op.Components {
		w.WriteVarint(uint64(c.ID))
		if err := encodePayload(w, reg, c.ID, c.Data, c.HasData); err != nil {
			return err
		}
		if c.HasRel {
			w.WriteUint8(1)
			w.WriteVarint(uint64(c.ID))
			w.WriteVarint(uint64(c.Rel))
		} else {
			w.WriteUint8(0)
		}
	}
	encodeCausalKey(w, op.CausalKey)
	return nil
}

func decodeSpawn(r *wire.Reader, reg *ecscomponent.Registry) (replop.Op, error) {
	e, err := r.ReadVarint()
	if err != nil {
		return replop.Op{}, err
	}
	count, err := r.ReadUint16()
	if err != nil {
		return replop.Op{}, err
	}
	components := make([]replop.ComponentPayload, 0, count)
	for i := uint16(0); i < count; i++ {
		id, err := r.ReadVarint()
		if err != nil {
			return replop.Op{}, err
		}
		cid := ecscomponent.ComponentID(id)
		data, hasData, err := decodePayload(r, reg, cid)
		if err != nil {
			return replop.Op{}, err
		}
		hasRelFlag, err := r.ReadUint8()
		if err != nil {
			return replop.Op{}, err
		}
		payload := replop.ComponentPayload{ID: cid, Data: data, HasData: hasData}
		if hasRelFlag == 1 {
			relID, err := r.ReadVarint()
			if err != nil {
				return replop.Op{}, err
			}
			obj, err := r.ReadVarint()
			if err != nil {
				return replop.Op{}, err
			}
			_ = relID // the relation id duplicates the component id already read
			payload.Rel, payload.HasRel = ecsentity.Entity(obj), true
		}
		components = append(components, payload)
	}
	causalKey, err := decodeCausalKey(r)
	if err != nil {
		return replop.Op{}, err
	}
	return replop.Op{Kind: replop.KindSpawn, Entity: ecsentity.Entity(e), Components: components, CausalKey: causalKey}, nil
}

func encodeSet(w *wire.Writer, reg *ecscomponent.Registry, op replop.Op) error {
	w.WriteVarint(uint64(op.Entity))
	w.WriteVarint(uint64(op.ComponentID))
	if err := encodePayload(w, reg, op.ComponentID, op.Data, op.HasData); err != nil {
		return err
	}
	if op.HasVersion {
		w.WriteUint8(1)
		w.WriteVarint(uint64(op.Version))
	} else {
		w.WriteUint8(0)
	}
	if op.HasRel {
		w.WriteUint8(1)
		w.WriteVarint(uint64(op.ComponentID))
		w.WriteVarint(uint64(op.Rel))
	} else {
		w.WriteUint8(0)
	}
	return nil
}

func decodeSet(r *wire.Reader, reg *ecscomponent.Registry) (replop.Op, error) {
	e, err := r.ReadVarint()
	if err != nil {
		return replop.Op{}, err
	}
	id, err := r.ReadVarint()
	if err != nil {
		return replop.Op{}, err
	}
	cid := ecscomponent.ComponentID(id)
	data, hasData, err := decodePayload(r, reg, cid)
	if err != nil {
		return replop.Op{}, err
	}
	op := replop.Op{Kind: replop.KindSet, Entity: ecsentity.Entity(e), ComponentID: cid, Data: data, HasData: hasData}

	hasVersion, err := r.ReadUint8()
	if err != nil {
		return replop.Op{}, err
	}
	if hasVersion == 1 {
		v, err := r.ReadVarint()
		if err != nil {
			return replop.Op{}, err
		}
		op.Version, op.HasVersion = ecscomponent.Version(v), true
	}

	hasRel, err := r.ReadUint8()
	if err != nil {
		return replop.Op{}, err
	}
	if hasRel == 1 {
		if _, err := r.ReadVarint(); err != nil { // relation id, duplicates component id
			return replop.Op{}, err
		}
		obj, err := r.ReadVarint()
		if err != nil {
			return replop.Op{}, err
		}
		op.Rel, op.HasRel = ecsentity.Entity(obj), true
	}
	return op, nil
}

func encodeAdd(w *wire.Writer, reg *ecscomponent.Registry, op replop.Op) error {
	w.WriteVarint(uint64(op.Entity))
	w.WriteVarint(uint64(op.ComponentID))
	if op.HasData {
		w.WriteUint8(1)
		if err := encodePayload(w, reg, op.ComponentID, op.Data, op.HasData); err != nil {
			return err
		}
	} else {
		w.WriteUint8(0)
	}
	if op.HasRel {
		w.WriteUint8(1)
		w.WriteVarint(uint64(op.ComponentID))
		w.WriteVarint(uint64(op.Rel))
	} else {
		w.WriteUint8(0)
	}
	return nil
}

func decodeAdd(r *wire.Reader, reg *ecscomponent.Registry) (replop.Op, error) {
	e, err := r.ReadVarint()
	if err != nil {
		return replop.Op{}, err
	}
	id, err := r.ReadVarint()
	if err != nil {
		return replop.Op{}, err
	}
	cid := ecscomponent.ComponentID(id)
	op := replop.Op{Kind: replop.KindAdd, Entity: ecsentity.Entity(e), ComponentID: cid}

	hasData, err := r.ReadUint8()
	if err != nil {
		return replop.Op{}, err
	}
	if hasData == 1 {
		data, has, err := decodePayload(r, reg, cid)
		if err != nil {
			return replop.Op{}, err
		}
		op.Data, op.HasData = data, has
	}

	hasRel, err := r.ReadUint8()
	if err != nil {
		return replop.Op{}, err
	}
	if hasRel == 1 {
		if _, err := r.ReadVarint(); err != nil { // relation id, duplicates component id
			return replop.Op{}, err
		}
		obj, err := r.ReadVarint()
		if err != nil {
			return replop.Op{}, err
		}
		op.Rel, op.HasRel = ecsentity.Entity(obj), true
	}
	return op, nil
}

// encodePayload writes id's serde-encoded payload unless id names a tag
// component, per spec.md §6's "payload (unless tag)".
func encodePayload(w *wire.Writer, reg *ecscomponent.Registry, id ecscomponent.ComponentID, data any, hasData bool) error {
	def, err := reg.Get(id)
	if err != nil {
		return err
	}
	if def.IsTag {
		return nil
	}
	if !hasData {
		return fmt.Errorf("netproto: component %d is not a tag but carries no data", id)
	}
	return def.Serde.Encode(data, w)
}

func decodePayload(r *wire.Reader, reg *ecscomponent.Registry, id ecscomponent.ComponentID) (data any, hasData bool, err error) {
	def, err := reg.Get(id)
	if err != nil {
		return nil, false, err
	}
	if def.IsTag {
		return nil, false, nil
	}
	v, err := def.Serde.Decode(r)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// encodeCausalKey writes `uint8 has_causal_key; if 1 then uint32
// causal_key`. A causal key that already parses as a decimal uint32 (the
// common case — client predictions key on a numeric hash per spec.md §6's
// design notes example `hash(tick, index)`) round-trips exactly; any other
// string is folded to a stable uint32 via FNV-1a, which decodes back to its
// numeric form rather than the original string.
func encodeCausalKey(w *wire.Writer, key string) {
	if key == "" {
		w.WriteUint8(0)
		return
	}
	w.WriteUint8(1)
	w.WriteUint32(causalKeyToWire(key))
}

func decodeCausalKey(r *wire.Reader) (string, error) {
	has, err := r.ReadUint8()
	if err != nil {
		return "", err
	}
	if has == 0 {
		return "", nil
	}
	v, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(v), 10), nil
}

func causalKeyToWire(key string) uint32 {
	if v, err := strconv.ParseUint(key, 10, 32); err == nil {
		return uint32(v)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
