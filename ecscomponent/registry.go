// Package ecscomponent interns component definitions to dense IDs, stores
// each component's optional serde, mints virtual component IDs for
// (relation, object) relationship pairs, and holds the per-component dense
// value/version arrays that back the World's storage.
package ecscomponent

import (
	"fmt"

	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// Serde describes how to encode/decode one component's value to/from the
// wire. Tag components (IsTag) have no serde: encode(value, writer) must
// write exactly BytesPerElement bytes through the writer's typed calls.
type Serde struct {
	BytesPerElement int
	Encode          func(value any, w *wire.Writer) error
	Decode          func(r *wire.Reader) (any, error)
}

// Def is a component definition: its interned ID, whether it carries no
// value, whether it is a relation tag, and its optional serde.
type Def struct {
	ID         ComponentID
	IsTag      bool
	IsRelation bool
	Serde      *Serde
}

// RelPair identifies a (relation, object) relationship pair, the key a
// virtual component ID is minted for.
type RelPair struct {
	Relation ComponentID
	Object   ecsentity.Entity
}

// Registry interns component definitions and mints virtual IDs.
type Registry struct {
	defs          map[ComponentID]*Def
	nextID        ComponentID
	nextVirtualID ComponentID
	virtualToRel  map[ComponentID]RelPair
	relToVirtual  map[RelPair]ComponentID
}

// NewRegistry creates an empty component registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:          make(map[ComponentID]*Def),
		nextID:        1,
		nextVirtualID: VirtualIDStart,
		virtualToRel:  make(map[ComponentID]RelPair),
		relToVirtual:  make(map[RelPair]ComponentID),
	}
}

// Define interns a new valued component with the given serde.
func (r *Registry) Define(serde *Serde) *Def {
	d := &Def{ID: r.nextID, Serde: serde}
	r.defs[d.ID] = d
	r.nextID++
	return d
}

// DefineTag interns a new tag component (no value, no storage).
func (r *Registry) DefineTag() *Def {
	d := &Def{ID: r.nextID, IsTag: true}
	r.defs[d.ID] = d
	r.nextID++
	return d
}

// DefineRelation interns a new relation base component. A relation is a
// tagged component; relationships to individual objects get their own
// virtual component ID via VirtualID.
func (r *Registry) DefineRelation() *Def {
	d := &Def{ID: r.nextID, IsTag: true, IsRelation: true}
	r.defs[d.ID] = d
	r.nextID++
	return d
}

// ErrUnknownComponent is returned when a component ID was never interned.
var ErrUnknownComponent = fmt.Errorf("ecscomponent: undefined component id")

// Get returns the definition for id. For a virtual ID it returns the
// underlying base relation component's definition, matching spec.md
// §4.2's "get_component(id) returns the underlying relation component for
// virtual IDs."
func (r *Registry) Get(id ComponentID) (*Def, error) {
	if id >= VirtualIDStart {
		pair, ok := r.virtualToRel[id]
		if !ok {
			return nil, ErrUnknownComponent
		}
		return r.Get(pair.Relation)
	}
	d, ok := r.defs[id]
	if !ok {
		return nil, ErrUnknownComponent
	}
	return d, nil
}

// VirtualID mints (or returns the existing) virtual component ID for the
// (relation, object) pair.
func (r *Registry) VirtualID(relation ComponentID, object ecsentity.Entity) ComponentID {
	pair := RelPair{Relation: relation, Object: object}
	if id, ok := r.relToVirtual[pair]; ok {
		return id
	}
	id := r.nextVirtualID
	r.nextVirtualID++
	r.relToVirtual[pair] = id
	r.virtualToRel[id] = pair
	return id
}

// RelPairOf returns the (relation, object) pair a virtual ID was minted
// for, if id is in fact virtual.
func (r *Registry) RelPairOf(id ComponentID) (RelPair, bool) {
	pair, ok := r.virtualToRel[id]
	return pair, ok
}

// IsVirtual reports whether id is a minted relationship ID rather than an
// interned component.
func IsVirtual(id ComponentID) bool { return id >= VirtualIDStart }
