// Package query implements the declarative term/query language: All, Join,
// and Unique queries composed of entity/read/write/has/not/rel/in/out
// terms, bound against an ecsworld.World's archetype graph.
package query

import "github.com/evalgo-forge/ecsreplica/ecscomponent"

// Term is one clause of a query, per spec.md §4.4.
type Term interface {
	isTerm()
}

// EntityTerm yields the matched Entity itself.
type EntityTerm struct{}

func (EntityTerm) isTerm() {}

// ReadTerm yields a component's current value.
type ReadTerm struct{ Component ecscomponent.ComponentID }

func (ReadTerm) isTerm() {}

// WriteTerm yields a component's current value and marks intent to mutate
// it — the engine does not enforce exclusive write at runtime (spec.md
// §5); this term exists to document and bind the same value ReadTerm
// would.
type WriteTerm struct{ Component ecscomponent.ComponentID }

func (WriteTerm) isTerm() {}

// HasTerm is a presence filter with no payload.
type HasTerm struct{ Component ecscomponent.ComponentID }

func (HasTerm) isTerm() {}

// NotTerm excludes entities carrying Component.
type NotTerm struct{ Component ecscomponent.ComponentID }

func (NotTerm) isTerm() {}

// RelTerm recurses Sub once per object connected to the matched entity by
// Relation, producing the Cartesian expansion spec.md §4.4 describes for
// multi-object relations.
type RelTerm struct {
	Relation ecscomponent.ComponentID
	Sub      Term
}

func (RelTerm) isTerm() {}

// Direction distinguishes a reactive term's spawn-stream from its
// despawn/move-out stream.
type Direction int

const (
	// InDirection drains entities that entered a node carrying the
	// sub-query's required components since the last drain; a migration
	// from one such node to another counts as entering the new node.
	InDirection Direction = iota
	// OutDirection drains entities that left a node carrying the
	// sub-query's required components since the last drain, including
	// migrations into another such node.
	OutDirection
)

// ReactiveTerm holds an in/out buffer fed by the graph-change flush.
// Iteration drains it; per this module's resolution of spec.md §9's open
// question, the buffer is drained once per system invocation and cleared
// immediately, making each reactive term single-consumer within a tick.
type ReactiveTerm struct {
	Dir Direction
	Sub Query
}

func (ReactiveTerm) isTerm() {}

// QueryRef wraps a Query as a Term — used as Join's Left/Right when that
// side is enumerated at yield time rather than driven by a reactive
// buffer (spec.md §4.4's "the other is enumerated at yield time").
type QueryRef struct{ Query Query }

func (QueryRef) isTerm() {}
