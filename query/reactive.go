package query

import (
	"github.com/evalgo-forge/ecsreplica/archetype"
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
)

// reactiveBuffer accumulates spawn/despawn batches for one sub-query's
// required Vec, fed by Graph.FlushGraphChanges. It implements
// archetype.Listener directly.
type reactiveBuffer struct {
	vec ecscomponent.Vec
	in  []ecsentity.Entity
	out []ecsentity.Entity
}

func (b *reactiveBuffer) RequiredVec() ecscomponent.Vec { return b.vec }

func (b *reactiveBuffer) OnSpawned(entities []ecsentity.Entity) {
	b.in = append(b.in, entities...)
}

func (b *reactiveBuffer) OnDespawned(entities []ecsentity.Entity) {
	b.out = append(b.out, entities...)
}

// drain returns and clears one direction's accumulated batch, per this
// module's resolution of spec.md §9's open question: draining happens once
// per system invocation, making the term single-consumer within a tick.
func (b *reactiveBuffer) drain(dir Direction) []ecsentity.Entity {
	switch dir {
	case InDirection:
		out := b.in
		b.in = nil
		return out
	default:
		out := b.out
		b.out = nil
		return out
	}
}

// newReactiveBuffer creates a buffer anchored on sub's required Vec and
// registers it as a listener on g.
func newReactiveBuffer(g *archetype.Graph, sub Query) *reactiveBuffer {
	rb := &reactiveBuffer{vec: requiredVec(sub.terms())}
	g.AddListener(rb)
	return rb
}
