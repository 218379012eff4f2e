// Package archetype maintains the entity graph: one Node per distinct
// component Vec, dense entity membership per node, the object→subjects
// reverse relation index, and per-tick move batching for reactive
// listeners.
package archetype

import (
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
)

// Strategy controls what happens to a Node once its membership drops to
// zero.
type Strategy int

const (
	// WhenEmpty nodes are deleted by pruneWhenEmpty, which SetEntityNode
	// runs on the node an entity leaves, once their dense membership is
	// empty.
	WhenEmpty Strategy = iota
	// Persistent nodes are kept even when empty. The graph's root node is
	// created Persistent; listeners are registered on the graph, not on
	// nodes, so they do not change a node's strategy.
	Persistent
)

// Node is one archetype: a distinct, canonical component Vec and the set
// of entities currently carrying exactly that Vec.
type Node struct {
	Vec      ecscomponent.Vec
	Strategy Strategy

	entities []ecsentity.Entity
	slotOf   map[ecsentity.Entity]int
	edgesOut map[ecscomponent.ComponentID]*Node // adding this component leads here
	edgesIn  map[ecscomponent.ComponentID]*Node // removing this component leads here
}

func newNode(vec ecscomponent.Vec) *Node {
	return &Node{
		Vec:      vec,
		slotOf:   make(map[ecsentity.Entity]int),
		edgesOut: make(map[ecscomponent.ComponentID]*Node),
		edgesIn:  make(map[ecscomponent.ComponentID]*Node),
	}
}

func (n *Node) add(e ecsentity.Entity) {
	if _, ok := n.slotOf[e]; ok {
		return
	}
	n.slotOf[e] = len(n.entities)
	n.entities = append(n.entities, e)
}

func (n *Node) remove(e ecsentity.Entity) bool {
	i, ok := n.slotOf[e]
	if !ok {
		return false
	}
	last := len(n.entities) - 1
	moved := n.entities[last]
	n.entities[i] = moved
	n.entities = n.entities[:last]
	delete(n.slotOf, e)
	if moved != e {
		n.slotOf[moved] = i
	}
	return true
}

// Entities returns the node's current members in dense (unordered) order.
// The returned slice must not be mutated by the caller.
func (n *Node) Entities() []ecsentity.Entity { return n.entities }

// Len reports the node's current membership count.
func (n *Node) Len() int { return len(n.entities) }

// move records one entity's transition from one archetype to another within
// the current tick, for later coalescing by Graph.FlushGraphChanges.
type move struct {
	entity ecsentity.Entity
	from   *Node // nil on spawn
	to     *Node // nil on despawn
}

// Listener receives batched sets of entities once per FlushGraphChanges,
// the mechanism spec.md §4.3/§4.4 describes reactive queries as riding on.
type Listener interface {
	// RequiredVec is the Vec a node's membership must be a superset of for
	// this listener to be registered against it.
	RequiredVec() ecscomponent.Vec
	// OnSpawned is called during a flush, once per node matching
	// RequiredVec, with the entities whose net move since the previous
	// flush put them in that node.
	OnSpawned(entities []ecsentity.Entity)
	// OnDespawned is called during a flush, once per node matching
	// RequiredVec, with the entities whose net move since the previous
	// flush took them out of that node (includes true despawns and entities
	// that migrated away from the node, even into another matching node).
	OnDespawned(entities []ecsentity.Entity)
}

// Graph is the entity graph (archetype index): find_or_create_node,
// set_entity_node, prune_when_empty, flush_graph_changes, grounded on
// graph/dag.go's add/remove-edge linking and Kahn's-algorithm batching,
// generalized from DAG validation/execution-order batching to archetype
// membership moves.
type Graph struct {
	byHash   map[uint64][]*Node // hash bucket; collisions resolved by Vec.Equal
	byEntity map[ecsentity.Entity]*Node
	root     *Node // the empty-Vec node every freshly spawned entity starts in

	listeners []Listener

	pending []move

	// relationRefCount tracks, per subject entity, how many distinct
	// (relation, object) pairs remain live for each base relation
	// component — spec.md §9's "remove the base only when no other
	// relationship of that relation remains."
	relationRefCount map[ecsentity.Entity]map[ecscomponent.ComponentID]int

	// objectToSubjects is the reverse relation index: for a given
	// (relation, object), the subjects currently holding that relationship.
	objectToSubjects map[ecscomponent.ComponentID]map[ecsentity.Entity]map[ecsentity.Entity]struct{}

	// subjectToObjects is the forward relation index query.RelTerm walks:
	// for a given (relation, subject), the objects it currently holds that
	// relationship toward.
	subjectToObjects map[ecscomponent.ComponentID]map[ecsentity.Entity]map[ecsentity.Entity]struct{}
}

// NewGraph creates an empty Graph with its root (empty-Vec) node installed.
func NewGraph() *Graph {
	g := &Graph{
		byHash:           make(map[uint64][]*Node),
		byEntity:         make(map[ecsentity.Entity]*Node),
		relationRefCount: make(map[ecsentity.Entity]map[ecscomponent.ComponentID]int),
		objectToSubjects: make(map[ecscomponent.ComponentID]map[ecsentity.Entity]map[ecsentity.Entity]struct{}),
		subjectToObjects: make(map[ecscomponent.ComponentID]map[ecsentity.Entity]map[ecsentity.Entity]struct{}),
	}
	g.root = newNode(ecscomponent.MakeVec(nil))
	g.root.Strategy = Persistent
	g.byHash[g.root.Vec.Hash()] = []*Node{g.root}
	return g
}

// Root returns the empty-Vec node every entity without components lives in.
func (g *Graph) Root() *Node { return g.root }

// AddListener registers l; new nodes whose Vec is a superset of
// l.RequiredVec() are visible to it from their creation onward, and any
// already-existing matching nodes start contributing to future flushes too.
func (g *Graph) AddListener(l Listener) {
	g.listeners = append(g.listeners, l)
}

func (g *Graph) findNode(vec ecscomponent.Vec) *Node {
	for _, n := range g.byHash[vec.Hash()] {
		if n.Vec.Equal(vec) {
			return n
		}
	}
	return nil
}

// FindOrCreateNode looks up the node for vec by hash, creating and linking
// it to already-existing single-component-different neighbors if it does
// not exist yet.
func (g *Graph) FindOrCreateNode(vec ecscomponent.Vec) *Node {
	if n := g.findNode(vec); n != nil {
		return n
	}
	n := newNode(vec)
	g.byHash[vec.Hash()] = append(g.byHash[vec.Hash()], n)
	g.linkNeighbors(n)
	return n
}

// linkNeighbors wires n's edgesOut/edgesIn to every already-existing node
// that differs from n by exactly one component, so future single-component
// add/remove moves can jump directly between them without a hash lookup.
func (g *Graph) linkNeighbors(n *Node) {
	for _, id := range n.Vec.IDs() {
		without := ecscomponent.Difference(n.Vec, ecscomponent.MakeVec([]ecscomponent.ComponentID{id}))
		if m := g.findNode(without); m != nil {
			m.edgesOut[id] = n
			n.edgesIn[id] = m
		}
	}
	for hash, nodes := range g.byHash {
		_ = hash
		for _, m := range nodes {
			if m == n {
				continue
			}
			added := ecscomponent.Difference(m.Vec, n.Vec)
			removed := ecscomponent.Difference(n.Vec, m.Vec)
			if added.Len() == 1 && removed.Len() == 0 {
				n.edgesOut[added.IDs()[0]] = m
				m.edgesIn[added.IDs()[0]] = n
			}
		}
	}
}

// NodeOf returns the node entity currently belongs to, if any.
func (g *Graph) NodeOf(entity ecsentity.Entity) (*Node, bool) {
	n, ok := g.byEntity[entity]
	return n, ok
}

// SetEntityNode moves entity from its current node (if any) to newNode,
// recording a graph move for the next FlushGraphChanges. Spawning passes no
// prior node; despawning passes a nil newNode.
func (g *Graph) SetEntityNode(entity ecsentity.Entity, newNode *Node) {
	old, had := g.byEntity[entity]
	if had {
		if old == newNode {
			return
		}
		old.remove(entity)
	}
	if newNode != nil {
		newNode.add(entity)
		g.byEntity[entity] = newNode
	} else {
		delete(g.byEntity, entity)
	}

	var from *Node
	if had {
		from = old
	}
	g.pending = append(g.pending, move{entity: entity, from: from, to: newNode})

	if had {
		g.pruneWhenEmpty(old)
	}
}

func (g *Graph) pruneWhenEmpty(n *Node) {
	if n.Strategy != WhenEmpty || n.Len() != 0 || n == g.root {
		return
	}
	bucket := g.byHash[n.Vec.Hash()]
	for i, m := range bucket {
		if m == n {
			g.byHash[n.Vec.Hash()] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	for id, neighbor := range n.edgesOut {
		delete(neighbor.edgesIn, id)
	}
	for id, neighbor := range n.edgesIn {
		delete(neighbor.edgesOut, id)
	}
}

// FlushGraphChanges coalesces every per-entity move recorded since the last
// flush into per-node spawned/despawned batches and delivers them to every
// registered listener whose RequiredVec matches, then clears the pending
// move log.
func (g *Graph) FlushGraphChanges() {
	if len(g.pending) == 0 {
		return
	}
	spawnedByNode := make(map[*Node][]ecsentity.Entity)
	despawnedByNode := make(map[*Node][]ecsentity.Entity)

	// Fold each entity's moves into one net move: the node it left with its
	// first move and the node it holds after its last.
	net := make(map[ecsentity.Entity]move, len(g.pending))
	order := make([]ecsentity.Entity, 0, len(g.pending))
	for _, mv := range g.pending {
		if first, ok := net[mv.entity]; ok {
			mv.from = first.from
		} else {
			order = append(order, mv.entity)
		}
		net[mv.entity] = mv
	}
	for _, e := range order {
		mv := net[e]
		if mv.from != nil && mv.from != mv.to {
			despawnedByNode[mv.from] = append(despawnedByNode[mv.from], mv.entity)
		}
		if mv.to != nil && mv.from != mv.to {
			spawnedByNode[mv.to] = append(spawnedByNode[mv.to], mv.entity)
		}
	}
	g.pending = g.pending[:0]

	for _, l := range g.listeners {
		required := l.RequiredVec()
		for node, ents := range spawnedByNode {
			if ecscomponent.IsSupersetOf(node.Vec, required) && len(ents) > 0 {
				l.OnSpawned(ents)
			}
		}
		for node, ents := range despawnedByNode {
			if ecscomponent.IsSupersetOf(node.Vec, required) && len(ents) > 0 {
				l.OnDespawned(ents)
			}
		}
	}
}

// LiveEntities returns every entity currently placed in some node, in no
// particular order — the enumeration checkpoint capture walks.
func (g *Graph) LiveEntities() []ecsentity.Entity {
	out := make([]ecsentity.Entity, 0, len(g.byEntity))
	for e := range g.byEntity {
		out = append(out, e)
	}
	return out
}

// NodesSupersetOf returns every currently-existing node whose Vec is a
// superset of required and disjoint from every Vec in excluded — the set a
// query anchors its live node set against per spec.md §4.4.
func (g *Graph) NodesSupersetOf(required ecscomponent.Vec, excluded []ecscomponent.Vec) []*Node {
	var out []*Node
	for _, bucket := range g.byHash {
		for _, n := range bucket {
			if !ecscomponent.IsSupersetOf(n.Vec, required) {
				continue
			}
			disjoint := true
			for _, ex := range excluded {
				if !ecscomponent.IsDisjoint(n.Vec, ex) {
					disjoint = false
					break
				}
			}
			if disjoint {
				out = append(out, n)
			}
		}
	}
	return out
}
