package query

import (
	"fmt"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/ecsworld"
)

// ErrNotUnique is returned by Unique resolution when zero or more than one
// row matches.
var ErrNotUnique = fmt.Errorf("query: expected exactly one match")

// Row is one yielded match: the matched entity plus any values bound by
// ReadTerm/WriteTerm, and the relation object(s) a RelTerm matched
// through, keyed by the relation component.
type Row struct {
	Entity ecsentity.Entity
	// Joined holds the right-hand entity of a Join row; zero for All/Unique
	// rows, which carry only one entity.
	Joined    ecsentity.Entity
	Values    map[ecscomponent.ComponentID]any
	RelValues map[ecscomponent.ComponentID]ecsentity.Entity
	// Despawned marks a row produced by an OutDirection reactive drain for
	// an entity that no longer exists, so callers don't try to read data
	// for it.
	Despawned bool
}

// bufferKey identifies one reactive buffer by its sub-query's required Vec
// hash and direction — both plain comparable values, unlike Query itself
// (All/Join/Unique embed slices and are not map-key safe).
type bufferKey struct {
	hash uint64
	dir  Direction
}

func keyFor(sub Query, dir Direction) bufferKey {
	return bufferKey{hash: requiredVec(sub.terms()).Hash(), dir: dir}
}

// Bound is a query anchored against a live World: its reactive sub-terms
// are registered as archetype listeners, so Rows only needs to be called
// freshly each system invocation to reflect the latest flush.
type Bound struct {
	world   *ecsworld.World
	query   Query
	buffers map[bufferKey]*reactiveBuffer
}

// Bind anchors q against w, registering reactive buffers for every nested
// ReactiveTerm, per spec.md §4.4's "Setup/teardown." Required/excluded
// Vecs are derived each time Rows evaluates the query.
func Bind(w *ecsworld.World, q Query) *Bound {
	b := &Bound{world: w, query: q, buffers: make(map[bufferKey]*reactiveBuffer)}
	b.wireReactive(q.terms())
	return b
}

func (b *Bound) wireReactive(terms []Term) {
	for _, t := range terms {
		switch term := t.(type) {
		case ReactiveTerm:
			key := keyFor(term.Sub, term.Dir)
			if _, ok := b.buffers[key]; !ok {
				b.buffers[key] = newReactiveBuffer(b.world.Graph, term.Sub)
			}
			b.wireReactive(term.Sub.terms())
		case QueryRef:
			b.wireReactive(term.Query.terms())
		case RelTerm:
			b.wireReactive([]Term{term.Sub})
		}
	}
}

// Rows evaluates the bound query against the world's current state.
func (b *Bound) Rows() []Row {
	switch q := b.query.(type) {
	case All:
		return b.evalAll(q)
	case Join:
		return b.evalJoin(q)
	case Unique:
		return b.evalUnique(q)
	default:
		return nil
	}
}

// One reports the query's single match, per spec.md §4.4's Unique.
func (b *Bound) One() (Row, error) {
	rows := b.Rows()
	if len(rows) != 1 {
		return Row{}, ErrNotUnique
	}
	return rows[0], nil
}

func (b *Bound) evalUnique(u Unique) []Row {
	inner := Bind(b.world, u.Inner)
	for key, buf := range b.buffers {
		inner.buffers[key] = buf
	}
	return inner.Rows()
}

func (b *Bound) evalAll(a All) []Row {
	var reactive *ReactiveTerm
	for _, t := range a.Terms {
		if rt, ok := t.(ReactiveTerm); ok {
			reactive = &rt
			break
		}
	}

	if reactive != nil {
		return b.evalReactiveAll(a, *reactive)
	}

	required := requiredVec(a.Terms)
	excluded := excludedVecs(a.Terms)
	var rows []Row
	for _, node := range b.world.Graph.NodesSupersetOf(required, excluded) {
		for _, e := range node.Entities() {
			rows = append(rows, b.expandRelTerms(a.Terms, e, Row{Entity: e})...)
		}
	}
	return rows
}

// evalReactiveAll drives row production off a ReactiveTerm's buffer rather
// than a graph-node scan, enriching each drained entity with the All's
// other (non-reactive) terms and the reactive sub-query's own terms.
func (b *Bound) evalReactiveAll(a All, reactive ReactiveTerm) []Row {
	buf, ok := b.buffers[keyFor(reactive.Sub, reactive.Dir)]
	if !ok {
		return nil
	}
	entities := buf.drain(reactive.Dir)
	rest := make([]Term, 0, len(a.Terms))
	for _, t := range a.Terms {
		if _, isReactive := t.(ReactiveTerm); !isReactive {
			rest = append(rest, t)
		}
	}
	rest = append(rest, reactive.Sub.terms()...)

	var rows []Row
	for _, e := range entities {
		row := Row{Entity: e}
		if !b.world.IsLive(e) {
			row.Despawned = true
			rows = append(rows, row)
			continue
		}
		rows = append(rows, b.expandRelTerms(rest, e, row)...)
	}
	return rows
}

// expandRelTerms fills base from HasTerm/ReadTerm/WriteTerm payloads for e
// and recursively expands any RelTerm into one row per connected object,
// per spec.md §4.4's Cartesian expansion. A RelTerm with zero connected
// objects contributes no rows for e (inner-join semantics); objects that
// have since despawned are filtered out.
func (b *Bound) expandRelTerms(terms []Term, e ecsentity.Entity, base Row) []Row {
	rows := []Row{base}
	for _, t := range terms {
		switch term := t.(type) {
		case ReadTerm:
			for i := range rows {
				rows[i] = withValue(rows[i], term.Component, b.world)
			}
		case WriteTerm:
			for i := range rows {
				rows[i] = withValue(rows[i], term.Component, b.world)
			}
		case RelTerm:
			objects := b.world.Graph.ObjectsOf(term.Relation, e)
			var expanded []Row
			for _, obj := range objects {
				if !b.world.IsLive(obj) {
					continue
				}
				for _, r := range rows {
					next := cloneRow(r)
					if next.RelValues == nil {
						next.RelValues = make(map[ecscomponent.ComponentID]ecsentity.Entity)
					}
					next.RelValues[term.Relation] = obj
					expanded = append(expanded, next)
				}
			}
			rows = expanded
		}
	}
	return rows
}

func withValue(r Row, id ecscomponent.ComponentID, w *ecsworld.World) Row {
	val, _, ok := w.GetComponent(r.Entity, id)
	if !ok {
		return r
	}
	if r.Values == nil {
		r.Values = make(map[ecscomponent.ComponentID]any)
	}
	r.Values[id] = val
	return r
}

func cloneRow(r Row) Row {
	clone := Row{Entity: r.Entity, Despawned: r.Despawned}
	if r.Values != nil {
		clone.Values = make(map[ecscomponent.ComponentID]any, len(r.Values))
		for k, v := range r.Values {
			clone.Values[k] = v
		}
	}
	if r.RelValues != nil {
		clone.RelValues = make(map[ecscomponent.ComponentID]ecsentity.Entity, len(r.RelValues))
		for k, v := range r.RelValues {
			clone.RelValues[k] = v
		}
	}
	return clone
}

func (b *Bound) evalJoin(j Join) []Row {
	left := b.evalSide(j.Left)
	right := b.evalSide(j.Right)

	var rows []Row
	for _, l := range left {
		for _, r := range right {
			if j.Relation != nil {
				related := false
				for _, obj := range b.world.Graph.ObjectsOf(*j.Relation, l.Entity) {
					if obj == r.Entity {
						related = true
						break
					}
				}
				if !related {
					continue
				}
			}
			rows = append(rows, Row{
				Entity:    l.Entity,
				Joined:    r.Entity,
				Values:    mergeValues(l.Values, r.Values),
				RelValues: mergeRel(l.RelValues, r.RelValues),
			})
		}
	}
	return rows
}

func (b *Bound) evalSide(t Term) []Row {
	switch term := t.(type) {
	case QueryRef:
		sub := Bind(b.world, term.Query)
		for key, buf := range b.buffers {
			sub.buffers[key] = buf
		}
		return sub.Rows()
	case ReactiveTerm:
		buf, ok := b.buffers[keyFor(term.Sub, term.Dir)]
		if !ok {
			return nil
		}
		var rows []Row
		for _, e := range buf.drain(term.Dir) {
			rows = append(rows, Row{Entity: e, Despawned: !b.world.IsLive(e)})
		}
		return rows
	default:
		return nil
	}
}

func mergeValues(a, b map[ecscomponent.ComponentID]any) map[ecscomponent.ComponentID]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[ecscomponent.ComponentID]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func mergeRel(a, b map[ecscomponent.ComponentID]ecsentity.Entity) map[ecscomponent.ComponentID]ecsentity.Entity {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[ecscomponent.ComponentID]ecsentity.Entity, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
