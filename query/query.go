package query

import "github.com/evalgo-forge/ecsreplica/ecscomponent"

// Query is a composite of terms: All, Join, or Unique, per spec.md §4.4.
type Query interface {
	terms() []Term
}

// All matches entities having every component required by Terms,
// optionally excluding those matched by a NotTerm, yielding one row per
// entity in term order (expanded Cartesian-wise for RelTerms with multiple
// objects).
type All struct {
	Terms []Term
}

func (a All) terms() []Term { return a.Terms }

// Join is the Cartesian product of Left's and Right's matches, optionally
// constrained to pairs related by Relation. Each side is a QueryRef
// (enumerated at yield time) or a ReactiveTerm (driven by its buffer) —
// spec.md §4.4's "partial reactivity: either side may be In/Out."
type Join struct {
	Left, Right Term
	Relation    *ecscomponent.ComponentID
}

func (j Join) terms() []Term { return []Term{j.Left, j.Right} }

// Unique requires exactly one match for Inner, used for singleton
// resources. Resolving it when zero or more than one row match is an
// error (see ErrNotUnique in binding.go).
type Unique struct {
	Inner Query
}

func (u Unique) terms() []Term { return u.Inner.terms() }

// requiredVec derives a query's required component set: every ReadTerm,
// WriteTerm, HasTerm, and RelTerm's own Relation component contributes.
// EntityTerm, NotTerm, and ReactiveTerm contribute nothing (ReactiveTerm's
// membership is driven by its own buffer, not graph-node matching).
func requiredVec(terms []Term) ecscomponent.Vec {
	var ids []ecscomponent.ComponentID
	for _, t := range terms {
		switch term := t.(type) {
		case ReadTerm:
			ids = append(ids, term.Component)
		case WriteTerm:
			ids = append(ids, term.Component)
		case HasTerm:
			ids = append(ids, term.Component)
		case RelTerm:
			ids = append(ids, term.Relation)
		}
	}
	return ecscomponent.MakeVec(ids)
}

// excludedVecs derives a query's exclusion set: one singleton Vec per
// NotTerm, matching Graph.NodesSupersetOf's per-excluded-Vec disjointness
// check.
func excludedVecs(terms []Term) []ecscomponent.Vec {
	var out []ecscomponent.Vec
	for _, t := range terms {
		if nt, ok := t.(NotTerm); ok {
			out = append(out, ecscomponent.MakeVec([]ecscomponent.ComponentID{nt.Component}))
		}
	}
	return out
}
