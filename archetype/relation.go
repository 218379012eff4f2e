package archetype

import (
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
)

func ensureNested(m map[ecscomponent.ComponentID]map[ecsentity.Entity]map[ecsentity.Entity]struct{}, relation ecscomponent.ComponentID, key ecsentity.Entity) map[ecsentity.Entity]struct{} {
	byKey, ok := m[relation]
	if !ok {
		byKey = make(map[ecsentity.Entity]map[ecsentity.Entity]struct{})
		m[relation] = byKey
	}
	set, ok := byKey[key]
	if !ok {
		set = make(map[ecsentity.Entity]struct{})
		byKey[key] = set
	}
	return set
}

// AddRelationship records that subject holds relation toward object,
// incrementing subject's per-relation reference count. Returns true the
// first time this exact (relation, subject, object) triple is recorded.
func (g *Graph) AddRelationship(relation ecscomponent.ComponentID, subject, object ecsentity.Entity) bool {
	subjects := ensureNested(g.objectToSubjects, relation, object)
	if _, already := subjects[subject]; already {
		return false
	}
	subjects[subject] = struct{}{}
	ensureNested(g.subjectToObjects, relation, subject)[object] = struct{}{}

	counts, ok := g.relationRefCount[subject]
	if !ok {
		counts = make(map[ecscomponent.ComponentID]int)
		g.relationRefCount[subject] = counts
	}
	counts[relation]++
	return true
}

// RemoveRelationship undoes AddRelationship for one (relation, subject,
// object) triple. It reports whether subject's reference count for
// relation dropped to zero, meaning the base relation component itself
// should now be removed from subject's Vec per spec.md §9's per-relation
// (not per-pair) reference counting.
func (g *Graph) RemoveRelationship(relation ecscomponent.ComponentID, subject, object ecsentity.Entity) (baseShouldBeRemoved bool) {
	byObject, ok := g.objectToSubjects[relation]
	if !ok {
		return false
	}
	subjects, ok := byObject[object]
	if !ok {
		return false
	}
	if _, had := subjects[subject]; !had {
		return false
	}
	delete(subjects, subject)
	if len(subjects) == 0 {
		delete(byObject, object)
	}
	if byObjects, ok := g.subjectToObjects[relation]; ok {
		if objects, ok := byObjects[subject]; ok {
			delete(objects, object)
			if len(objects) == 0 {
				delete(byObjects, subject)
			}
		}
	}

	counts := g.relationRefCount[subject]
	if counts == nil {
		return false
	}
	counts[relation]--
	if counts[relation] <= 0 {
		delete(counts, relation)
		if len(counts) == 0 {
			delete(g.relationRefCount, subject)
		}
		return true
	}
	return false
}

// IncomingRel is one (relation, subject) pair aimed at a given object.
type IncomingRel struct {
	Relation ecscomponent.ComponentID
	Subject  ecsentity.Entity
}

// IncomingRelationships returns every (relation, subject) pair whose
// object is the given entity — what object-despawn cleanup iterates to
// strip the relationship from each subject.
func (g *Graph) IncomingRelationships(object ecsentity.Entity) []IncomingRel {
	var out []IncomingRel
	for relation, byObject := range g.objectToSubjects {
		subjects, ok := byObject[object]
		if !ok {
			continue
		}
		for s := range subjects {
			out = append(out, IncomingRel{Relation: relation, Subject: s})
		}
	}
	return out
}

// SubjectsOf returns every subject currently holding relation toward
// object — the reverse index rebinding walks.
func (g *Graph) SubjectsOf(relation ecscomponent.ComponentID, object ecsentity.Entity) []ecsentity.Entity {
	byObject, ok := g.objectToSubjects[relation]
	if !ok {
		return nil
	}
	subjects, ok := byObject[object]
	if !ok {
		return nil
	}
	out := make([]ecsentity.Entity, 0, len(subjects))
	for s := range subjects {
		out = append(out, s)
	}
	return out
}

// ObjectsOf returns every object subject currently holds relation toward —
// the forward index query.RelTerm traversal walks.
func (g *Graph) ObjectsOf(relation ecscomponent.ComponentID, subject ecsentity.Entity) []ecsentity.Entity {
	byObjects, ok := g.subjectToObjects[relation]
	if !ok {
		return nil
	}
	objects, ok := byObjects[subject]
	if !ok {
		return nil
	}
	out := make([]ecsentity.Entity, 0, len(objects))
	for o := range objects {
		out = append(out, o)
	}
	return out
}

// RebindObject moves every (relation, *, oldObject) entry onto newObject —
// used when a predicted transient entity that was the object of one or
// more relationships gets rebound to its authoritative ID (spec.md §4.6,
// "Rebinding details").
func (g *Graph) RebindObject(oldObject, newObject ecsentity.Entity) {
	for relation, byObject := range g.objectToSubjects {
		subjects, ok := byObject[oldObject]
		if !ok {
			continue
		}
		delete(byObject, oldObject)
		if existing, ok := byObject[newObject]; ok {
			for s := range subjects {
				existing[s] = struct{}{}
			}
		} else {
			byObject[newObject] = subjects
		}
		for subject := range subjects {
			if objects, ok := g.subjectToObjects[relation][subject]; ok {
				delete(objects, oldObject)
				objects[newObject] = struct{}{}
			}
		}
	}
}

// RebindEntity redirects every graph structure keyed by old onto new: node
// membership, pending (unflushed) moves, the subject-side relation indexes
// and reference counts, and — via RebindObject — any relationships in which
// old was the object. The dense slot itself is rebound separately by
// ecsentity.DenseIndex.Rebind.
func (g *Graph) RebindEntity(old, new ecsentity.Entity) {
	if node, ok := g.byEntity[old]; ok {
		slot := node.slotOf[old]
		delete(node.slotOf, old)
		node.slotOf[new] = slot
		node.entities[slot] = new
		delete(g.byEntity, old)
		g.byEntity[new] = node
	}
	for i := range g.pending {
		if g.pending[i].entity == old {
			g.pending[i].entity = new
		}
	}
	for relation, byObjects := range g.subjectToObjects {
		objects, ok := byObjects[old]
		if !ok {
			continue
		}
		delete(byObjects, old)
		if existing, ok := byObjects[new]; ok {
			for o := range objects {
				existing[o] = struct{}{}
			}
		} else {
			byObjects[new] = objects
		}
		for object := range objects {
			if subjects, ok := g.objectToSubjects[relation][object]; ok {
				delete(subjects, old)
				subjects[new] = struct{}{}
			}
		}
	}
	if counts, ok := g.relationRefCount[old]; ok {
		delete(g.relationRefCount, old)
		if existing, ok := g.relationRefCount[new]; ok {
			for rel, n := range counts {
				existing[rel] += n
			}
		} else {
			g.relationRefCount[new] = counts
		}
	}
	g.RebindObject(old, new)
}

// RemoveSubjectEntirely drops every relationship in which subject
// participates as a subject, decrementing reference counts accordingly —
// used when subject itself despawns.
func (g *Graph) RemoveSubjectEntirely(subject ecsentity.Entity) {
	for relation, byObjects := range g.subjectToObjects {
		objects, ok := byObjects[subject]
		if !ok {
			continue
		}
		for object := range objects {
			if subjects, ok := g.objectToSubjects[relation][object]; ok {
				delete(subjects, subject)
				if len(subjects) == 0 {
					delete(g.objectToSubjects[relation], object)
				}
			}
		}
		delete(byObjects, subject)
	}
	delete(g.relationRefCount, subject)
}

// KnownObjects returns every object that currently has at least one
// subject recorded against relation.
func (g *Graph) KnownObjects(relation ecscomponent.ComponentID) []ecsentity.Entity {
	byObject, ok := g.objectToSubjects[relation]
	if !ok {
		return nil
	}
	out := make([]ecsentity.Entity, 0, len(byObject))
	for obj := range byObject {
		out = append(out, obj)
	}
	return out
}

// RefCount reports how many (relation, object) pairs remain live for
// subject under the given base relation component.
func (g *Graph) RefCount(subject ecsentity.Entity, relation ecscomponent.ComponentID) int {
	counts, ok := g.relationRefCount[subject]
	if !ok {
		return 0
	}
	return counts[relation]
}
