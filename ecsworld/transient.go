package ecsworld

import "github.com/evalgo-forge/ecsreplica/ecsentity"

// transientEntry tracks one predictively-spawned entity awaiting
// rebinding to its authoritative counterpart, per spec.md §4.10's client
// state machine (Absent -> Predicted -> Authoritative).
type transientEntry struct {
	entity       ecsentity.Entity
	registeredAt uint64
}

// TransientRegistry maps causal keys to predicted entities, letting a
// later authoritative Spawn with the same key rebind onto the prediction
// instead of creating a duplicate.
type TransientRegistry struct {
	byKey map[string]transientEntry
}

func newTransientRegistry() *TransientRegistry {
	return &TransientRegistry{byKey: make(map[string]transientEntry)}
}

// Register records entity as the prediction for causalKey, made at tick.
func (t *TransientRegistry) Register(causalKey string, entity ecsentity.Entity, tick uint64) {
	t.byKey[causalKey] = transientEntry{entity: entity, registeredAt: tick}
}

// Lookup returns the entity registered for causalKey, if any.
func (t *TransientRegistry) Lookup(causalKey string) (ecsentity.Entity, bool) {
	e, ok := t.byKey[causalKey]
	return e.entity, ok
}

// Rebind updates the registry entry for causalKey to point at
// authoritative instead of its previous (transient) entity, per spec.md
// §4.6's "the transient_registry itself is updated in place ... so
// re-simulation still finds it."
func (t *TransientRegistry) Rebind(causalKey string, authoritative ecsentity.Entity) {
	if entry, ok := t.byKey[causalKey]; ok {
		entry.entity = authoritative
		t.byKey[causalKey] = entry
	}
}

// Forget removes causalKey's entry entirely.
func (t *TransientRegistry) Forget(causalKey string) {
	delete(t.byKey, causalKey)
}

// ForgetEntity removes every entry pointing at entity — called on despawn
// so ghost cleanup can never act on a reclaimed id (spec.md §8's
// command-boundary guarantee).
func (t *TransientRegistry) ForgetEntity(entity ecsentity.Entity) {
	for key, entry := range t.byKey {
		if entry.entity == entity {
			delete(t.byKey, key)
		}
	}
}

// RebindEntity redirects every entry pointing at old onto new, the
// registry half of predictive-spawn rebinding.
func (t *TransientRegistry) RebindEntity(old, new ecsentity.Entity) {
	for key, entry := range t.byKey {
		if entry.entity == old {
			entry.entity = new
			t.byKey[key] = entry
		}
	}
}

// Stale returns every (causalKey, entity) pair registered at or before
// cutoffTick — ghost-cleanup candidates per spec.md §4.10.
func (t *TransientRegistry) Stale(cutoffTick uint64) map[string]ecsentity.Entity {
	out := make(map[string]ecsentity.Entity)
	for key, entry := range t.byKey {
		if entry.registeredAt <= cutoffTick {
			out[key] = entry.entity
		}
	}
	return out
}
