package replop

import "github.com/evalgo-forge/ecsreplica/ecsentity"

// Reduce coalesces a tick's worth of per-entity pending ops into the
// minimal op list that reproduces the same end state, per spec.md §4.7:
//
//   - if a spawn exists and no despawn, collapse to one spawn snapshotting
//     the entity's current live components;
//   - if a despawn exists, emit one despawn, discarding prior ops for that
//     entity in this tick;
//   - otherwise coalesce add/remove/set: the latest set wins per component,
//     and a remove overrides any earlier add of the same component.
//
// snapshot, given an entity that was spawned this tick, returns the
// component payload list to attach to the coalesced Spawn op (its current
// live components, per spec.md's "snapshotting the current live
// components"). With a nil snapshot the Spawn keeps the components it was
// recorded with and is followed by the entity's coalesced component ops.
func Reduce(ops []Op, snapshot func(entity ecsentity.Entity) []ComponentPayload) []Op {
	order := make([]ecsentity.Entity, 0, len(ops))
	seen := make(map[ecsentity.Entity]bool)
	spawned := make(map[ecsentity.Entity]Op)
	despawned := make(map[ecsentity.Entity]Op)
	componentOps := make(map[ecsentity.Entity][]Op)

	for _, op := range ops {
		if !seen[op.Entity] {
			seen[op.Entity] = true
			order = append(order, op.Entity)
		}
		switch op.Kind {
		case KindSpawn:
			spawned[op.Entity] = op
			delete(despawned, op.Entity)
			componentOps[op.Entity] = nil
		case KindDespawn:
			despawned[op.Entity] = op
			delete(spawned, op.Entity)
			componentOps[op.Entity] = nil
		default:
			componentOps[op.Entity] = append(componentOps[op.Entity], op)
		}
	}

	out := make([]Op, 0, len(ops))
	for _, e := range order {
		if op, ok := despawned[e]; ok {
			out = append(out, op)
			continue
		}
		if op, ok := spawned[e]; ok {
			if snapshot != nil {
				op.Components = snapshot(e)
				out = append(out, op)
				continue
			}
			out = append(out, op)
			coalesced := coalesceComponentOps(componentOps[e])
			out = append(out, coalesced...)
			continue
		}
		out = append(out, coalesceComponentOps(componentOps[e])...)
	}
	return out
}

// coalesceComponentOps applies the latest-set-wins / remove-overrides-add
// rule across a single entity's Set/Add/Remove ops within a tick, while
// preserving the relative order of first occurrence per component. Ops are
// keyed by (component, relation object) so two relationship adds of the
// same relation toward different objects both survive; a Remove overrides
// every earlier op of its component, pairs included.
func coalesceComponentOps(ops []Op) []Op {
	if len(ops) == 0 {
		return nil
	}
	type opKey struct {
		id  uint32
		rel uint32
	}
	keyOf := func(op Op) opKey {
		k := opKey{id: uint32(op.ComponentID)}
		if op.HasRel {
			k.rel = uint32(op.Rel)
		}
		return k
	}

	order := make([]opKey, 0, len(ops))
	seen := make(map[opKey]bool)
	latest := make(map[opKey]Op)

	for _, op := range ops {
		key := keyOf(op)
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
		if op.Kind == KindRemove {
			for k := range latest {
				if k.id == key.id {
					delete(latest, k)
				}
			}
		}
		latest[key] = op
	}

	out := make([]Op, 0, len(order))
	for _, key := range order {
		if op, ok := latest[key]; ok {
			out = append(out, op)
		}
	}
	return out
}
