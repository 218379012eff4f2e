package ecsworld

import (
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/replop"
)

func (w *World) appendOp(op replop.Op) {
	if w.applyingRemote {
		return
	}
	w.pendingOps = append(w.pendingOps, op)
}

// snapshotLiveComponents returns e's current component payloads, used by
// replop.Reduce to snapshot a same-tick spawn's final state and by Despawn
// to capture undo data. Virtual pair IDs never appear as payloads of their
// own: a relation component expands into one payload per connected object
// instead, which is how relationships travel on the wire.
func (w *World) snapshotLiveComponents(e ecsentity.Entity) []replop.ComponentPayload {
	vec := w.currentVec(e)
	slot, ok := w.Dense.Slot(e)
	if !ok {
		return nil
	}
	out := make([]replop.ComponentPayload, 0, vec.Len())
	for _, id := range vec.IDs() {
		if ecscomponent.IsVirtual(id) {
			continue
		}
		var data any
		var hasData bool
		if col, ok := w.Store.ColumnIfExists(id); ok {
			if val, _, had := col.Get(slot); had {
				data, hasData = val, true
			}
		}
		if def, err := w.Registry.Get(id); err == nil && def.IsRelation {
			objects := w.Graph.ObjectsOf(id, e)
			if len(objects) > 0 {
				for _, obj := range objects {
					out = append(out, replop.ComponentPayload{ID: id, Data: data, HasData: hasData, Rel: obj, HasRel: true})
				}
				continue
			}
		}
		out = append(out, replop.ComponentPayload{ID: id, Data: data, HasData: hasData})
	}
	return out
}

// CommitTransaction reduces this tick's pending op log into its minimal
// form and packages it as a Transaction ready to publish, per spec.md
// §4.7. versionedWrites selects this module's Open-Question resolution for
// Set-vs-Add emission (see DESIGN.md): true keeps the explicit version on
// every Set op (the P2P path); false strips it, so the receiver versions
// each Set with the transaction's tick (the authoritative-server path).
// Add ops recorded by AddComponent go out unchanged in both modes, and no
// Set is rewritten into an Add, even one that first creates a component.
func (w *World) CommitTransaction(seq uint64, versionedWrites bool) replop.Transaction {
	reduced := replop.Reduce(w.pendingOps, w.snapshotLiveComponents)
	w.pendingOps = nil

	reduced = w.filterReplicated(reduced)

	if !versionedWrites {
		reduced = downgradeToUnversioned(reduced)
	}

	return replop.Transaction{
		DomainID: w.Entities.Self,
		Seq:      seq,
		Tick:     w.tick,
		Ops:      reduced,
	}
}

// filterReplicated discards ops whose entity never carried the configured
// replication-marker component — non-replicated entities are local-only
// and must not leak onto the wire. Entities despawned this tick keep their
// marker membership until here, so their despawn op still passes.
func (w *World) filterReplicated(ops []replop.Op) []replop.Op {
	if w.replicatedID == 0 {
		return ops
	}
	out := ops[:0]
	for _, op := range ops {
		if _, ok := w.replicated[op.Entity]; ok {
			out = append(out, op)
		}
	}
	for _, e := range w.despawnedReplicated {
		// An entity despawned and then respawned with the marker (rollback
		// followed by re-simulation) keeps its membership.
		if !w.IsLive(e) || !w.HasComponent(e, w.replicatedID) {
			delete(w.replicated, e)
		}
	}
	w.despawnedReplicated = nil
	return out
}

// downgradeToUnversioned strips explicit Version stamps from Set ops,
// matching the authoritative-server emission path where the receiving
// side's tx.tick supplies the version instead.
func downgradeToUnversioned(ops []replop.Op) []replop.Op {
	out := make([]replop.Op, len(ops))
	for i, op := range ops {
		if op.Kind == replop.KindSet {
			op.HasVersion = false
			op.Version = ecscomponent.Version(0)
		}
		out[i] = op
	}
	return out
}

// AdvanceTick increments the world's tick counter. Callers (cli's
// Host.Tick and the reconciler's re-simulation loop) call this between
// ticks after handing this tick's undo entries off to history.
func (w *World) AdvanceTick() {
	w.tick++
	w.tickSpawnCount = 0
}
