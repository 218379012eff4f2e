package ecsworld

import (
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/replop"
)

// UndoKind tags which reverse action an UndoEntry describes, per spec.md
// §4.9.
type UndoKind uint8

const (
	UndoSpawn UndoKind = iota
	UndoDespawn
	UndoAdd
	UndoRemove
)

// UndoEntry is one reversible record of a mutation, appended to the
// world's current-tick undo buffer by every mutator method. history
// batches these by tick and replays them in reverse during rollback.
type UndoEntry struct {
	Kind        UndoKind
	Entity      ecsentity.Entity
	ComponentID ecscomponent.ComponentID
	Data        any
	HasData     bool
	Rel         ecsentity.Entity
	HasRel      bool
	Components  []replop.ComponentPayload // UndoDespawn: every captured component

	// reinstateOnly marks an UndoRemove entry produced by overwriting an
	// already-present value (via SetComponentValue) rather than by an
	// actual RemoveComponent call: reversing it restores the prior value
	// in place without migrating the archetype, since the component never
	// structurally left the entity.
	reinstateOnly bool
}

// ReinstateOnly reports whether this entry's reversal should only restore
// a prior value in place, not migrate the archetype.
func (u UndoEntry) ReinstateOnly() bool { return u.reinstateOnly }

func (w *World) appendUndo(entry UndoEntry) {
	w.currentUndoLog = append(w.currentUndoLog, entry)
}

// DrainUndoEntries returns and clears the undo entries accumulated since
// the last drain — called by history at tick advance to batch them into
// its per-tick log.
func (w *World) DrainUndoEntries() []UndoEntry {
	entries := w.currentUndoLog
	w.currentUndoLog = nil
	return entries
}

// ApplyUndo reverses a single UndoEntry against the live world, in the
// manner history.RollbackToTick replays entries in reverse order.
func (w *World) ApplyUndo(u UndoEntry) {
	switch u.Kind {
	case UndoSpawn:
		// The entity was spawned during the tick being undone: remove it.
		if w.IsLive(u.Entity) {
			_ = w.Despawn(u.Entity)
			w.DrainUndoEntries() // discard the undo entries Despawn just generated
		}
	case UndoDespawn:
		// The entity was despawned during the tick being undone: restore
		// it with its captured components, preserving its original ID.
		if !w.IsLive(u.Entity) {
			w.Dense.Alloc(u.Entity)
			w.Entities.Observe(u.Entity)
			w.installEntity(u.Entity, u.Components)
			w.DrainUndoEntries()
		}
	case UndoAdd:
		// The component was newly added during the tick being undone:
		// remove it again. A relationship add reverses as a single-pair
		// removal so the subject's other pairs of the same relation stay.
		if w.HasComponent(u.Entity, u.ComponentID) {
			if u.HasRel {
				_ = w.RemoveRelation(u.Entity, u.ComponentID, u.Rel)
			} else {
				_ = w.RemoveComponent(u.Entity, u.ComponentID)
			}
			w.DrainUndoEntries()
		}
	case UndoRemove:
		if u.reinstateOnly {
			if slot, ok := w.Dense.Slot(u.Entity); ok && u.HasData {
				w.Store.Column(u.ComponentID).Write(slot, u.Data, 0)
			}
			return
		}
		// The component was removed during the tick being undone: restore
		// its value (and relation, if any).
		_ = w.addComponent(u.Entity, u.ComponentID, u.Data, u.HasData, u.Rel, u.HasRel)
		w.DrainUndoEntries()
	}
}
