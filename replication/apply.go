// Package replication applies remote transactions and snapshots to a
// World: last-writer-wins value resolution, causal-key-based rebinding of
// predicted spawns, and the snapshot capture/application paths. Everything
// here runs under World.RemoteApply so a peer's ops are never echoed back
// out as this peer's own.
package replication

import (
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/ecsworld"
	"github.com/evalgo-forge/ecsreplica/enginelog"
	"github.com/evalgo-forge/ecsreplica/replop"
)

// ApplyOptions tunes how incoming transactions are applied.
type ApplyOptions struct {
	// CommandBufferID, when nonzero, names the resource component holding
	// a *CommandBuffer whose buffered targets are rewritten on rebind.
	CommandBufferID ecscomponent.ComponentID
	// Log overrides the logger warnings are reported through.
	Log *enginelog.ContextLogger
}

func (o ApplyOptions) logger() *enginelog.ContextLogger {
	if o.Log != nil {
		return o.Log
	}
	return enginelog.NewContextLogger(nil, nil)
}

// ApplyTransaction applies tx's ops in order against w, then advances the
// sending domain's tracked op_seq to tx.Seq+1. Ops are atomic
// individually: an op whose target is missing is skipped with a warning,
// never partially applied; there is no multi-op rollback mid-transaction.
func ApplyTransaction(w *ecsworld.World, tx replop.Transaction, opts ApplyOptions) {
	log := opts.logger().WithFields(enginelog.FieldsForTx(tx))

	d := w.Entities.Domain(tx.DomainID)
	if d.OpSeq > tx.Seq {
		log.WithField("expected_seq", d.OpSeq).Warn("out-of-order transaction seq; applying anyway, LWW converges")
	}

	w.RemoteApply(func() {
		for _, op := range tx.Ops {
			applyOp(w, tx, op, opts, log)
		}
	})
	w.Entities.SetOpSeq(tx.DomainID, tx.Seq+1)
}

func applyOp(w *ecsworld.World, tx replop.Transaction, op replop.Op, opts ApplyOptions, log *enginelog.ContextLogger) {
	version := ecscomponent.MakeVersion(tx.Tick, tx.DomainID)
	if op.HasVersion {
		version = op.Version
	}

	switch op.Kind {
	case replop.KindSpawn:
		applySpawn(w, op, version, opts, log)

	case replop.KindDespawn:
		if !w.IsLive(op.Entity) {
			log.WithFields(enginelog.FieldsForOp(op)).Debug("despawn for already-dead entity, skipped")
			return
		}
		_ = w.Despawn(op.Entity)

	case replop.KindSet:
		if !w.IsLive(op.Entity) {
			log.WithFields(enginelog.FieldsForOp(op)).Warn("set op for unknown entity, skipped")
			return
		}
		if op.HasRel {
			_ = w.AddRelation(op.Entity, op.ComponentID, op.Rel)
		}
		if op.HasData {
			_, _ = w.SetComponentValue(op.Entity, op.ComponentID, op.Data, version)
		}

	case replop.KindAdd:
		if !w.IsLive(op.Entity) {
			log.WithFields(enginelog.FieldsForOp(op)).Warn("add op for unknown entity, skipped")
			return
		}
		if op.HasRel {
			_ = w.AddRelation(op.Entity, op.ComponentID, op.Rel)
		}
		if op.HasData {
			_, _ = w.SetComponentValue(op.Entity, op.ComponentID, op.Data, version)
		} else if !w.HasComponent(op.Entity, op.ComponentID) {
			_ = w.AddComponent(op.Entity, op.ComponentID, nil, false)
		}

	case replop.KindRemove:
		if !w.IsLive(op.Entity) {
			log.WithFields(enginelog.FieldsForOp(op)).Warn("remove op for unknown entity, skipped")
			return
		}
		_ = w.RemoveComponent(op.Entity, op.ComponentID)
	}
}

// applySpawn handles the authoritative Spawn op: rebinding onto a
// prediction when the causal key matches one, installing a fresh entity
// otherwise, and treating a repeat Spawn for an already-live entity as a
// no-op.
func applySpawn(w *ecsworld.World, op replop.Op, version ecscomponent.Version, opts ApplyOptions, log *enginelog.ContextLogger) {
	if op.CausalKey != "" {
		if predicted, ok := w.Transient.Lookup(op.CausalKey); ok && predicted != op.Entity && w.IsLive(predicted) {
			w.RebindTransient(predicted, op.Entity)
			rebindCommandTargets(w, opts, predicted, op.Entity)
			log.WithFields(enginelog.FieldsForOp(op)).
				WithField("predicted", predicted.String()).
				Debug("rebound predicted spawn onto authoritative entity")
			refreshSpawnComponents(w, op, version)
			return
		}
	}

	if w.IsLive(op.Entity) {
		log.WithFields(enginelog.FieldsForOp(op)).Debug("spawn for already-live entity, skipped")
		return
	}
	w.InstallRemoteEntity(op.Entity, op.Components, version)
	if op.CausalKey != "" {
		// The prediction never happened here (or already expired); keep the
		// key pointing at the authoritative entity so re-simulation can
		// still resolve it.
		w.Transient.Register(op.CausalKey, op.Entity, version.Tick())
	}
}

// refreshSpawnComponents overlays the authoritative spawn's component
// payloads onto a freshly rebound entity: values land via LWW at the
// authoritative version, structural additions migrate the archetype.
func refreshSpawnComponents(w *ecsworld.World, op replop.Op, version ecscomponent.Version) {
	for _, c := range op.Components {
		if c.HasRel {
			_ = w.AddRelation(op.Entity, c.ID, c.Rel)
		}
		if c.HasData {
			_, _ = w.SetComponentValue(op.Entity, c.ID, c.Data, version)
		} else if !w.HasComponent(op.Entity, c.ID) {
			_ = w.AddComponent(op.Entity, c.ID, nil, false)
		}
	}
}

// rebindCommandTargets rewrites any buffered command aimed at the
// predicted entity so it fires against the authoritative one instead.
func rebindCommandTargets(w *ecsworld.World, opts ApplyOptions, predicted, authoritative ecsentity.Entity) {
	if opts.CommandBufferID == 0 {
		return
	}
	res, ok := w.GetResource(opts.CommandBufferID)
	if !ok {
		return
	}
	if buf, ok := res.(*CommandBuffer); ok {
		buf.RebindTarget(predicted, authoritative)
	}
}
