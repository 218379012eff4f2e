package reconcile

import (
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/ecsworld"
	"github.com/evalgo-forge/ecsreplica/enginelog"
	"github.com/evalgo-forge/ecsreplica/history"
	"github.com/evalgo-forge/ecsreplica/replication"
	"github.com/evalgo-forge/ecsreplica/schedule"
)

// Reconciler ties the remote queue, the history window, and the schedule
// together into the two reconciliation flavors systems can invoke.
type Reconciler struct {
	Queue    *RemoteQueue
	History  *history.History
	Schedule *schedule.Schedule
	Apply    replication.ApplyOptions

	// GhostWindow is the number of ticks a prediction may wait for its
	// authoritative counterpart before being cleaned up.
	GhostWindow uint64

	log *enginelog.ContextLogger
}

// NewReconciler wires a reconciler around a world's queue, history, and
// schedule.
func NewReconciler(queue *RemoteQueue, hist *history.History, sched *schedule.Schedule, apply replication.ApplyOptions, ghostWindow uint64) *Reconciler {
	return &Reconciler{
		Queue:       queue,
		History:     hist,
		Schedule:    sched,
		Apply:       apply,
		GhostWindow: ghostWindow,
		log:         enginelog.NewContextLogger(nil, nil),
	}
}

// ApplyForCurrentTick is the stream flavor: drain the queue for the
// world's current tick, apply those transactions in arrival order, and
// flush graph changes so the next system observes the batch.
func (r *Reconciler) ApplyForCurrentTick(w *ecsworld.World) {
	txs := r.Queue.Take(w.Tick())
	if len(txs) == 0 {
		return
	}
	for _, tx := range txs {
		replication.ApplyTransaction(w, tx, r.Apply)
	}
	w.Graph.FlushGraphChanges()
}

// PerformBatchReconciliation is the rollback + re-simulate flavor, run at
// the start of a frame. If any transaction arrived for a tick before the
// world's current one, roll the world back to that tick, then re-run the
// schedule tick-by-tick — applying each tick's buffered transactions
// first — until caught back up. Transactions too old to roll back to are
// applied directly; LWW still converges their values.
func (r *Reconciler) PerformBatchReconciliation(w *ecsworld.World) {
	target := w.Tick()
	m, ok := r.Queue.MinTickBelow(target)
	if !ok {
		return
	}

	if !r.History.RollbackToTick(w, m) {
		r.log.WithField("tick", m).Warn("late transactions predate the history window; applying directly")
		for tick := m; tick < target; tick++ {
			for _, tx := range r.Queue.Take(tick) {
				replication.ApplyTransaction(w, tx, r.Apply)
			}
		}
		w.Graph.FlushGraphChanges()
		return
	}

	r.log.WithField("from", m).WithField("to", target).Debug("rolled back for batch reconciliation")
	for w.Tick() < target {
		r.History.BeginTick(w)
		for _, tx := range r.Queue.Take(w.Tick()) {
			replication.ApplyTransaction(w, tx, r.Apply)
		}
		w.Graph.FlushGraphChanges()
		r.Schedule.RunTick(w)
		r.History.EndTick(w)
		w.AdvanceTick()
	}
}

// GhostSweep removes transient-registry entries older than the ghost
// window and force-despawns predictions that never rebound. An entry whose
// entity left the transient domain (it was rebound) is only forgotten. Run
// it at end-of-tick, after flush_graph_changes, so a node kept alive only
// by a swept ghost is pruned in the same tick.
func (r *Reconciler) GhostSweep(w *ecsworld.World) {
	if w.Tick() < r.GhostWindow {
		return
	}
	cutoff := w.Tick() - r.GhostWindow
	for key, entity := range w.Transient.Stale(cutoff) {
		w.Transient.Forget(key)
		if entity.Domain() == ecsentity.TransientDomain && w.IsLive(entity) {
			r.log.WithField("entity", entity.String()).WithField("causal_key", key).
				Debug("ghost prediction expired, despawning")
			_ = w.Despawn(entity)
		}
	}
	w.Graph.FlushGraphChanges()
}

// CleanupCommandEntities despawns every live entity in the reserved
// command domain — commands are ephemeral intents torn down at the end of
// the tick that created them.
func CleanupCommandEntities(w *ecsworld.World) {
	d := w.Entities.Domain(ecsentity.CommandDomain)
	doomed := make([]ecsentity.Entity, 0, len(d.Live))
	for e := range d.Live {
		if e != w.ResourceEntity() && w.IsLive(e) {
			doomed = append(doomed, e)
		}
	}
	for _, e := range doomed {
		_ = w.Despawn(e)
	}
	w.Graph.FlushGraphChanges()
}
