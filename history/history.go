// Package history keeps the temporal window that makes rollback possible:
// periodic deep-cloned checkpoints of every live component value, plus a
// per-tick undo log of inverse operations covering the ticks in between.
// Both are capacity-bounded with oldest-eviction, so the window slides
// forward with the simulation.
package history

import (
	"sort"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/ecsworld"
	"github.com/evalgo-forge/ecsreplica/enginelog"
	"github.com/evalgo-forge/ecsreplica/replop"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// cell is one deep-cloned component value and its version stamp.
type cell struct {
	Value   any
	Version ecscomponent.Version
}

// Checkpoint is a full deep snapshot of the world's live component values
// at one tick, keyed by entity so a restore survives dense-slot reuse.
type Checkpoint struct {
	Tick  uint64
	Cells map[ecscomponent.ComponentID]map[ecsentity.Entity]cell
	// Vecs records each live entity's component set at capture time, so a
	// checkpoint can rebuild a fresh world's structure when seeding from
	// the durable store.
	Vecs map[ecsentity.Entity][]ecscomponent.ComponentID
}

// CheckpointStore is the optional durable home for checkpoint blobs; see
// boltstore for the bbolt-backed implementation.
type CheckpointStore interface {
	Put(tick uint64, blob []byte) error
	Latest() (tick uint64, blob []byte, ok bool, err error)
	Prune(keepNewest int) error
}

// Config sizes the history window.
type Config struct {
	// MaxTicks bounds how far back the window reaches; entries older than
	// current-MaxTicks are evicted.
	MaxTicks int
	// CheckpointInterval is the cadence, in ticks, of full checkpoints.
	CheckpointInterval int
	// Store, when non-nil, also persists each checkpoint durably.
	Store CheckpointStore
	// KeepStored bounds how many checkpoints the durable store retains.
	KeepStored int
}

type tickUndo struct {
	tick    uint64
	entries []ecsworld.UndoEntry
}

// History owns the checkpoint ring and the undo log.
type History struct {
	cfg         Config
	checkpoints []*Checkpoint // ascending by tick
	undo        []tickUndo    // ascending by tick
	undoFloor   uint64        // ticks >= undoFloor have complete undo coverage
	log         *enginelog.ContextLogger
}

// New creates an empty history window.
func New(cfg Config) *History {
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = 120
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 10
	}
	if cfg.KeepStored <= 0 {
		cfg.KeepStored = 4
	}
	return &History{cfg: cfg, log: enginelog.NewContextLogger(nil, nil)}
}

// cloneValue deep-copies a component value via its serde round trip, the
// cloning strategy that works for any value the engine does not otherwise
// control. Values without a serde are stored as-is.
func cloneValue(reg *ecscomponent.Registry, id ecscomponent.ComponentID, v any) any {
	def, err := reg.Get(id)
	if err != nil || def.Serde == nil {
		return v
	}
	w := wire.AcquireWriter()
	defer wire.ReleaseWriter(w)
	if err := def.Serde.Encode(v, w); err != nil {
		return v
	}
	out, err := def.Serde.Decode(wire.NewReader(w.Bytes()))
	if err != nil {
		return v
	}
	return out
}

// PushCheckpoint deep-clones every live component value at the world's
// current tick into a new checkpoint, evicting the oldest once the window
// is full, and persists it to the durable store when one is configured.
func (h *History) PushCheckpoint(w *ecsworld.World) *Checkpoint {
	c := &Checkpoint{
		Tick:  w.Tick(),
		Cells: make(map[ecscomponent.ComponentID]map[ecsentity.Entity]cell),
		Vecs:  make(map[ecsentity.Entity][]ecscomponent.ComponentID),
	}
	for _, e := range w.Graph.LiveEntities() {
		node, ok := w.Graph.NodeOf(e)
		if !ok {
			continue
		}
		ids := node.Vec.IDs()
		vec := make([]ecscomponent.ComponentID, len(ids))
		copy(vec, ids)
		c.Vecs[e] = vec
		for _, id := range ids {
			val, ver, ok := w.GetComponent(e, id)
			if !ok {
				continue
			}
			byEntity, ok := c.Cells[id]
			if !ok {
				byEntity = make(map[ecsentity.Entity]cell)
				c.Cells[id] = byEntity
			}
			byEntity[e] = cell{Value: cloneValue(w.Registry, id, val), Version: ver}
		}
	}

	h.checkpoints = append(h.checkpoints, c)
	h.evict(w.Tick())

	if h.cfg.Store != nil {
		blob := EncodeCheckpoint(w.Registry, c)
		if err := h.cfg.Store.Put(c.Tick, blob); err != nil {
			h.log.WithError(err).WithField("tick", c.Tick).Warn("failed to persist checkpoint")
		} else {
			h.log.WithField("tick", c.Tick).
				WithField("size", enginelog.PayloadSize(len(blob))).
				Debug("checkpoint persisted")
			if err := h.cfg.Store.Prune(h.cfg.KeepStored); err != nil {
				h.log.WithError(err).Warn("failed to prune stored checkpoints")
			}
		}
	}
	return c
}

// BeginTick pushes a checkpoint when the cadence says so. Call it at the
// start of a frame, before any of the tick's mutations: a checkpoint at
// tick T captures the state rollback_to_tick(T) must land on, the state
// tick T's systems have not yet touched.
func (h *History) BeginTick(w *ecsworld.World) {
	if w.Tick()%uint64(h.cfg.CheckpointInterval) == 0 {
		h.PushCheckpoint(w)
	}
}

// EndTick batches the tick's undo entries into the log. Call it after the
// schedule has run for the tick and before World.AdvanceTick.
func (h *History) EndTick(w *ecsworld.World) {
	entries := w.DrainUndoEntries()
	if len(entries) > 0 {
		h.undo = append(h.undo, tickUndo{tick: w.Tick(), entries: entries})
	}
	h.evict(w.Tick())
}

// evict drops checkpoints and undo batches that have slid out of the
// window.
func (h *History) evict(current uint64) {
	if current < uint64(h.cfg.MaxTicks) {
		return
	}
	floor := current - uint64(h.cfg.MaxTicks)
	for len(h.checkpoints) > 1 && h.checkpoints[0].Tick < floor {
		h.checkpoints = h.checkpoints[1:]
	}
	for len(h.undo) > 0 && h.undo[0].tick < floor {
		if next := h.undo[0].tick + 1; next > h.undoFloor {
			h.undoFloor = next
		}
		h.undo = h.undo[1:]
	}
	if floor > h.undoFloor {
		h.undoFloor = floor
	}
}

// OldestCheckpointTick reports the window's reachable floor.
func (h *History) OldestCheckpointTick() (uint64, bool) {
	if len(h.checkpoints) == 0 {
		return 0, false
	}
	return h.checkpoints[0].Tick, true
}

// nearestCheckpointAtOrBefore returns the newest checkpoint whose tick is
// <= t.
func (h *History) nearestCheckpointAtOrBefore(t uint64) *Checkpoint {
	i := sort.Search(len(h.checkpoints), func(i int) bool { return h.checkpoints[i].Tick > t })
	if i == 0 {
		return nil
	}
	return h.checkpoints[i-1]
}

// RollbackToTick restores w to its state at the start of tick t — the
// state tick t's systems are about to re-run against. It returns false
// when t lies outside the reachable window (after the current tick, or
// before the oldest checkpoint) — the caller then falls back to applying
// the late transaction directly.
//
// When the undo log still covers every tick in [t, current), replaying it
// in reverse is exact on its own. When part of that range has been
// evicted, the nearest checkpoint <= t is restored first and the surviving
// undo entries replayed on top.
func (h *History) RollbackToTick(w *ecsworld.World, t uint64) bool {
	current := w.Tick()
	if t > current {
		return false
	}
	if t == current {
		return true
	}
	oldest, ok := h.OldestCheckpointTick()
	if !ok || t < oldest {
		return false
	}

	if t < h.undoFloor {
		c := h.nearestCheckpointAtOrBefore(t)
		if c == nil {
			return false
		}
		h.restoreCheckpoint(w, c)
	}

	// Replay undo batches in reverse for every tick in [t, current). The
	// replay runs op-suppressed: reversing history must not emit fresh
	// replication ops of its own.
	w.RemoteApply(func() {
		for i := len(h.undo) - 1; i >= 0; i-- {
			batch := h.undo[i]
			if batch.tick < t {
				break
			}
			for j := len(batch.entries) - 1; j >= 0; j-- {
				w.ApplyUndo(batch.entries[j])
			}
		}
	})
	// Consumed: the undone ticks' batches no longer describe the world.
	for len(h.undo) > 0 && h.undo[len(h.undo)-1].tick >= t {
		h.undo = h.undo[:len(h.undo)-1]
	}
	// Checkpoints newer than t describe a future that never happened.
	for len(h.checkpoints) > 0 && h.checkpoints[len(h.checkpoints)-1].Tick > t {
		h.checkpoints = h.checkpoints[:len(h.checkpoints)-1]
	}

	w.DrainUndoEntries() // discard entries generated by the replay itself
	w.Graph.FlushGraphChanges()
	w.SetTick(t)
	return true
}

// restoreCheckpoint overwrites live component values with the checkpoint's
// deep-cloned cells. Structure (entities spawned or despawned since) is
// reconciled by the undo replay that follows.
func (h *History) restoreCheckpoint(w *ecsworld.World, c *Checkpoint) {
	for id, byEntity := range c.Cells {
		for e, cl := range byEntity {
			slot, ok := w.Dense.Slot(e)
			if !ok {
				continue
			}
			w.Store.Column(id).Write(slot, cloneValue(w.Registry, id, cl.Value), cl.Version)
		}
	}
}

// SeedFromStore rebuilds a fresh world from the durable store's newest
// checkpoint, installing every recorded entity with its captured values,
// and fast-forwards the world's tick to the checkpoint's. Returns false
// when the store is empty.
func (h *History) SeedFromStore(w *ecsworld.World) (bool, error) {
	if h.cfg.Store == nil {
		return false, nil
	}
	tick, blob, ok, err := h.cfg.Store.Latest()
	if err != nil || !ok {
		return false, err
	}
	c, err := DecodeCheckpoint(w.Registry, blob)
	if err != nil {
		return false, err
	}
	w.RemoteApply(func() {
		for e, ids := range c.Vecs {
			payloads := make([]replop.ComponentPayload, 0, len(ids))
			for _, id := range ids {
				p := replop.ComponentPayload{ID: id}
				if byEntity, ok := c.Cells[id]; ok {
					if cl, ok := byEntity[e]; ok {
						p.Data, p.HasData = cloneValue(w.Registry, id, cl.Value), true
					}
				}
				payloads = append(payloads, p)
			}
			w.InstallRemoteEntity(e, payloads, ecscomponent.MakeVersion(tick, e.Domain()))
		}
	})
	w.DrainUndoEntries()
	w.Graph.FlushGraphChanges()
	w.SetTick(tick)
	h.checkpoints = append(h.checkpoints, c)
	h.undoFloor = tick
	h.log.WithField("tick", tick).Info("world seeded from durable checkpoint")
	return true, nil
}
