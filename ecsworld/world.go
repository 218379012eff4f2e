// Package ecsworld holds the World: the live entity/component storage,
// the archetype graph, resources, the transient-entity registry, and the
// per-tick pending-op and undo logs every mutation feeds. It is the single
// mutable root every system, query, and replication operation reads from
// and writes through.
package ecsworld

import (
	"fmt"

	"github.com/evalgo-forge/ecsreplica/archetype"
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/replop"
)

// ErrUnknownEntity is returned by mutators given an entity the world has
// never seen (never spawned, or already despawned).
var ErrUnknownEntity = fmt.Errorf("ecsworld: unknown entity")

// World is the engine's single mutable root.
type World struct {
	Registry  *ecscomponent.Registry
	Entities  *ecsentity.Registry
	Dense     *ecsentity.DenseIndex
	Store     *ecscomponent.Store
	Graph     *archetype.Graph
	Transient *TransientRegistry

	tick uint64

	pendingOps     []replop.Op
	currentUndoLog []UndoEntry
	resourceEntity ecsentity.Entity

	// applyingRemote suppresses pending-op recording while a remote
	// transaction or snapshot is being applied: replaying a peer's ops
	// must not re-emit them as this peer's own.
	applyingRemote bool

	// replicatedID, when set, is the tag component marking an entity as
	// participating in replication; ops for entities without it are
	// discarded at commit.
	replicatedID        ecscomponent.ComponentID
	replicated          map[ecsentity.Entity]struct{}
	despawnedReplicated []ecsentity.Entity

	tickSpawnCount int
}

// NewWorld creates an empty world owned by self, the local peer's domain.
func NewWorld(self ecsentity.DomainID) *World {
	w := &World{
		Registry:   ecscomponent.NewRegistry(),
		Entities:   ecsentity.NewRegistry(self),
		Dense:      ecsentity.NewDenseIndex(),
		Store:      ecscomponent.NewStore(),
		Graph:      archetype.NewGraph(),
		Transient:  newTransientRegistry(),
		replicated: make(map[ecsentity.Entity]struct{}),
	}
	w.resourceEntity = w.Entities.AllocCommand()
	w.Dense.Alloc(w.resourceEntity)
	w.Graph.SetEntityNode(w.resourceEntity, w.Graph.Root())
	return w
}

// Tick returns the world's current tick counter.
func (w *World) Tick() uint64 { return w.tick }

// SetTick forcibly sets the tick counter — used by history.RollbackToTick.
func (w *World) SetTick(t uint64) { w.tick = t }

// SetReplicatedComponent names the tag component that marks entities as
// replicated. Once set, CommitTransaction discards ops for entities that
// never carried it; unset (the zero ComponentID), every op passes through.
func (w *World) SetReplicatedComponent(id ecscomponent.ComponentID) {
	w.replicatedID = id
}

// ReplicatedComponent returns the configured replication-marker component,
// zero if none was set.
func (w *World) ReplicatedComponent() ecscomponent.ComponentID { return w.replicatedID }

// IsReplicated reports whether e currently participates in replication.
func (w *World) IsReplicated(e ecsentity.Entity) bool {
	if w.replicatedID == 0 {
		return true
	}
	_, ok := w.replicated[e]
	return ok
}

// RemoteApply runs fn with pending-op recording suppressed, so mutations
// made while applying a peer's transaction or snapshot are not echoed back
// out as this peer's own ops. Undo recording stays active: remote
// applications must still be reversible by rollback.
func (w *World) RemoteApply(fn func()) {
	prev := w.applyingRemote
	w.applyingRemote = true
	fn()
	w.applyingRemote = prev
}

// TickSpawnCount reports how many entities have been spawned so far this
// tick — the spawn_index_in_tick half of a causal key.
func (w *World) TickSpawnCount() int { return w.tickSpawnCount }

// RebindTransient redirects every structure keyed by the predicted entity
// onto authoritative: the dense slot (component data stays in place), the
// graph node membership and relation indexes, the live sets, and the
// replication marker. The owning domain's next local id is advanced past
// the authoritative id so no later local allocation collides with it.
func (w *World) RebindTransient(predicted, authoritative ecsentity.Entity) {
	incoming := w.Graph.IncomingRelationships(predicted)

	w.Dense.Rebind(predicted, authoritative)
	w.Graph.RebindEntity(predicted, authoritative)

	// Each subject that pointed a relationship at the prediction swaps its
	// stale virtual pair ID for one minted under the authoritative entity.
	for _, inc := range incoming {
		subject := inc.Subject
		if subject == predicted {
			subject = authoritative
		}
		oldVid := w.Registry.VirtualID(inc.Relation, predicted)
		newVid := w.Registry.VirtualID(inc.Relation, authoritative)
		vec := w.currentVec(subject)
		if !vec.Has(oldVid) {
			continue
		}
		next := ecscomponent.Sum(
			ecscomponent.Difference(vec, ecscomponent.MakeVec([]ecscomponent.ComponentID{oldVid})),
			ecscomponent.MakeVec([]ecscomponent.ComponentID{newVid}),
		)
		w.migrate(subject, next)
	}
	w.Entities.Free(predicted)
	w.Entities.Observe(authoritative)
	w.Entities.AdvancePast(authoritative.Domain(), authoritative.Local())
	w.Transient.RebindEntity(predicted, authoritative)
	if _, ok := w.replicated[predicted]; ok {
		delete(w.replicated, predicted)
		w.replicated[authoritative] = struct{}{}
	}
}

// ResourceEntity returns the dedicated entity singleton component resources
// are stored on, per spec.md §5's "Resources are singleton component
// values ... stored on a dedicated entity."
func (w *World) ResourceEntity() ecsentity.Entity { return w.resourceEntity }

// currentVec returns the canonical component Vec an entity's graph node
// represents, or the empty Vec if the entity has never been placed.
func (w *World) currentVec(e ecsentity.Entity) ecscomponent.Vec {
	if n, ok := w.Graph.NodeOf(e); ok {
		return n.Vec
	}
	return ecscomponent.MakeVec(nil)
}

// migrate moves e to the node for newVec, creating it if necessary, and
// records the move for the next flush.
func (w *World) migrate(e ecsentity.Entity, newVec ecscomponent.Vec) {
	node := w.Graph.FindOrCreateNode(newVec)
	w.Graph.SetEntityNode(e, node)
}

// Spawn creates a new entity in the local domain with the given component
// payloads installed, and records an undo_spawn entry. causalKey, if
// non-empty, registers the entity in the transient registry so a later
// authoritative Spawn with the same key can rebind onto it.
func (w *World) Spawn(components []replop.ComponentPayload, causalKey string) (ecsentity.Entity, error) {
	e, err := w.Entities.Alloc()
	if err != nil {
		return 0, err
	}
	w.installEntity(e, components)
	w.tickSpawnCount++
	if causalKey != "" {
		w.Transient.Register(causalKey, e, w.tick)
	}
	w.appendOp(replop.Op{Kind: replop.KindSpawn, Entity: e, Components: components, CausalKey: causalKey})
	w.appendUndo(UndoEntry{Kind: UndoSpawn, Entity: e})
	return e, nil
}

// SpawnTransient is Spawn into the reserved transient domain (2046), used
// by client-side prediction per spec.md §4.10's state machine.
func (w *World) SpawnTransient(components []replop.ComponentPayload, causalKey string) ecsentity.Entity {
	e := w.Entities.AllocTransient()
	w.installEntity(e, components)
	w.tickSpawnCount++
	w.Transient.Register(causalKey, e, w.tick)
	w.appendUndo(UndoEntry{Kind: UndoSpawn, Entity: e})
	return e
}

// installEntity performs the shared bookkeeping Spawn/SpawnTransient need:
// dense slot allocation, component writes, and an initial graph placement.
// A relationship payload contributes both the base relation component and
// its minted virtual pair ID to the entity's Vec.
func (w *World) installEntity(e ecsentity.Entity, components []replop.ComponentPayload) {
	w.Dense.Alloc(e)
	ids := make([]ecscomponent.ComponentID, 0, len(components))
	for _, c := range components {
		ids = append(ids, c.ID)
		if c.HasRel {
			ids = append(ids, w.Registry.VirtualID(c.ID, c.Rel))
		}
		w.writeComponentPayload(e, c)
	}
	w.migrate(e, ecscomponent.MakeVec(ids))
}

func (w *World) writeComponentPayload(e ecsentity.Entity, c replop.ComponentPayload) {
	slot, _ := w.Dense.Slot(e)
	if c.HasData {
		w.Store.Column(c.ID).Write(slot, c.Data, ecscomponent.MakeVersion(w.tick, w.Entities.Self))
	}
	if c.HasRel {
		w.Graph.AddRelationship(c.ID, e, c.Rel)
	}
	if w.replicatedID != 0 && c.ID == w.replicatedID {
		w.replicated[e] = struct{}{}
	}
}

// InstallRemoteEntity places an entity learned from a remote spawn op or
// snapshot: observes it in its domain (advancing that domain's next local
// id past it), allocates a dense slot, writes its component payloads at
// the given version, and records an undo_spawn entry so rollback can
// remove it again. The caller is responsible for op suppression via
// RemoteApply.
func (w *World) InstallRemoteEntity(e ecsentity.Entity, components []replop.ComponentPayload, version ecscomponent.Version) {
	w.Entities.Observe(e)
	w.Dense.Alloc(e)
	slot, _ := w.Dense.Slot(e)
	ids := make([]ecscomponent.ComponentID, 0, len(components))
	for _, c := range components {
		ids = append(ids, c.ID)
		if c.HasData {
			w.Store.Column(c.ID).Write(slot, c.Data, version)
		}
		if c.HasRel {
			w.Graph.AddRelationship(c.ID, e, c.Rel)
			ids = append(ids, w.Registry.VirtualID(c.ID, c.Rel))
		}
		if w.replicatedID != 0 && c.ID == w.replicatedID {
			w.replicated[e] = struct{}{}
		}
	}
	w.migrate(e, ecscomponent.MakeVec(ids))
	w.appendUndo(UndoEntry{Kind: UndoSpawn, Entity: e})
}

// Despawn removes an entity entirely: records an undo_despawn capturing
// every current component's data and relation target, unregisters incoming
// relations, clears stored values, removes the entity from the graph, and
// frees it from the domain's live set.
func (w *World) Despawn(e ecsentity.Entity) error {
	node, ok := w.Graph.NodeOf(e)
	if !ok {
		return ErrUnknownEntity
	}
	slot, _ := w.Dense.Slot(e)

	captured := w.snapshotLiveComponents(e)

	// e may be the object of relationships held by other subjects: strip
	// each such pair so no subject keeps a dangling relationship.
	for _, inc := range w.Graph.IncomingRelationships(e) {
		if inc.Subject == e {
			continue
		}
		_ = w.RemoveRelation(inc.Subject, inc.Relation, e)
	}

	for _, id := range node.Vec.IDs() {
		if ecscomponent.IsVirtual(id) {
			continue
		}
		if col, ok := w.Store.ColumnIfExists(id); ok {
			col.Clear(slot)
		}
	}
	w.Graph.RemoveSubjectEntirely(e)
	w.Graph.SetEntityNode(e, nil)
	w.Dense.Free(e)
	w.Entities.Free(e)
	w.Transient.ForgetEntity(e)
	if _, ok := w.replicated[e]; ok {
		w.despawnedReplicated = append(w.despawnedReplicated, e)
	}

	w.appendOp(replop.Op{Kind: replop.KindDespawn, Entity: e})
	w.appendUndo(UndoEntry{Kind: UndoDespawn, Entity: e, Components: captured})
	return nil
}

// AddComponent installs data (or a tag/relation marker with no data) under
// id on e, migrating e's archetype if this is a structurally new
// component. Adding a component that already carries a value overwrites it
// unconditionally — AddComponent carries no LWW gate, matching ReplicationOp
// Add's "structural add without a meaningful prior version" semantics.
func (w *World) AddComponent(e ecsentity.Entity, id ecscomponent.ComponentID, data any, hasData bool) error {
	return w.addComponent(e, id, data, hasData, 0, false)
}

// AddRelation is AddComponent for a relationship component, registering the
// (id, object) pair in the reverse index.
func (w *World) AddRelation(e ecsentity.Entity, id ecscomponent.ComponentID, object ecsentity.Entity) error {
	return w.addComponent(e, id, nil, false, object, true)
}

func (w *World) addComponent(e ecsentity.Entity, id ecscomponent.ComponentID, data any, hasData bool, rel ecsentity.Entity, hasRel bool) error {
	vec := w.currentVec(e)

	slot, ok := w.Dense.Slot(e)
	if !ok {
		return ErrUnknownEntity
	}
	if hasData {
		w.Store.Column(id).Write(slot, data, ecscomponent.MakeVersion(w.tick, w.Entities.Self))
	}
	added := []ecscomponent.ComponentID{id}
	if hasRel {
		w.Graph.AddRelationship(id, e, rel)
		added = append(added, w.Registry.VirtualID(id, rel))
	}
	next := ecscomponent.Sum(vec, ecscomponent.MakeVec(added))
	if !next.Equal(vec) {
		w.migrate(e, next)
	}
	if w.replicatedID != 0 && id == w.replicatedID {
		w.replicated[e] = struct{}{}
	}

	w.appendOp(replop.Op{Kind: replop.KindAdd, Entity: e, ComponentID: id, Data: data, HasData: hasData, Rel: rel, HasRel: hasRel})
	w.appendUndo(UndoEntry{Kind: UndoAdd, Entity: e, ComponentID: id, Rel: rel, HasRel: hasRel})
	return nil
}

// RemoveComponent deletes id's value from e, migrating e's archetype. It
// records an undo_remove entry carrying the prior value so rollback can
// reconstruct it. Removing a base relation component drops every
// relationship of that relation; a minted virtual ID removes just its one
// (relation, object) pair.
func (w *World) RemoveComponent(e ecsentity.Entity, id ecscomponent.ComponentID) error {
	if ecscomponent.IsVirtual(id) {
		pair, ok := w.Registry.RelPairOf(id)
		if !ok {
			return nil
		}
		return w.RemoveRelation(e, pair.Relation, pair.Object)
	}

	vec := w.currentVec(e)
	if !vec.Has(id) {
		return nil
	}
	slot, ok := w.Dense.Slot(e)
	if !ok {
		return ErrUnknownEntity
	}

	var prevData any
	var hadData bool
	if col, ok := w.Store.ColumnIfExists(id); ok {
		prevData, hadData = col.Clear(slot)
	}

	removed := []ecscomponent.ComponentID{id}
	def, err := w.Registry.Get(id)
	var rel ecsentity.Entity
	var hasRel bool
	if err == nil && def.IsRelation {
		for _, obj := range w.Graph.ObjectsOf(id, e) {
			w.Graph.RemoveRelationship(id, e, obj)
			removed = append(removed, w.Registry.VirtualID(id, obj))
			rel, hasRel = obj, true
		}
	}

	w.migrate(e, ecscomponent.Difference(vec, ecscomponent.MakeVec(removed)))
	if w.replicatedID != 0 && id == w.replicatedID {
		delete(w.replicated, e)
	}
	w.appendOp(replop.Op{Kind: replop.KindRemove, Entity: e, ComponentID: id})
	w.appendUndo(UndoEntry{Kind: UndoRemove, Entity: e, ComponentID: id, Data: prevData, HasData: hadData, Rel: rel, HasRel: hasRel})
	return nil
}

// RemoveRelation removes one (relation, object) pair from e. The base
// relation component leaves e's Vec only when no other relationship of
// that relation remains; the pair's virtual ID always leaves. Only a full
// base removal is emitted as a replication op — the wire's Remove carries
// no object, and peers rebuild pair membership from Set/Add rel payloads.
func (w *World) RemoveRelation(e ecsentity.Entity, id ecscomponent.ComponentID, object ecsentity.Entity) error {
	vec := w.currentVec(e)
	if !vec.Has(id) {
		return nil
	}
	baseGone := w.Graph.RemoveRelationship(id, e, object)
	removed := []ecscomponent.ComponentID{w.Registry.VirtualID(id, object)}
	if baseGone {
		removed = append(removed, id)
	}
	next := ecscomponent.Difference(vec, ecscomponent.MakeVec(removed))
	if !next.Equal(vec) {
		w.migrate(e, next)
	}
	if baseGone {
		w.appendOp(replop.Op{Kind: replop.KindRemove, Entity: e, ComponentID: id})
	}
	w.appendUndo(UndoEntry{Kind: UndoRemove, Entity: e, ComponentID: id, Rel: object, HasRel: true})
	return nil
}

// SetComponentValue applies a versioned write: it only takes effect if
// version is not less than the cell's stored version (last-writer-wins).
// If the component is structurally absent, it behaves like AddComponent
// (Set reinterpreted as Add at application time, per spec.md §4.6).
func (w *World) SetComponentValue(e ecsentity.Entity, id ecscomponent.ComponentID, data any, version ecscomponent.Version) (wrote bool, err error) {
	vec := w.currentVec(e)
	slot, ok := w.Dense.Slot(e)
	if !ok {
		return false, ErrUnknownEntity
	}
	isNew := !vec.Has(id)
	col := w.Store.Column(id)
	wrote, prevData, hadPrev := col.CompareAndWrite(slot, data, version)
	if !wrote {
		return false, nil
	}
	if isNew {
		w.migrate(e, ecscomponent.Sum(vec, ecscomponent.MakeVec([]ecscomponent.ComponentID{id})))
		w.appendUndo(UndoEntry{Kind: UndoAdd, Entity: e, ComponentID: id})
	} else if hadPrev {
		w.appendUndo(UndoEntry{Kind: UndoRemove, Entity: e, ComponentID: id, Data: prevData, HasData: true, reinstateOnly: true})
	}
	w.appendOp(replop.Op{Kind: replop.KindSet, Entity: e, ComponentID: id, Data: data, HasData: true, Version: version, HasVersion: true})
	return true, nil
}

// ForceSetComponentValue writes data unconditionally, bypassing LWW —
// used by authoritative snapshot application and by in-place Write-term
// mutation. Like every mutating action it records an undo entry, so
// rollback can reverse it; it emits no replication op of its own.
func (w *World) ForceSetComponentValue(e ecsentity.Entity, id ecscomponent.ComponentID, data any, version ecscomponent.Version) error {
	vec := w.currentVec(e)
	slot, ok := w.Dense.Slot(e)
	if !ok {
		return ErrUnknownEntity
	}
	isNew := !vec.Has(id)
	col := w.Store.Column(id)
	prevData, _, hadPrev := col.Get(slot)
	col.Write(slot, data, version)
	if isNew {
		w.migrate(e, ecscomponent.Sum(vec, ecscomponent.MakeVec([]ecscomponent.ComponentID{id})))
		w.appendUndo(UndoEntry{Kind: UndoAdd, Entity: e, ComponentID: id})
	} else if hadPrev {
		w.appendUndo(UndoEntry{Kind: UndoRemove, Entity: e, ComponentID: id, Data: prevData, HasData: true, reinstateOnly: true})
	}
	return nil
}

// GetComponent returns a component's current value and version for e.
func (w *World) GetComponent(e ecsentity.Entity, id ecscomponent.ComponentID) (any, ecscomponent.Version, bool) {
	slot, ok := w.Dense.Slot(e)
	if !ok {
		return nil, 0, false
	}
	col, ok := w.Store.ColumnIfExists(id)
	if !ok {
		return nil, 0, false
	}
	return col.Get(slot)
}

// HasComponent reports whether e's current archetype carries id.
func (w *World) HasComponent(e ecsentity.Entity, id ecscomponent.ComponentID) bool {
	return w.currentVec(e).Has(id)
}

// IsLive reports whether e is a currently-spawned entity.
func (w *World) IsLive(e ecsentity.Entity) bool {
	_, ok := w.Graph.NodeOf(e)
	return ok
}
