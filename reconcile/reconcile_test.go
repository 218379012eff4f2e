package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/ecsworld"
	"github.com/evalgo-forge/ecsreplica/history"
	"github.com/evalgo-forge/ecsreplica/replication"
	"github.com/evalgo-forge/ecsreplica/replop"
	"github.com/evalgo-forge/ecsreplica/schedule"
	"github.com/evalgo-forge/ecsreplica/wire"
)

func intSerde() *ecscomponent.Serde {
	return &ecscomponent.Serde{
		BytesPerElement: 4,
		Encode: func(value any, w *wire.Writer) error {
			v, ok := value.(int)
			if !ok {
				return fmt.Errorf("intSerde: want int, got %T", value)
			}
			w.WriteUint32(uint32(v))
			return nil
		},
		Decode: func(r *wire.Reader) (any, error) {
			v, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			return int(v), nil
		},
	}
}

func TestRemoteQueueMinTickBelow(t *testing.T) {
	q := NewRemoteQueue()
	q.Push(replop.Transaction{DomainID: 2, Tick: 7})
	q.Push(replop.Transaction{DomainID: 2, Tick: 3})
	q.Push(replop.Transaction{DomainID: 2, Tick: 9})

	m, ok := q.MinTickBelow(9)
	require.True(t, ok)
	assert.Equal(t, uint64(3), m)

	_, ok = q.MinTickBelow(3)
	assert.False(t, ok)
}

// TestBatchReconciliationRollsBackAndResimulates is the rollback +
// re-simulate scenario: three ticks of +1 movement, a late set arriving
// for tick 1, and a re-run of the schedule from there.
func TestBatchReconciliationRollsBackAndResimulates(t *testing.T) {
	w := ecsworld.NewWorld(1)
	pos := w.Registry.Define(intSerde()).ID

	e, err := w.Spawn([]replop.ComponentPayload{{ID: pos, Data: 0, HasData: true}}, "")
	require.NoError(t, err)

	// The movement system: +1 every tick, written in place the way a
	// Write term mutates storage.
	sched := schedule.NewSchedule(schedule.System{
		Name: "move",
		Run: func(ctx *schedule.Context) {
			val, _, _ := ctx.World.GetComponent(e, pos)
			_ = ctx.World.ForceSetComponentValue(e, pos, val.(int)+1, ecscomponent.MakeVersion(ctx.Tick, 1))
		},
	})

	hist := history.New(history.Config{CheckpointInterval: 1, MaxTicks: 100})
	rec := NewReconciler(NewRemoteQueue(), hist, sched, replication.ApplyOptions{}, 30)

	for tick := 0; tick < 3; tick++ {
		hist.BeginTick(w)
		sched.RunTick(w)
		hist.EndTick(w)
		w.AdvanceTick()
	}
	require.Equal(t, uint64(3), w.Tick())
	val, _, _ := w.GetComponent(e, pos)
	require.Equal(t, 3, val)

	rec.Queue.Push(replop.Transaction{DomainID: 2, Seq: 1, Tick: 1, Ops: []replop.Op{
		{Kind: replop.KindSet, Entity: e, ComponentID: pos, Data: 10, HasData: true},
	}})

	rec.PerformBatchReconciliation(w)

	assert.Equal(t, uint64(3), w.Tick())
	val, _, _ = w.GetComponent(e, pos)
	assert.Equal(t, 12, val, "rollback to 1, set to 10, then two re-simulated +1 ticks")
	assert.False(t, rec.Queue.Has(1), "the late transaction was consumed")
}

func TestBatchReconciliationFallsBackToDirectApply(t *testing.T) {
	w := ecsworld.NewWorld(1)
	pos := w.Registry.Define(intSerde()).ID
	e, err := w.Spawn([]replop.ComponentPayload{{ID: pos, Data: 0, HasData: true}}, "")
	require.NoError(t, err)

	sched := schedule.NewSchedule()
	hist := history.New(history.Config{CheckpointInterval: 5, MaxTicks: 100})
	rec := NewReconciler(NewRemoteQueue(), hist, sched, replication.ApplyOptions{}, 30)

	// No checkpoint exists yet for tick 2, so rollback must fail and the
	// late transaction applies directly.
	w.SetTick(10)
	hist.PushCheckpoint(w) // oldest checkpoint is tick 10

	rec.Queue.Push(replop.Transaction{DomainID: 2, Seq: 1, Tick: 2, Ops: []replop.Op{
		{Kind: replop.KindSet, Entity: e, ComponentID: pos, Data: 77, HasData: true},
	}})
	rec.PerformBatchReconciliation(w)

	assert.Equal(t, uint64(10), w.Tick(), "no rollback happened")
	val, _, _ := w.GetComponent(e, pos)
	assert.Equal(t, 77, val, "the too-old transaction still applied directly")
	assert.False(t, rec.Queue.Has(2))
}

func TestStreamApplyDrainsOnlyCurrentTick(t *testing.T) {
	w := ecsworld.NewWorld(1)
	pos := w.Registry.Define(intSerde()).ID
	e, err := w.Spawn([]replop.ComponentPayload{{ID: pos, Data: 0, HasData: true}}, "")
	require.NoError(t, err)
	w.SetTick(5)

	rec := NewReconciler(NewRemoteQueue(), history.New(history.Config{}), schedule.NewSchedule(), replication.ApplyOptions{}, 30)
	rec.Queue.Push(replop.Transaction{DomainID: 2, Seq: 1, Tick: 5, Ops: []replop.Op{
		{Kind: replop.KindSet, Entity: e, ComponentID: pos, Data: 50, HasData: true},
	}})
	rec.Queue.Push(replop.Transaction{DomainID: 2, Seq: 2, Tick: 6, Ops: []replop.Op{
		{Kind: replop.KindSet, Entity: e, ComponentID: pos, Data: 60, HasData: true},
	}})

	rec.ApplyForCurrentTick(w)

	val, _, _ := w.GetComponent(e, pos)
	assert.Equal(t, 50, val, "only the current tick's transactions applied")
	assert.True(t, rec.Queue.Has(6), "the future tick stays buffered")
}

func TestGhostSweepDespawnsExpiredPredictions(t *testing.T) {
	w := ecsworld.NewWorld(1)
	pos := w.Registry.Define(intSerde()).ID

	rec := NewReconciler(NewRemoteQueue(), history.New(history.Config{}), schedule.NewSchedule(), replication.ApplyOptions{}, 3)

	ghost := w.SpawnTransient([]replop.ComponentPayload{{ID: pos, Data: 1, HasData: true}}, replication.CausalKey(0, 0))
	require.Equal(t, ecsentity.TransientDomain, ghost.Domain())

	w.SetTick(2)
	rec.GhostSweep(w)
	assert.True(t, w.IsLive(ghost), "inside the window the prediction survives")

	w.SetTick(4)
	rec.GhostSweep(w)
	assert.False(t, w.IsLive(ghost), "past the window the never-rebound prediction is despawned")
	_, ok := w.Transient.Lookup(replication.CausalKey(0, 0))
	assert.False(t, ok, "its registry entry is gone")
}

// TestGhostSweepNeverKillsLiveReusedEntities cycles predicted pulse
// entities through spawn and consume for longer than the ghost window: a
// consumed prediction's registry entry dies with it, so a later sweep can
// never despawn an unrelated live entity.
func TestGhostSweepNeverKillsLiveReusedEntities(t *testing.T) {
	w := ecsworld.NewWorld(1)
	pos := w.Registry.Define(intSerde()).ID
	rec := NewReconciler(NewRemoteQueue(), history.New(history.Config{}), schedule.NewSchedule(), replication.ApplyOptions{}, 3)

	var current ecsentity.Entity
	for tick := uint64(0); tick < 12; tick++ {
		w.SetTick(tick)
		if current != 0 {
			require.NoError(t, w.Despawn(current)) // the pulse from last tick is consumed
		}
		current = w.SpawnTransient([]replop.ComponentPayload{{ID: pos, Data: int(tick), HasData: true}},
			replication.CausalKey(tick, 0))
		rec.GhostSweep(w)
		assert.True(t, w.IsLive(current), "tick %d: the live pulse must never be swept", tick)
	}
}

func TestCleanupCommandEntitiesSparesResourceEntity(t *testing.T) {
	w := ecsworld.NewWorld(1)
	marker := w.Registry.DefineTag().ID
	w.SetResource(marker, nil)

	cmd := w.Entities.AllocCommand()
	w.Dense.Alloc(cmd)
	w.Graph.SetEntityNode(cmd, w.Graph.Root())
	require.Equal(t, ecsentity.CommandDomain, cmd.Domain())

	CleanupCommandEntities(w)

	assert.False(t, w.IsLive(cmd), "command entities die at end of tick")
	assert.True(t, w.IsLive(w.ResourceEntity()), "the resource entity survives")
}
