package replication

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/ecsworld"
	"github.com/evalgo-forge/ecsreplica/netproto"
	"github.com/evalgo-forge/ecsreplica/replop"
	"github.com/evalgo-forge/ecsreplica/wire"
)

func commandSpecFor(target ecsentity.Entity, comp ecscomponent.ComponentID) netproto.CommandSpec {
	return netproto.CommandSpec{Target: target, Component: comp}
}

// position is the test component value moved across peers.
type position struct {
	X, Y float64
}

func positionSerde() *ecscomponent.Serde {
	return &ecscomponent.Serde{
		BytesPerElement: 16,
		Encode: func(value any, w *wire.Writer) error {
			p, ok := value.(position)
			if !ok {
				return fmt.Errorf("positionSerde: want position, got %T", value)
			}
			w.WriteFloat64(p.X)
			w.WriteFloat64(p.Y)
			return nil
		},
		Decode: func(r *wire.Reader) (any, error) {
			x, err := r.ReadFloat64()
			if err != nil {
				return nil, err
			}
			y, err := r.ReadFloat64()
			if err != nil {
				return nil, err
			}
			return position{X: x, Y: y}, nil
		},
	}
}

// newPeer builds a world for one domain with the shared component layout:
// Position (valued), Replicated (tag), Attached (relation). Both sides of
// every test define components in the same order, so IDs align.
func newPeer(domain ecsentity.DomainID) (*ecsworld.World, ecscomponent.ComponentID, ecscomponent.ComponentID, ecscomponent.ComponentID) {
	w := ecsworld.NewWorld(domain)
	pos := w.Registry.Define(positionSerde()).ID
	replicated := w.Registry.DefineTag().ID
	attached := w.Registry.DefineRelation().ID
	w.SetReplicatedComponent(replicated)
	return w, pos, replicated, attached
}

func TestBasicSpawnReplication(t *testing.T) {
	a, posA, replA, _ := newPeer(1)
	b, posB, _, _ := newPeer(2)
	require.Equal(t, posA, posB, "both peers define the same component layout")

	e, err := a.Spawn([]replop.ComponentPayload{
		{ID: posA, Data: position{X: 10, Y: 20}, HasData: true},
		{ID: replA},
	}, "")
	require.NoError(t, err)

	tx := a.CommitTransaction(a.Entities.NextOpSeq(), true)
	require.Len(t, tx.Ops, 1)
	require.Equal(t, replop.KindSpawn, tx.Ops[0].Kind)

	ApplyTransaction(b, tx, ApplyOptions{})

	val, _, ok := b.GetComponent(e, posB)
	require.True(t, ok)
	assert.Equal(t, position{X: 10, Y: 20}, val)
	assert.Equal(t, ecsentity.DomainID(1), e.Domain())
	assert.True(t, b.Entities.IsLive(e))
}

func TestLWWNewerTickWins(t *testing.T) {
	w, pos, repl, _ := newPeer(1)
	e, err := w.Spawn([]replop.ComponentPayload{
		{ID: pos, Data: position{}, HasData: true},
		{ID: repl},
	}, "")
	require.NoError(t, err)

	txNewer := replop.Transaction{DomainID: 3, Seq: 2, Tick: 20, Ops: []replop.Op{
		{Kind: replop.KindSet, Entity: e, ComponentID: pos, Data: position{X: 20, Y: 20}, HasData: true},
	}}
	txOlder := replop.Transaction{DomainID: 3, Seq: 1, Tick: 10, Ops: []replop.Op{
		{Kind: replop.KindSet, Entity: e, ComponentID: pos, Data: position{X: 10, Y: 10}, HasData: true},
	}}

	ApplyTransaction(w, txNewer, ApplyOptions{})
	ApplyTransaction(w, txOlder, ApplyOptions{}) // out of order: newer already applied

	val, _, ok := w.GetComponent(e, pos)
	require.True(t, ok)
	assert.Equal(t, position{X: 20, Y: 20}, val, "the tick-20 write survives the late tick-10 write")
}

func TestSameTickTiebreakHigherDomainWins(t *testing.T) {
	a, pos, repl, _ := newPeer(1)
	b, _, _, _ := newPeer(2)

	e, err := a.Spawn([]replop.ComponentPayload{
		{ID: pos, Data: position{}, HasData: true},
		{ID: repl},
	}, "")
	require.NoError(t, err)
	spawnTx := a.CommitTransaction(a.Entities.NextOpSeq(), true)
	ApplyTransaction(b, spawnTx, ApplyOptions{})

	a.SetTick(15)
	b.SetTick(15)
	_, err = a.SetComponentValue(e, pos, position{X: 100}, ecscomponent.MakeVersion(15, 1))
	require.NoError(t, err)
	_, err = b.SetComponentValue(e, pos, position{X: 200}, ecscomponent.MakeVersion(15, 2))
	require.NoError(t, err)

	txA := a.CommitTransaction(a.Entities.NextOpSeq(), true)
	txB := b.CommitTransaction(b.Entities.NextOpSeq(), true)

	ApplyTransaction(b, txA, ApplyOptions{})
	ApplyTransaction(a, txB, ApplyOptions{})

	valA, _, _ := a.GetComponent(e, pos)
	valB, _, _ := b.GetComponent(e, pos)
	assert.Equal(t, position{X: 200}, valA, "domain 2 wins the same-tick tiebreak")
	assert.Equal(t, valA, valB, "both peers converge")
}

func TestPredictiveSpawnRebind(t *testing.T) {
	client, pos, repl, attached := newPeer(1)
	client.SetTick(100)

	key := CausalKey(100, 0)
	assert.Equal(t, key, NextCausalKey(client), "client derives the key from (tick, spawn index)")

	predicted := client.SpawnTransient([]replop.ComponentPayload{
		{ID: pos, Data: position{X: 105, Y: 105}, HasData: true},
		{ID: repl},
	}, key)
	require.Equal(t, ecsentity.TransientDomain, predicted.Domain())

	// Another entity holds a relationship whose object is the prediction.
	subject, err := client.Spawn(nil, "")
	require.NoError(t, err)
	require.NoError(t, client.AddRelation(subject, attached, predicted))

	authoritative := ecsentity.NewEntity(0, 500)
	tx := replop.Transaction{DomainID: 0, Seq: 1, Tick: 101, Ops: []replop.Op{
		{Kind: replop.KindSpawn, Entity: authoritative, CausalKey: key, Components: []replop.ComponentPayload{
			{ID: pos, Data: position{X: 105, Y: 105}, HasData: true},
			{ID: repl},
		}},
	}}
	ApplyTransaction(client, tx, ApplyOptions{})

	_, _, ok := client.GetComponent(predicted, pos)
	assert.False(t, ok, "the transient entity no longer owns the dense slot")

	val, _, ok := client.GetComponent(authoritative, pos)
	require.True(t, ok)
	assert.Equal(t, position{X: 105, Y: 105}, val)

	rebound, ok := client.Transient.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, authoritative, rebound, "the causal key now points at the authoritative entity")

	objects := client.Graph.ObjectsOf(attached, subject)
	require.Len(t, objects, 1)
	assert.Equal(t, authoritative, objects[0], "incoming relationships reindexed onto the authoritative entity")

	next := client.Entities.Domain(0).NextLocalID
	assert.Greater(t, next, uint32(500), "domain 0 allocation advanced past the rebound local id")
}

func TestApplyTransactionIsIdempotent(t *testing.T) {
	a, pos, repl, _ := newPeer(1)
	b, _, _, _ := newPeer(2)

	e, err := a.Spawn([]replop.ComponentPayload{
		{ID: pos, Data: position{X: 1, Y: 2}, HasData: true},
		{ID: repl},
	}, "")
	require.NoError(t, err)
	tx := a.CommitTransaction(a.Entities.NextOpSeq(), true)

	ApplyTransaction(b, tx, ApplyOptions{})
	ApplyTransaction(b, tx, ApplyOptions{})

	val, _, ok := b.GetComponent(e, pos)
	require.True(t, ok)
	assert.Equal(t, position{X: 1, Y: 2}, val)

	node, ok := b.Graph.NodeOf(e)
	require.True(t, ok)
	assert.Equal(t, 1, node.Len(), "double apply leaves exactly one live entity")
}

func TestDespawnThenDespawnIsNoOp(t *testing.T) {
	a, pos, repl, _ := newPeer(1)
	b, _, _, _ := newPeer(2)

	e, err := a.Spawn([]replop.ComponentPayload{
		{ID: pos, Data: position{}, HasData: true},
		{ID: repl},
	}, "")
	require.NoError(t, err)
	ApplyTransaction(b, a.CommitTransaction(a.Entities.NextOpSeq(), true), ApplyOptions{})

	require.NoError(t, a.Despawn(e))
	tx := a.CommitTransaction(a.Entities.NextOpSeq(), true)

	ApplyTransaction(b, tx, ApplyOptions{})
	ApplyTransaction(b, tx, ApplyOptions{})
	assert.False(t, b.IsLive(e))
}

func TestNonReplicatedOpsAreDiscardedAtCommit(t *testing.T) {
	a, pos, _, _ := newPeer(1)

	_, err := a.Spawn([]replop.ComponentPayload{
		{ID: pos, Data: position{X: 9}, HasData: true},
	}, "")
	require.NoError(t, err)

	tx := a.CommitTransaction(a.Entities.NextOpSeq(), true)
	assert.Empty(t, tx.Ops, "an entity without the Replicated tag emits nothing")
}

func TestRebindRewritesBufferedCommandTargets(t *testing.T) {
	client, pos, repl, _ := newPeer(1)
	client.SetTick(50)

	cmdBufID := client.Registry.Define(nil).ID
	buf := NewCommandBuffer()
	client.SetResource(cmdBufID, buf)

	key := NextCausalKey(client)
	predicted := client.SpawnTransient([]replop.ComponentPayload{
		{ID: pos, Data: position{}, HasData: true},
		{ID: repl},
	}, key)
	buf.Push(commandSpecFor(predicted, pos))

	authoritative := ecsentity.NewEntity(0, 7)
	tx := replop.Transaction{DomainID: 0, Seq: 1, Tick: 51, Ops: []replop.Op{
		{Kind: replop.KindSpawn, Entity: authoritative, CausalKey: key, Components: []replop.ComponentPayload{
			{ID: pos, Data: position{}, HasData: true},
			{ID: repl},
		}},
	}}
	ApplyTransaction(client, tx, ApplyOptions{CommandBufferID: cmdBufID})

	require.Len(t, buf.Commands, 1)
	assert.Equal(t, authoritative, buf.Commands[0].Target, "the buffered command now aims at the authoritative entity")
}
