package transport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/replop"
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

func newBus(t *testing.T) (*RedisTransactionBus, *ecscomponent.Registry) {
	t.Helper()
	mr := miniredis.RunT(t)
	reg := ecscomponent.NewRegistry()
	reg.Define(intSerde())

	bus, err := NewRedisTransactionBus(context.Background(), reg, Config{
		RedisURL: "redis://" + mr.Addr(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })
	return bus, reg
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus, _ := newBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound, err := bus.Subscribe(ctx, []ecsentity.DomainID{1})
	require.NoError(t, err)

	e := ecsentity.NewEntity(1, 4)
	tx := replop.Transaction{DomainID: 1, Seq: 3, Tick: 12, Ops: []replop.Op{
		{Kind: replop.KindSet, Entity: e, ComponentID: 1, Data: 55, HasData: true,
			Version: ecscomponent.MakeVersion(12, 1), HasVersion: true},
	}}
	require.NoError(t, bus.Publish(ctx, tx))

	select {
	case got := <-inbound:
		assert.Equal(t, tx.DomainID, got.DomainID)
		assert.Equal(t, tx.Seq, got.Seq)
		assert.Equal(t, tx.Tick, got.Tick)
		require.Len(t, got.Ops, 1)
		assert.Equal(t, replop.KindSet, got.Ops[0].Kind)
		assert.Equal(t, 55, got.Ops[0].Data)
		assert.Equal(t, tx.Ops[0].Version, got.Ops[0].Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no transaction arrived on the bus")
	}
}

func TestSubscribeIgnoresOtherDomains(t *testing.T) {
	bus, _ := newBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound, err := bus.Subscribe(ctx, []ecsentity.DomainID{2})
	require.NoError(t, err)

	// Published on domain 1's channel; the domain-2 subscription stays
	// silent.
	require.NoError(t, bus.Publish(ctx, replop.Transaction{DomainID: 1, Seq: 1, Tick: 1}))

	select {
	case tx := <-inbound:
		t.Fatalf("unexpected transaction from domain %d", tx.DomainID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscriptionClosesOnContextCancel(t *testing.T) {
	bus, _ := newBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	inbound, err := bus.Subscribe(ctx, []ecsentity.DomainID{1})
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-inbound:
		assert.False(t, open, "channel closes after cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not close")
	}
}
