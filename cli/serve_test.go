package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/engineconfig"
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

func TestNewHostAssemblesFromConfig(t *testing.T) {
	cfg := engineconfig.Default()
	cfg.DomainID = 4
	cfg.BoltPath = filepath.Join(t.TempDir(), "ecsd.db")

	host, err := NewHost(cfg)
	require.NoError(t, err)
	defer host.Close()

	assert.Equal(t, uint16(4), uint16(host.World.Entities.Self))
	assert.NotNil(t, host.Store, "bolt path configured, store opened")
	assert.NotNil(t, host.Reconciler)
}

func TestHostTickAdvancesWorldAndRunsSystems(t *testing.T) {
	host, err := NewHost(engineconfig.Default())
	require.NoError(t, err)
	defer host.Close()

	pos := host.World.Registry.Define(intSerde()).ID
	e, err := host.World.Spawn([]replop.ComponentPayload{{ID: pos, Data: 0, HasData: true}}, "")
	require.NoError(t, err)

	ran := 0
	host.Schedule.Add(schedule.System{
		Name: "count",
		Run: func(ctx *schedule.Context) {
			ran++
			val, _, _ := ctx.World.GetComponent(e, pos)
			_ = ctx.World.ForceSetComponentValue(e, pos, val.(int)+1, ecscomponent.MakeVersion(ctx.Tick, 1))
		},
	})

	ctx := context.Background()
	host.Tick(ctx)
	host.Tick(ctx)

	assert.Equal(t, 2, ran)
	assert.Equal(t, uint64(2), host.World.Tick())
	val, _, _ := host.World.GetComponent(e, pos)
	assert.Equal(t, 2, val)
}
