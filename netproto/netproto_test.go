package netproto

import (
	"fmt"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// intSerde is a minimal fixed-width (4-byte uint32) serde used across this package's
// tests to exercise the "payload (unless tag)" encode/decode path without
// pulling in a real game component definition.
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

func newTestRegistry() (*ecscomponent.Registry, ecscomponent.ComponentID, ecscomponent.ComponentID, ecscomponent.ComponentID) {
	reg := ecscomponent.NewRegistry()
	health := reg.Define(intSerde()).ID
	frozen := reg.DefineTag().ID
	likes := reg.DefineRelation().ID
	return reg, health, frozen, likes
}
