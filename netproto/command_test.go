package netproto

import (
	"testing"

	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBatchRoundTripWithDeferredDecode(t *testing.T) {
	reg, health, frozen, _ := newTestRegistry()
	target := ecsentity.NewEntity(2047, 1)

	commands := []Command{
		{Target: target, Component: health, Value: 77, HasValue: true},
		{Target: target, Component: frozen},
	}

	w := wire.NewWriter(32)
	require.NoError(t, EncodeCommandBatch(w, reg, 9, commands))

	r := wire.NewReader(w.Bytes())
	hdr, err := DecodeHeader(r)
	require.NoError(t, err)
	assert.Equal(t, TypeCommand, hdr.Type)
	assert.Equal(t, uint32(9), hdr.Tick)

	specs, err := DecodeCommandBatchBody(r, reg)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, target, specs[0].Target)
	assert.Equal(t, health, specs[0].Component)
	val, ok, err := specs[0].DecodeValue(reg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 77, val)

	_, ok, err = specs[1].DecodeValue(reg)
	require.NoError(t, err)
	assert.False(t, ok, "a tag command carries no decodable value")
}

func TestCommandBatchEmptyRoundTrip(t *testing.T) {
	reg, _, _, _ := newTestRegistry()
	w := wire.NewWriter(8)
	require.NoError(t, EncodeCommandBatch(w, reg, 0, nil))
	r := wire.NewReader(w.Bytes())
	_, err := DecodeHeader(r)
	require.NoError(t, err)
	specs, err := DecodeCommandBatchBody(r, reg)
	require.NoError(t, err)
	assert.Empty(t, specs)
}
