package netproto

import (
	"testing"

	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	reg, health, frozen, _ := newTestRegistry()

	snap := Snapshot{
		Tick: 55,
		Blocks: []SnapshotBlock{
			{
				ComponentID: health,
				Entries: []SnapshotEntry{
					{Entity: ecsentity.NewEntity(1, 1), Data: 10, HasData: true},
					{Entity: ecsentity.NewEntity(1, 2), Data: 20, HasData: true},
				},
			},
			{
				ComponentID: frozen,
				Entries: []SnapshotEntry{
					{Entity: ecsentity.NewEntity(1, 2), HasData: false},
				},
			},
		},
	}

	w := wire.NewWriter(64)
	require.NoError(t, EncodeSnapshot(w, reg, snap))

	r := wire.NewReader(w.Bytes())
	hdr, err := DecodeHeader(r)
	require.NoError(t, err)
	assert.Equal(t, TypeSnapshot, hdr.Type)

	got, err := DecodeSnapshotBody(r, reg, uint64(hdr.Tick))
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.Equal(t, 0, r.Remaining())
}

func TestBlockIteratorYieldsBlocksLazily(t *testing.T) {
	reg, health, _, _ := newTestRegistry()
	snap := Snapshot{
		Tick: 1,
		Blocks: []SnapshotBlock{
			{ComponentID: health, Entries: []SnapshotEntry{{Entity: ecsentity.NewEntity(0, 1), Data: 1, HasData: true}}},
			{ComponentID: health, Entries: []SnapshotEntry{{Entity: ecsentity.NewEntity(0, 2), Data: 2, HasData: true}}},
		},
	}
	w := wire.NewWriter(32)
	require.NoError(t, EncodeSnapshot(w, reg, snap))
	r := wire.NewReader(w.Bytes())
	_, err := DecodeHeader(r)
	require.NoError(t, err)

	it, err := NewBlockIterator(r, reg)
	require.NoError(t, err)

	first, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, first.Entries[0].Data)

	second, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, second.Entries[0].Data)

	_, ok, err = it.Next()
	require.NoError(t, err)
	assert.False(t, ok, "no more blocks than block_count")
}
