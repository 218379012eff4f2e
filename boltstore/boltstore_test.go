package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *CheckpointStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLatestOnEmptyStore(t *testing.T) {
	s := openStore(t)
	_, _, ok, err := s.Latest()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutAndLatestReturnsNewest(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(10, []byte("ten")))
	require.NoError(t, s.Put(30, []byte("thirty")))
	require.NoError(t, s.Put(20, []byte("twenty")))

	tick, blob, ok, err := s.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(30), tick)
	assert.Equal(t, []byte("thirty"), blob)
}

func TestPutOverwritesSameTick(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(5, []byte("old")))
	require.NoError(t, s.Put(5, []byte("new")))

	tick, blob, ok, err := s.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), tick)
	assert.Equal(t, []byte("new"), blob)
}

func TestPruneKeepsNewest(t *testing.T) {
	s := openStore(t)
	for tick := uint64(1); tick <= 5; tick++ {
		require.NoError(t, s.Put(tick, []byte{byte(tick)}))
	}
	require.NoError(t, s.Prune(2))

	tick, _, ok, err := s.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), tick)

	// Pruning below the remaining count is a no-op.
	require.NoError(t, s.Prune(10))
	tick, _, ok, err = s.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(5), tick)
}
