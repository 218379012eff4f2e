package ecscomponent

import (
	"testing"

	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVecCanonicalHashIgnoresInputOrder(t *testing.T) {
	a := MakeVec([]ComponentID{3, 1, 2})
	b := MakeVec([]ComponentID{1, 2, 3})
	c := MakeVec([]ComponentID{2, 2, 1, 3, 3})

	assert.Equal(t, a.Hash(), b.Hash())
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), c.Hash())
	assert.True(t, a.Equal(c))
	assert.Equal(t, 3, c.Len(), "duplicates must be deduplicated")
}

func TestVecSumDifferenceSuperset(t *testing.T) {
	a := MakeVec([]ComponentID{1, 2})
	b := MakeVec([]ComponentID{2, 3})

	sum := Sum(a, b)
	assert.True(t, sum.Has(1))
	assert.True(t, sum.Has(2))
	assert.True(t, sum.Has(3))

	diff := Difference(sum, MakeVec([]ComponentID{2}))
	assert.True(t, diff.Has(1))
	assert.False(t, diff.Has(2))
	assert.True(t, diff.Has(3))

	assert.True(t, IsSupersetOf(sum, a))
	assert.False(t, IsSupersetOf(a, b))
}

func TestVersionOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b Version
		less bool
	}{
		{"higher tick wins regardless of domain", MakeVersion(10, 2047), MakeVersion(11, 0), true},
		{"equal tick, higher domain wins", MakeVersion(15, 1), MakeVersion(15, 2), true},
		{"equal tick, lower domain loses", MakeVersion(15, 2), MakeVersion(15, 1), false},
		{"strictly lower tick loses", MakeVersion(20, 5), MakeVersion(19, 5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.less, tt.a.Less(tt.b))
		})
	}
}

func TestMakeVersionRoundTrip(t *testing.T) {
	v := MakeVersion(123456, 2047)
	assert.Equal(t, uint64(123456), v.Tick())
	assert.Equal(t, ecsentity.DomainID(2047), v.Domain())
}

func TestVirtualIDMintingIsStableAndReversible(t *testing.T) {
	r := NewRegistry()
	relation := r.DefineRelation()
	obj := ecsentity.NewEntity(1, 5)

	vid1 := r.VirtualID(relation.ID, obj)
	vid2 := r.VirtualID(relation.ID, obj)
	assert.Equal(t, vid1, vid2, "minting twice for the same pair returns the same id")
	assert.True(t, IsVirtual(vid1))

	pair, ok := r.RelPairOf(vid1)
	require.True(t, ok)
	assert.Equal(t, relation.ID, pair.Relation)
	assert.Equal(t, obj, pair.Object)

	def, err := r.Get(vid1)
	require.NoError(t, err)
	assert.Equal(t, relation.ID, def.ID, "virtual id resolves to its base relation component")
}

func TestGetUnknownComponent(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(999)
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestColumnLWWCompareAndWrite(t *testing.T) {
	c := &Column{}
	wrote, _, had := c.CompareAndWrite(0, 10, MakeVersion(5, 0))
	assert.True(t, wrote)
	assert.False(t, had)

	// Older version must not overwrite.
	wrote, prev, had := c.CompareAndWrite(0, 20, MakeVersion(3, 0))
	assert.False(t, wrote)
	assert.True(t, had)
	assert.Equal(t, 10, prev)

	val, ver, ok := c.Get(0)
	require.True(t, ok)
	assert.Equal(t, 10, val)
	assert.Equal(t, MakeVersion(5, 0), ver)

	// Newer version overwrites.
	wrote, prev, had = c.CompareAndWrite(0, 30, MakeVersion(6, 0))
	assert.True(t, wrote)
	assert.True(t, had)
	assert.Equal(t, 10, prev)
}

func TestColumnClearThenMissing(t *testing.T) {
	c := &Column{}
	c.Write(0, "x", MakeVersion(1, 0))
	prev, had := c.Clear(0)
	assert.True(t, had)
	assert.Equal(t, "x", prev)
	assert.False(t, c.Has(0))
}
