package bloomindex

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	groups map[Position]*Group
}

func newMemStore() *memStore { return &memStore{groups: make(map[Position]*Group)} }

func (s *memStore) GroupAt(pos Position) (*Group, error) {
	g, ok := s.groups[pos]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (s *memStore) PutGroup(pos Position, g *Group) {
	cp := *g
	s.groups[pos] = &cp
}

func bloomFor(n byte) types.Bloom {
	var b types.Bloom
	b[0] = n
	return b
}

func TestInsertThenQueryFindsExactBlock(t *testing.T) {
	store := newMemStore()
	for n := uint64(0); n < 40; n++ {
		_, err := Insert(store, n, bloomFor(byte(n%7+1)))
		require.NoError(t, err)
	}

	got, err := Query(store, 0, 39, bloomFor(3))
	require.NoError(t, err)
	for _, n := range got {
		require.Equal(t, byte(3), byte(n%7+1)&3) // the block's bloom byte holds every bit of the query
	}
	require.NotEmpty(t, got)
}

func TestQueryPrunesNonMatchingGroups(t *testing.T) {
	store := newMemStore()
	for n := uint64(0); n < 20; n++ {
		_, err := Insert(store, n, types.Bloom{})
		require.NoError(t, err)
	}
	got, err := Query(store, 0, 19, bloomFor(1))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReplaceOverwritesGroup(t *testing.T) {
	store := newMemStore()
	for n := uint64(0); n < 16; n++ {
		_, err := Insert(store, n, bloomFor(1))
		require.NoError(t, err)
	}
	got, err := Query(store, 0, 15, bloomFor(1))
	require.NoError(t, err)
	require.Len(t, got, 16)

	blooms := make([]types.Bloom, 16)
	for i := range blooms {
		blooms[i] = bloomFor(2)
	}
	require.NoError(t, Replace(store, 0, 15, blooms))

	got, err = Query(store, 0, 15, bloomFor(1))
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = Query(store, 0, 15, bloomFor(2))
	require.NoError(t, err)
	require.Len(t, got, 16)
}

func TestGroupAggregate(t *testing.T) {
	var g Group
	g[0] = bloomFor(1)
	g[1] = bloomFor(2)
	agg := g.Aggregate()
	require.True(t, contains(agg, bloomFor(1)))
	require.True(t, contains(agg, bloomFor(2)))
}
