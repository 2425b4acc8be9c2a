package cachemgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectGarbageEvictsOldestFirst(t *testing.T) {
	var evicted []Tag
	m, err := NewManager(100, 200, func(tag Tag) { evicted = append(evicted, tag) })
	require.NoError(t, err)

	m.NoteUsed(Tag{Kind: KindBlockHeader, Key: "a"}, 50)
	m.NoteUsed(Tag{Kind: KindBlockHeader, Key: "b"}, 50)
	m.NoteUsed(Tag{Kind: KindBlockHeader, Key: "c"}, 50)
	require.Equal(t, uintptr(150), m.TotalBytes())
	require.False(t, m.OverBudget())

	m.NoteUsed(Tag{Kind: KindBlockHeader, Key: "d"}, 100)
	require.True(t, m.OverBudget())

	m.CollectGarbage()
	require.LessOrEqual(t, m.TotalBytes(), uintptr(100))
	require.Equal(t, []Tag{{Kind: KindBlockHeader, Key: "a"}, {Kind: KindBlockHeader, Key: "b"}, {Kind: KindBlockHeader, Key: "c"}}, evicted)
}

func TestNoteUsedRefreshesRecency(t *testing.T) {
	var evicted []Tag
	m, err := NewManager(100, 1000, func(tag Tag) { evicted = append(evicted, tag) })
	require.NoError(t, err)

	m.NoteUsed(Tag{Kind: KindBlockBody, Key: "a"}, 60)
	m.NoteUsed(Tag{Kind: KindBlockBody, Key: "b"}, 60)
	m.NoteUsed(Tag{Kind: KindBlockBody, Key: "a"}, 60) // touch a again, b becomes oldest

	m.CollectGarbage()
	require.Equal(t, []Tag{{Kind: KindBlockBody, Key: "b"}}, evicted)
}

func TestForgetRemovesWithoutEvictCallback(t *testing.T) {
	var evicted []Tag
	m, err := NewManager(10, 20, func(tag Tag) { evicted = append(evicted, tag) })
	require.NoError(t, err)

	tag := Tag{Kind: KindBlockDetails, Key: "x"}
	m.NoteUsed(tag, 5)
	m.Forget(tag)
	require.Equal(t, uintptr(0), m.TotalBytes())
	require.Empty(t, evicted)
}
