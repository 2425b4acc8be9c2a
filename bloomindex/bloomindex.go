// Package bloomindex implements the 3-level bloom-filter hierarchy of
// §4.3: a filter over logs that groups 16 blocks per leaf and ORs
// aggregates up two further levels, so a range query can prune whole
// 16/256/4096-block spans without touching their receipts. It is a
// filter only — false positives are expected; false negatives are a bug.
package bloomindex

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	Levels           = 3
	ElementsPerIndex = 16
)

// Position identifies one bloom group: a level (0 = per-block leaves, 1
// and 2 = OR-aggregates) and an index within that level.
type Position struct {
	Level uint8
	Index uint64
}

// Group is a contiguous array of ElementsPerIndex blooms at one Position.
// Invariant (§3): every level k+1 bloom is the bitwise OR of the 16
// level-k blooms it covers.
type Group [ElementsPerIndex]types.Bloom

// Aggregate returns the bitwise OR of every bloom in the group.
func (g *Group) Aggregate() types.Bloom {
	var out types.Bloom
	for _, b := range g {
		orInto(&out, b)
	}
	return out
}

func orInto(dst *types.Bloom, src types.Bloom) {
	for i := range dst {
		dst[i] |= src[i]
	}
}

// contains reports whether bloom is a superset of query: every bit set
// in query is also set in bloom.
func contains(bloom, query types.Bloom) bool {
	for i := range bloom {
		if bloom[i]&query[i] != query[i] {
			return false
		}
	}
	return true
}

func pow16(n uint8) uint64 {
	v := uint64(1)
	for i := uint8(0); i < n; i++ {
		v *= ElementsPerIndex
	}
	return v
}

// groupIndex is the index of the group at level covering block number n.
func groupIndex(level uint8, n uint64) uint64 { return n / pow16(level+1) }

// slot is the position within that group's 16 entries that n occupies.
func slot(level uint8, n uint64) uint64 { return (n / pow16(level)) % ElementsPerIndex }

// Store is the minimal persistence surface bloomindex needs: read an
// existing group (nil if never written) and stage a group to be written.
// The chain index implements this against its blocks_blooms cache and
// the pending batch (§4.5.5).
type Store interface {
	GroupAt(pos Position) (*Group, error)
	PutGroup(pos Position, g *Group)
}

// Insert folds one block's bloom into the hierarchy, producing the
// staged writes as a side effect on store (via PutGroup) and returns the
// set of positions touched, in level order.
func Insert(store Store, number uint64, bloom types.Bloom) ([]Position, error) {
	var touched []Position
	agg := bloom
	for level := uint8(0); level < Levels; level++ {
		pos := Position{Level: level, Index: groupIndex(level, number)}
		g, err := store.GroupAt(pos)
		if err != nil {
			return nil, err
		}
		if g == nil {
			g = &Group{}
		}
		g[slot(level, number)] = agg
		store.PutGroup(pos, g)
		touched = append(touched, pos)
		agg = g.Aggregate()
	}
	return touched, nil
}

// Replace rebuilds every level-0 group touched by [from, to] (§4.3) —
// used for reorgs, where the blooms parameter supplies the new canonical
// bloom for every number in the range, in ascending order. Entries for
// numbers in the range are set from blooms, entries above to in those
// groups are cleared, and entries below from in the group holding from
// are kept; the level-1 and level-2 entries covering them are recomputed.
func Replace(store Store, from, to uint64, blooms []types.Bloom) error {
	if uint64(len(blooms)) != to-from+1 {
		panic("bloomindex: Replace given a blooms slice that doesn't cover [from, to]")
	}

	started := make(map[Position]bool)
	for i, n := uint64(0), from; n <= to; i, n = i+1, n+1 {
		pos0 := Position{Level: 0, Index: groupIndex(0, n)}
		g, err := store.GroupAt(pos0)
		if err != nil {
			return err
		}
		if g == nil || !started[pos0] {
			fresh := &Group{}
			if g != nil && n == from {
				// numbers below from are still canonical; keep their blooms
				copy(fresh[:slot(0, n)], g[:slot(0, n)])
			}
			g = fresh
			started[pos0] = true
		}
		g[slot(0, n)] = blooms[i]
		store.PutGroup(pos0, g)
	}

	// Propagate level 0 -> 1 -> 2 by recomputing aggregates for every
	// group touched, purely from current contents (always correct,
	// whether this is an append or a reorg — no incremental OR needed).
	for pos0 := range started {
		g0, err := store.GroupAt(pos0)
		if err != nil {
			return err
		}
		agg := g0.Aggregate()
		n := pos0.Index * ElementsPerIndex // representative block number in this group
		for level := uint8(1); level < Levels; level++ {
			pos := Position{Level: level, Index: groupIndex(level, n)}
			g, err := store.GroupAt(pos)
			if err != nil {
				return err
			}
			if g == nil {
				g = &Group{}
			}
			g[slot(level, n)] = agg
			store.PutGroup(pos, g)
			agg = g.Aggregate()
		}
	}
	return nil
}

// Query descends the hierarchy over [from, to], pruning any group whose
// aggregate does not contain query, and returns matching block numbers
// in ascending order. No false negatives; callers must re-verify matches
// against actual receipts.
func Query(store Store, from, to uint64, query types.Bloom) ([]uint64, error) {
	result := roaring.New()
	if err := queryLevel(store, Levels-1, groupIndex(Levels-1, from), groupIndex(Levels-1, to), from, to, query, result); err != nil {
		return nil, err
	}
	out := make([]uint64, 0, result.GetCardinality())
	it := result.Iterator()
	for it.HasNext() {
		out = append(out, uint64(it.Next()))
	}
	return out, nil
}

func queryLevel(store Store, level uint8, fromIdx, toIdx, from, to uint64, query types.Bloom, result *roaring.Bitmap) error {
	for idx := fromIdx; idx <= toIdx; idx++ {
		g, err := store.GroupAt(Position{Level: level, Index: idx})
		if err != nil {
			return err
		}
		if g == nil {
			continue
		}
		base := idx * ElementsPerIndex // group covers [base, base+16) at this level's granularity
		for s := uint64(0); s < ElementsPerIndex; s++ {
			if !contains(g[s], query) {
				continue
			}
			if level == 0 {
				n := base + s
				if n >= from && n <= to {
					result.Add(uint32(n))
				}
				continue
			}
			// descend: the child group at level-1 spans numbers
			// [childIdx*pow16(level), childIdx*pow16(level)+pow16(level)).
			childIdx := base + s
			childFrom := childIdx * pow16(level)
			childTo := childFrom + pow16(level) - 1
			if childTo < from || childFrom > to {
				continue
			}
			if err := queryLevel(store, level-1, childIdx, childIdx, from, to, query, result); err != nil {
				return err
			}
		}
	}
	return nil
}
