package chainindex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/chainindex/kv/memkv"
	"github.com/ledgerwatch/chainindex/model"
)

func newTestIndex(t *testing.T) (*ChainIndex, *types.Block) {
	t.Helper()
	genesis := types.NewBlockWithHeader(&types.Header{
		Number:     big.NewInt(0),
		Difficulty: big.NewInt(1),
	})
	ci, err := Open(memkv.New(), genesis, DefaultConfig())
	require.NoError(t, err)
	return ci, genesis
}

func childHeader(parent *types.Header, difficulty int64, extra byte) *types.Header {
	return &types.Header{
		ParentHash: parent.Hash(),
		Number:     new(big.Int).Add(parent.Number, big.NewInt(1)),
		Difficulty: big.NewInt(difficulty),
		Extra:      []byte{extra},
	}
}

func insertAndCommit(t *testing.T, ci *ChainIndex, header *types.Header, body *types.Body, receipts []*types.ReceiptForStorage) model.ImportRoute {
	t.Helper()
	batch := ci.db.NewBatch()
	route, err := ci.InsertBlock(batch, header, body, receipts)
	require.NoError(t, err)
	require.NoError(t, batch.Write())
	require.NoError(t, ci.Commit())
	return route
}

func emptyBody() *types.Body { return &types.Body{} }

func insertUnorderedAndCommit(
	t *testing.T, ci *ChainIndex, header *types.Header, body *types.Body,
	receipts []*types.ReceiptForStorage, parentTD *uint256.Int, isBest, isAncient bool,
) bool {
	t.Helper()
	batch := ci.db.NewBatch()
	disconnected, err := ci.InsertUnorderedBlock(batch, header, body, receipts, parentTD, isBest, isAncient)
	require.NoError(t, err)
	require.NoError(t, batch.Write())
	require.NoError(t, ci.Commit())
	return disconnected
}

// Scenario 1 (§8): cold start, insert a single block atop genesis.
func TestInsertBlockExtendsCanonicalChain(t *testing.T) {
	ci, genesis := newTestIndex(t)

	a := childHeader(genesis.Header(), 2, 0xA)
	route := insertAndCommit(t, ci, a, emptyBody(), nil)

	require.Equal(t, []common.Hash{a.Hash()}, route.Enacted)
	require.Empty(t, route.Retracted)

	info := ci.ChainInfo()
	require.Equal(t, a.Hash(), info.Best.Hash)

	hash, ok := ci.BlockHash(1)
	require.True(t, ok)
	require.Equal(t, a.Hash(), hash)

	genDetails, ok, err := ci.BlockDetails(genesis.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []common.Hash{a.Hash()}, genDetails.Children)

	aDetails, ok, err := ci.BlockDetails(a.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, genesis.Hash(), aDetails.Parent)
	require.Equal(t, uint64(1+2), aDetails.TotalDifficulty.Uint64())
}

// Scenario 2 (§8): a lower-difficulty fork stays a branch; tree_route
// reports the two tip hashes and the shared ancestor.
func TestForkWithLowerDifficultyStaysBranch(t *testing.T) {
	ci, genesis := newTestIndex(t)

	a1 := childHeader(genesis.Header(), 2, 1)
	insertAndCommit(t, ci, a1, emptyBody(), nil)
	a2 := childHeader(a1, 2, 2)
	insertAndCommit(t, ci, a2, emptyBody(), nil)
	a3a := childHeader(a2, 3, 3)
	insertAndCommit(t, ci, a3a, emptyBody(), nil)

	a3b := childHeader(a2, 2, 4) // lower difficulty than a3a
	route := insertAndCommit(t, ci, a3b, emptyBody(), nil)
	require.Empty(t, route.Enacted)
	require.Empty(t, route.Retracted)

	info := ci.ChainInfo()
	require.Equal(t, a3a.Hash(), info.Best.Hash)
	hash, ok := ci.BlockHash(3)
	require.True(t, ok)
	require.Equal(t, a3a.Hash(), hash)

	route2, ok, err := ci.treeRoute(a3a.Hash(), a3b.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []common.Hash{a3a.Hash(), a3b.Hash()}, route2.Blocks)
	require.Equal(t, a2.Hash(), route2.Ancestor)
	require.Equal(t, 1, route2.Index)
}

// Scenario 3 (§8): a heavier side-chain triggers a reorg: the old tip is
// retracted, the new chain enacted, number->hash swung over.
func TestReorgSwapsCanonicalChain(t *testing.T) {
	ci, genesis := newTestIndex(t)

	a1 := childHeader(genesis.Header(), 2, 1)
	insertAndCommit(t, ci, a1, emptyBody(), nil)
	a2 := childHeader(a1, 2, 2)
	insertAndCommit(t, ci, a2, emptyBody(), nil)
	a3a := childHeader(a2, 3, 3)
	insertAndCommit(t, ci, a3a, emptyBody(), nil)

	a3b := childHeader(a2, 2, 4)
	insertAndCommit(t, ci, a3b, emptyBody(), nil)

	a4b := childHeader(a3b, 100, 5) // overtakes a3a's total difficulty
	route := insertAndCommit(t, ci, a4b, emptyBody(), nil)

	require.Equal(t, []common.Hash{a3b.Hash(), a4b.Hash()}, route.Enacted)
	require.Equal(t, []common.Hash{a3a.Hash()}, route.Retracted)
	require.Empty(t, route.Omitted)

	info := ci.ChainInfo()
	require.Equal(t, a4b.Hash(), info.Best.Hash)

	h3, ok := ci.BlockHash(3)
	require.True(t, ok)
	require.Equal(t, a3b.Hash(), h3)
	h4, ok := ci.BlockHash(4)
	require.True(t, ok)
	require.Equal(t, a4b.Hash(), h4)
}

// Scenario 4 (§8): a transaction retracted by a reorg loses its address;
// reinstating it on the new canonical chain restores one.
func TestTransactionRetractedThenReinstated(t *testing.T) {
	ci, genesis := newTestIndex(t)

	tx := types.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)
	bodyWithTx := &types.Body{Transactions: types.Transactions{tx}}
	receiptsForTx := []*types.ReceiptForStorage{{}}

	a1a := childHeader(genesis.Header(), 3, 1)
	insertAndCommit(t, ci, a1a, bodyWithTx, receiptsForTx)

	addr, ok, err := ci.TransactionAddress(tx.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a1a.Hash(), addr.BlockHash)

	// A heavier side chain without the transaction wins.
	a1b := childHeader(genesis.Header(), 2, 2)
	insertAndCommit(t, ci, a1b, emptyBody(), nil)
	a2b := childHeader(a1b, 2, 3)
	insertAndCommit(t, ci, a2b, emptyBody(), nil)

	_, ok, err = ci.TransactionAddress(tx.Hash())
	require.NoError(t, err)
	require.False(t, ok, "tx address must be gone once its block is retracted")

	// Extending a2b with a block carrying the same tx reinstates it.
	a3b := childHeader(a2b, 2, 4)
	insertAndCommit(t, ci, a3b, bodyWithTx, receiptsForTx)

	addr, ok, err = ci.TransactionAddress(tx.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a3b.Hash(), addr.BlockHash)
	require.Equal(t, uint32(0), addr.Index)
}

// Scenario 6 (§8): a bloom filter's hits track the canonical chain
// across a reorg, not whichever branch originally carried the match.
func TestBloomQueryFollowsReorg(t *testing.T) {
	ci, genesis := newTestIndex(t)

	var matching types.Bloom
	matching.Add(big.NewInt(0xdeadbeef))

	a1a := childHeader(genesis.Header(), 3, 1)
	a1a.Bloom = matching
	insertAndCommit(t, ci, a1a, emptyBody(), nil)

	hits, err := ci.BlocksWithBloom(matching, 0, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, hits)

	a1b := childHeader(genesis.Header(), 4, 2) // heavier, no matching bloom
	route := insertAndCommit(t, ci, a1b, emptyBody(), nil)
	require.Equal(t, []common.Hash{a1b.Hash()}, route.Enacted)
	require.Equal(t, []common.Hash{a1a.Hash()}, route.Retracted)

	hits, err = ci.BlocksWithBloom(matching, 0, 1)
	require.NoError(t, err)
	require.Empty(t, hits, "retracted block's bloom must not surface once replaced")

	a2b := childHeader(a1b, 1, 3)
	a2b.Bloom = matching
	insertAndCommit(t, ci, a2b, emptyBody(), nil)

	hits, err = ci.BlocksWithBloom(matching, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, hits)
}

func TestDuplicateInsertionIsNoOp(t *testing.T) {
	ci, genesis := newTestIndex(t)

	a := childHeader(genesis.Header(), 2, 1)
	insertAndCommit(t, ci, a, emptyBody(), nil)

	batch := ci.db.NewBatch()
	route, err := ci.InsertBlock(batch, a, emptyBody(), nil)
	require.NoError(t, err)
	require.Equal(t, model.ImportRoute{}, route)
}

func TestAncestryIterStopsAtGenesis(t *testing.T) {
	ci, genesis := newTestIndex(t)
	a := childHeader(genesis.Header(), 2, 1)
	insertAndCommit(t, ci, a, emptyBody(), nil)

	var seen []common.Hash
	err := ci.AncestryIter(a.Hash(), func(h common.Hash) (bool, error) {
		seen = append(seen, h)
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{a.Hash(), genesis.Hash()}, seen)
}

// unorderedHeader builds a header detached from any parent the index
// already knows about, for simulating an ancient block whose ancestor
// hasn't caught up yet.
func unorderedHeader(parentHash common.Hash, number uint64, difficulty int64, extra byte) *types.Header {
	return &types.Header{
		ParentHash: parentHash,
		Number:     new(big.Int).SetUint64(number),
		Difficulty: big.NewInt(difficulty),
		Extra:      []byte{extra},
	}
}

// Scenario 5 (§8): unordered ancient catch-up. best is already B3, itself
// inserted disconnected from a parent nobody has locally; B2 and then B1
// arrive out of order from below and close the gap.
func TestUnorderedInsertClosesAncientGap(t *testing.T) {
	ci, genesis := newTestIndex(t)

	b1 := unorderedHeader(genesis.Hash(), 1, 2, 1)
	b2 := unorderedHeader(b1.Hash(), 2, 3, 2)
	b3 := unorderedHeader(b2.Hash(), 3, 4, 3)

	td2 := new(uint256.Int).SetUint64(100) // stand-in total difficulty of the still-unknown B2, supplied by the caller
	disconnected := insertUnorderedAndCommit(t, ci, b3, emptyBody(), nil, td2, true, true)
	require.True(t, disconnected, "B3's parent B2 is not locally known yet")

	ancient, ok := ci.BestAncientBlock()
	require.True(t, ok)
	require.Equal(t, b3.Hash(), ancient.Hash)
	require.Equal(t, uint64(3), ancient.Number)

	td1 := new(uint256.Int).SetUint64(50) // stand-in total difficulty of the still-unknown B1
	disconnected = insertUnorderedAndCommit(t, ci, b2, emptyBody(), nil, td1, false, true)
	require.True(t, disconnected, "B2's parent B1 is not locally known yet")

	disconnected = insertUnorderedAndCommit(t, ci, b1, emptyBody(), nil, nil, false, true)
	require.False(t, disconnected, "B1's parent is genesis, already known")

	_, ok = ci.BestAncientBlock()
	require.False(t, ok, "the gap is fully closed once B1 links down to genesis")

	for n, want := range map[uint64]common.Hash{1: b1.Hash(), 2: b2.Hash(), 3: b3.Hash()} {
		got, ok := ci.BlockHash(n)
		require.True(t, ok, "number %d", n)
		require.Equal(t, want, got, "number %d", n)
	}

	info := ci.ChainInfo()
	require.Equal(t, b3.Hash(), info.Best.Hash, "isBest was only set on B3's insert")
}

// Scenario 5 (§8), continued: reopening a store against an existing
// backing database must reconstruct best_ancient_block from the
// persisted "ancient" key and, absent a persisted "first" key, locate
// the first available block via binary search (§4.5.2 step 3).
func TestReopenStoreLocatesFirstAvailableViaBinarySearch(t *testing.T) {
	db := memkv.New()
	genesis := types.NewBlockWithHeader(&types.Header{Number: big.NewInt(0), Difficulty: big.NewInt(1)})
	ci, err := Open(db, genesis, DefaultConfig())
	require.NoError(t, err)

	// B3 stands in for an ancient block whose own parent is unknown; it
	// becomes both best and the ancient marker.
	b3 := unorderedHeader(common.Hash{0xAA}, 3, 4, 3)
	parentTD := new(uint256.Int).SetUint64(100)
	disconnected := insertUnorderedAndCommit(t, ci, b3, emptyBody(), nil, parentTD, true, true)
	require.True(t, disconnected)

	ancientBeforeReopen, ok := ci.BestAncientBlock()
	require.True(t, ok)
	require.Equal(t, b3.Hash(), ancientBeforeReopen.Hash)

	// Ordinary chain growth on top of B3 never touches the ancient
	// marker, so it stays pinned at B3 while best moves ahead.
	b4 := childHeader(b3, 2, 4)
	insertAndCommit(t, ci, b4, emptyBody(), nil)
	b5 := childHeader(b4, 2, 5)
	insertAndCommit(t, ci, b5, emptyBody(), nil)
	b6 := childHeader(b5, 2, 6)
	insertAndCommit(t, ci, b6, emptyBody(), nil)

	_, ok = ci.FirstBlock()
	require.True(t, ok, "bootstrapGenesis sets firstBlock in memory even though it never persists the \"first\" key")

	// Reopen against the same backing store, simulating a restart. best
	// is read back from disk as B6, and no "first" key was ever written,
	// so loadExisting must rediscover it via binarySearchFirstAvailable.
	ci2, err := Open(db, genesis, DefaultConfig())
	require.NoError(t, err)

	ancientAfterReopen, ok := ci2.BestAncientBlock()
	require.True(t, ok, "the ancient marker must survive a restart via its persisted key")
	require.Equal(t, b3.Hash(), ancientAfterReopen.Hash)
	require.Equal(t, uint64(3), ancientAfterReopen.Number)

	info := ci2.ChainInfo()
	require.Equal(t, b6.Hash(), info.Best.Hash)

	first, ok := ci2.FirstBlock()
	require.True(t, ok)
	require.Equal(t, b3.Hash(), first, "binary search over [ancient.Number, best.Number) lands on the ancient block itself: nothing below it is canonical yet")
}
