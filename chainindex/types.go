// Package chainindex is the central component (§4.5): ingest (ordered and
// unordered), fork-choice, tree-route/reorg, two-phase commit, the
// epoch-transition journal, and (in query.go) the read-only Query
// Interface of §4.6.
package chainindex

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ledgerwatch/chainindex/cachemgr"
	"github.com/ledgerwatch/chainindex/kv"
	"github.com/ledgerwatch/chainindex/model"
)

// Declared lock order (§4.5.1). Never acquire a lower-ranked lock while
// holding a higher-ranked one; lockcheck.go enforces this in debug builds.
//
//	best_block -> best_ancient_block -> block_headers -> block_bodies ->
//	block_details -> block_hashes -> transaction_addresses ->
//	blocks_blooms -> block_receipts -> cache_manager
//
// pendingMu sits outside this order: InsertBlock and InsertUnorderedBlock
// take it first and hold it while they read best_block,
// best_ancient_block and the caches above; Commit releases it before it
// takes any of them.
const (
	rankBestBlock = iota
	rankBestAncientBlock
	rankBlockHeaders
	rankBlockBodies
	rankBlockDetails
	rankBlockHashes
	rankTransactionAddresses
	rankBlocksBlooms
	rankBlockReceipts
	rankCacheManager
	rankPending
)

// ChainIndex holds the seven live caches and best-block state of
// §4.5.1. Each cache is independently read/write-protected; there is no
// single global lock. Construct via Open.
type ChainIndex struct {
	db  kv.Database
	cfg Config

	firstBlock    common.Hash // immutable after startup
	genesisHash   common.Hash
	firstBlockSet bool

	bestMu sync.RWMutex
	best   *model.BestBlock

	bestAncientMu sync.RWMutex
	bestAncient   *model.BestAncientBlock

	headers  *kv.Cache // key: hash bytes        -> *types.Header
	bodies   *kv.Cache // key: hash bytes        -> *types.Body
	details  *kv.Cache // key: hash bytes        -> *model.BlockDetails
	hashes   *kv.Cache // key: number(8) bytes   -> common.Hash
	txAddrs  *kv.Cache // key: tx hash bytes     -> *model.TransactionAddress
	blooms   *kv.Cache // key: bloom group key   -> *bloomindex.Group
	receipts *kv.Cache // key: hash bytes        -> []*types.ReceiptForStorage

	cacheMgr *cachemgr.Manager

	pendingMu sync.Mutex
	pending   *pendingOverlay

	log log.Logger
}

// pendingOverlay stages everything produced by InsertBlock/InsertUnorderedBlock
// until Commit drains it into the live maps (§4.5.5, §9 "pending overlay
// pattern"). A nil *model.TransactionAddress entry in txAddrs means
// "remove this key on commit" (retraction).
type pendingOverlay struct {
	bestBlock   *model.BestBlock
	hashes      map[uint64]common.Hash
	details     map[common.Hash]*model.BlockDetails
	txAddrs     map[common.Hash]*model.TransactionAddress
	touchedTags []cachemgr.Tag
}

func newPendingOverlay() *pendingOverlay {
	return &pendingOverlay{
		hashes:  make(map[uint64]common.Hash),
		details: make(map[common.Hash]*model.BlockDetails),
		txAddrs: make(map[common.Hash]*model.TransactionAddress),
	}
}

func (p *pendingOverlay) isEmpty() bool {
	return p.bestBlock == nil && len(p.hashes) == 0 && len(p.details) == 0 && len(p.txAddrs) == 0
}
