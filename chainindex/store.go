package chainindex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/ledgerwatch/chainindex/cachemgr"
	"github.com/ledgerwatch/chainindex/codec"
	"github.com/ledgerwatch/chainindex/common/dbutils"
	"github.com/ledgerwatch/chainindex/kv"
	"github.com/ledgerwatch/chainindex/model"
)

// Open performs the startup procedure of §4.5.2 against db, bootstrapping
// a fresh store from genesis if no "best" key is present.
func Open(db kv.Database, genesis *types.Block, cfg Config) (*ChainIndex, error) {
	ci := &ChainIndex{
		db:       db,
		cfg:      cfg,
		headers:  kv.NewCache(),
		bodies:   kv.NewCache(),
		details:  kv.NewCache(),
		hashes:   kv.NewCache(),
		txAddrs:  kv.NewCache(),
		blooms:   kv.NewCache(),
		receipts: kv.NewCache(),
		log:      log.New("module", "chainindex"),
	}
	mgr, err := cachemgr.NewManager(uintptr(cfg.PrefCacheSize), uintptr(cfg.MaxCacheSize), ci.evictTag)
	if err != nil {
		return nil, err
	}
	ci.cacheMgr = mgr

	bestHash, err := db.Get(dbutils.ColExtra, dbutils.BestKey())
	if err != nil {
		return nil, err
	}
	if bestHash == nil {
		if err := ci.bootstrapGenesis(genesis); err != nil {
			return nil, err
		}
	} else {
		if err := ci.loadExisting(common.BytesToHash(bestHash)); err != nil {
			return nil, err
		}
	}
	return ci, nil
}

func (ci *ChainIndex) bootstrapGenesis(genesis *types.Block) error {
	hash := genesis.Hash()
	batch := ci.db.NewBatch()

	encHeader, err := codec.EncodeHeader(genesis.Header())
	if err != nil {
		return err
	}
	encBody, err := codec.EncodeBody(genesis.Body())
	if err != nil {
		return err
	}
	key := dbutils.HeaderBodyKey(0, hash)
	batch.Put(dbutils.ColHeaders, key, encHeader)
	batch.Put(dbutils.ColBodies, key, encBody)

	td, overflow := uint256.FromBig(genesis.Difficulty())
	mustInvariant(!overflow, "chainindex: genesis difficulty overflows uint256")
	details := &model.BlockDetails{Number: 0, TotalDifficulty: td, Parent: common.Hash{}, Children: nil}
	encDetails, err := codec.EncodeBlockDetails(details)
	if err != nil {
		return err
	}
	batch.Put(dbutils.ColExtra, dbutils.BlockDetailsKey(hash), encDetails)
	batch.Put(dbutils.ColExtra, dbutils.CanonicalKey(0), hash.Bytes())
	batch.Put(dbutils.ColExtra, dbutils.BestKey(), hash.Bytes())
	if err := batch.Write(); err != nil {
		return err
	}

	ci.headers.Set(hash.Bytes(), genesis.Header())
	ci.bodies.Set(hash.Bytes(), genesis.Body())
	ci.details.Set(hash.Bytes(), details)
	ci.hashes.Set(dbutils.EncodeBlockNumber(0), hash)
	ci.genesisHash = hash
	ci.firstBlock = hash
	ci.firstBlockSet = true
	ci.best = &model.BestBlock{
		Hash: hash, Number: 0, TotalDifficulty: td,
		Timestamp: genesis.Time(), Header: genesis.Header(), Body: genesis.Body(),
	}
	return nil
}

func (ci *ChainIndex) loadExisting(bestHash common.Hash) error {
	if h, ok := ci.blockHash(0); ok {
		ci.genesisHash = h
	}
	bestDetails, err := ci.getDetails(bestHash)
	if err != nil {
		return err
	}
	mustInvariant(bestDetails != nil, "chainindex: best block %x has no details record", bestHash)
	bestHeader, err := ci.getHeader(bestHash, bestDetails.Number)
	if err != nil {
		return err
	}
	bestBody, err := ci.getBody(bestHash, bestDetails.Number)
	if err != nil {
		return err
	}
	mustInvariant(bestHeader != nil && bestBody != nil, "chainindex: best block %x missing header/body", bestHash)
	ci.best = &model.BestBlock{
		Hash: bestHash, Number: bestDetails.Number, TotalDifficulty: bestDetails.TotalDifficulty,
		Timestamp: bestHeader.Time, Header: bestHeader, Body: bestBody,
	}

	ancientHash, err := ci.db.Get(dbutils.ColExtra, dbutils.AncientKey())
	if err != nil {
		return err
	}
	if ancientHash == nil && bestDetails.Number > 1 {
		present, err := ci.hashAtExists(1)
		if err != nil {
			return err
		}
		if !present {
			ancientHash = ci.genesisAncestorHash()
		}
	}
	var ancientNumber uint64
	if ancientHash != nil {
		h := common.BytesToHash(ancientHash)
		d, err := ci.getDetails(h)
		if err != nil {
			return err
		}
		if d != nil {
			ancientNumber = d.Number
		}
		ci.bestAncient = &model.BestAncientBlock{Hash: h, Number: ancientNumber}
	}

	firstHash, err := ci.db.Get(dbutils.ColExtra, dbutils.FirstKey())
	if err != nil {
		return err
	}
	if firstHash != nil {
		ci.firstBlock = common.BytesToHash(firstHash)
		ci.firstBlockSet = true
	} else if ci.bestAncient != nil {
		first, err := ci.binarySearchFirstAvailable(ancientNumber, bestDetails.Number)
		if err != nil {
			return err
		}
		ci.firstBlock = first
		ci.firstBlockSet = true
		if first != ci.genesisRootHash() {
			batch := ci.db.NewBatch()
			batch.Put(dbutils.ColExtra, dbutils.FirstKey(), first.Bytes())
			if err := batch.Write(); err != nil {
				return err
			}
		}
	} else {
		ci.firstBlockSet = false
	}
	return nil
}

// genesisAncestorHash returns the hash at number 0, used as the ancient
// marker when no block exists at number 1 and no explicit ancient key was
// ever written (§4.5.2 step 2).
func (ci *ChainIndex) genesisAncestorHash() []byte {
	h, _ := ci.blockHash(0)
	return h.Bytes()
}

func (ci *ChainIndex) genesisRootHash() common.Hash {
	h, _ := ci.blockHash(0)
	return h
}

// hashAtExists reports whether a canonical hash is recorded at number.
func (ci *ChainIndex) hashAtExists(number uint64) (bool, error) {
	if _, ok := ci.hashes.Get(dbutils.EncodeBlockNumber(number)); ok {
		return true, nil
	}
	raw, err := ci.db.Get(dbutils.ColExtra, dbutils.CanonicalKey(number))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// binarySearchFirstAvailable locates the lowest canonical number above an
// ancient gap that has a recorded hash, per §4.5.2 step 3.
func (ci *ChainIndex) binarySearchFirstAvailable(lo, hi uint64) (common.Hash, error) {
	for lo < hi {
		mid := lo + (hi-lo)/2
		present, err := ci.hashAtExists(mid)
		if err != nil {
			return common.Hash{}, err
		}
		if present {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	h, ok := ci.blockHash(lo)
	mustInvariant(ok, "chainindex: binary search located no canonical hash at number %d", lo)
	return h, nil
}

// evictTag is the cache manager's eviction callback: it drops the entry
// from whichever live cache tag.Kind names. It never touches the KV
// store — eviction only discards the cached copy (§4.4).
func (ci *ChainIndex) evictTag(tag cachemgr.Tag) {
	key := []byte(tag.Key)
	switch tag.Kind {
	case cachemgr.KindBlockHeader:
		ci.headers.Delete(key)
	case cachemgr.KindBlockBody:
		ci.bodies.Delete(key)
	case cachemgr.KindBlockDetails:
		ci.details.Delete(key)
	case cachemgr.KindBlockHashes:
		ci.hashes.Delete(key)
	case cachemgr.KindTransactionAddresses:
		ci.txAddrs.Delete(key)
	case cachemgr.KindBlocksBlooms:
		ci.blooms.Delete(key)
	case cachemgr.KindBlockReceipts:
		ci.receipts.Delete(key)
	}
}

func (ci *ChainIndex) noteUsed(kind cachemgr.Kind, key []byte, size uintptr) {
	ci.checkLock(rankCacheManager)
	ci.cacheMgr.NoteUsed(cachemgr.Tag{Kind: kind, Key: string(key)}, size)
	if ci.cacheMgr.OverBudget() {
		ci.cacheMgr.CollectGarbage()
	}
}

// --- shared read helpers used by both query.go and the insert/reorg path ---

func (ci *ChainIndex) getDetails(hash common.Hash) (*model.BlockDetails, error) {
	v, ok, err := kv.ReadWithCache(ci.db, dbutils.ColExtra, ci.details, hash.Bytes(), func(raw []byte) (interface{}, error) {
		return codec.DecodeBlockDetails(raw)
	})
	if err != nil || !ok {
		return nil, err
	}
	d := v.(*model.BlockDetails)
	ci.noteUsed(cachemgr.KindBlockDetails, hash.Bytes(), estimateDetailsSize(d))
	return d, nil
}

func (ci *ChainIndex) getHeader(hash common.Hash, number uint64) (*types.Header, error) {
	if v, ok := ci.headers.Get(hash.Bytes()); ok {
		ci.noteUsed(cachemgr.KindBlockHeader, hash.Bytes(), 512)
		return v.(*types.Header), nil
	}
	raw, err := ci.db.Get(dbutils.ColHeaders, dbutils.HeaderBodyKey(number, hash))
	if err != nil || raw == nil {
		return nil, err
	}
	h, err := codec.DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	ci.headers.Set(hash.Bytes(), h)
	ci.noteUsed(cachemgr.KindBlockHeader, hash.Bytes(), uintptr(len(raw)))
	return h, nil
}

func (ci *ChainIndex) getBody(hash common.Hash, number uint64) (*types.Body, error) {
	if v, ok := ci.bodies.Get(hash.Bytes()); ok {
		ci.noteUsed(cachemgr.KindBlockBody, hash.Bytes(), 1024)
		return v.(*types.Body), nil
	}
	raw, err := ci.db.Get(dbutils.ColBodies, dbutils.HeaderBodyKey(number, hash))
	if err != nil || raw == nil {
		return nil, err
	}
	b, err := codec.DecodeBody(raw)
	if err != nil {
		return nil, err
	}
	ci.bodies.Set(hash.Bytes(), b)
	ci.noteUsed(cachemgr.KindBlockBody, hash.Bytes(), uintptr(len(raw)))
	return b, nil
}

func (ci *ChainIndex) getReceipts(hash common.Hash) ([]*types.ReceiptForStorage, error) {
	v, ok, err := kv.ReadWithCache(ci.db, dbutils.ColExtra, ci.receipts, dbutils.ReceiptsKey(hash), func(raw []byte) (interface{}, error) {
		return codec.DecodeReceipts(raw)
	})
	if err != nil || !ok {
		return nil, err
	}
	r := v.([]*types.ReceiptForStorage)
	ci.noteUsed(cachemgr.KindBlockReceipts, hash.Bytes(), uintptr(len(r))*256)
	return r, nil
}

func (ci *ChainIndex) blockHash(number uint64) (common.Hash, bool) {
	key := dbutils.EncodeBlockNumber(number)
	v, ok, err := kv.ReadWithCache(ci.db, dbutils.ColExtra, ci.hashes, key, func(raw []byte) (interface{}, error) {
		return common.BytesToHash(raw), nil
	})
	if err != nil || !ok {
		return common.Hash{}, false
	}
	ci.noteUsed(cachemgr.KindBlockHashes, key, 32)
	return v.(common.Hash), true
}

func (ci *ChainIndex) txAddress(txHash common.Hash) (*model.TransactionAddress, bool, error) {
	v, ok, err := kv.ReadWithCache(ci.db, dbutils.ColExtra, ci.txAddrs, txHash.Bytes(), func(raw []byte) (interface{}, error) {
		return codec.DecodeTransactionAddress(raw)
	})
	if err != nil || !ok {
		return nil, false, err
	}
	ci.noteUsed(cachemgr.KindTransactionAddresses, txHash.Bytes(), 48)
	return v.(*model.TransactionAddress), true, nil
}

func estimateDetailsSize(d *model.BlockDetails) uintptr {
	return uintptr(64 + 32*len(d.Children))
}

