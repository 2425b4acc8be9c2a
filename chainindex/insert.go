package chainindex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/ledgerwatch/chainindex/bloomindex"
	"github.com/ledgerwatch/chainindex/cachemgr"
	"github.com/ledgerwatch/chainindex/codec"
	"github.com/ledgerwatch/chainindex/common/dbutils"
	"github.com/ledgerwatch/chainindex/kv"
	"github.com/ledgerwatch/chainindex/model"
)

// InsertBlock implements §4.5.5: stages header/body/receipts, computes
// placement, and stages the pending overlay that Commit later drains.
// batch accumulates every write this call produces; the caller is
// responsible for durably applying it before calling Commit.
func (ci *ChainIndex) InsertBlock(batch kv.Batch, header *types.Header, body *types.Body, receipts []*types.ReceiptForStorage) (model.ImportRoute, error) {
	mustInvariant(len(receipts) == len(body.Transactions),
		"chainindex: receipts/transactions length mismatch (%d vs %d)", len(receipts), len(body.Transactions))

	ci.pendingMu.Lock()
	defer ci.pendingMu.Unlock()
	mustInvariant(ci.pending == nil || ci.pending.isEmpty(),
		"chainindex: InsertBlock called with a non-empty pending overlay; Commit was not called")

	hash := header.Hash()
	parentHash := header.ParentHash

	parentDetails, err := ci.getDetails(parentHash)
	if err != nil {
		return model.ImportRoute{}, err
	}
	mustInvariant(parentDetails != nil, "chainindex: parent %x of block %x has no details record", parentHash, hash)

	for _, child := range parentDetails.Children {
		if child == hash {
			return model.ImportRoute{}, nil
		}
	}

	encHeader, err := codec.EncodeHeader(header)
	if err != nil {
		return model.ImportRoute{}, err
	}
	encBody, err := codec.EncodeBody(body)
	if err != nil {
		return model.ImportRoute{}, err
	}
	number := header.Number.Uint64()
	mustInvariant(number == parentDetails.Number+1,
		"chainindex: block %x number %d is not parent %x's successor (%d)", hash, number, parentHash, parentDetails.Number+1)
	key := dbutils.HeaderBodyKey(number, hash)
	batch.Put(dbutils.ColHeaders, key, encHeader)
	batch.Put(dbutils.ColBodies, key, encBody)

	encReceipts, err := codec.EncodeReceipts(receipts)
	if err != nil {
		return model.ImportRoute{}, err
	}
	batch.Put(dbutils.ColExtra, dbutils.ReceiptsKey(hash), encReceipts)

	// header/body/receipts are not cached here: the caller has not yet
	// durably applied batch (§2, "stage ... -> flush to disk -> publish to
	// reader caches"). If batch.Write fails and Commit never runs, a cache
	// entry set here would permanently claim data that was never
	// persisted. getHeader/getBody/getReceipts populate these caches
	// lazily, on a read that hits the KV store after the batch lands —
	// matching the original's block_header_data/block_body, which never
	// populate their caches from inside insert_block.

	diff, overflow := uint256.FromBig(header.Difficulty)
	mustInvariant(!overflow, "chainindex: header difficulty of block %x overflows uint256", hash)
	totalDifficulty := new(uint256.Int).Add(parentDetails.TotalDifficulty, diff)

	ci.bestMu.RLock()
	currentBest := ci.best
	ci.bestMu.RUnlock()

	loc := placement(parentHash, currentBest.Hash, totalDifficulty, currentBest.TotalDifficulty)

	newDetails := &model.BlockDetails{Number: number, TotalDifficulty: totalDifficulty, Parent: parentHash}
	updatedParent := &model.BlockDetails{
		Number:          parentDetails.Number,
		TotalDifficulty: parentDetails.TotalDifficulty,
		Parent:          parentDetails.Parent,
		Children:        append(append([]common.Hash{}, parentDetails.Children...), hash),
	}

	overlay := newPendingOverlay()
	overlay.details[hash] = newDetails
	overlay.details[parentHash] = updatedParent
	stageDetails(batch, hash, newDetails)
	stageDetails(batch, parentHash, updatedParent)

	var route model.ImportRoute
	switch loc {
	case model.Branch:
		// no canonical mutation; bloom index untouched (§4.5.3).

	case model.CanonChain:
		overlay.hashes[number] = hash
		batch.Put(dbutils.ColExtra, dbutils.CanonicalKey(number), hash.Bytes())

		overlay.bestBlock = &model.BestBlock{
			Hash: hash, Number: number, TotalDifficulty: totalDifficulty,
			Timestamp: header.Time, Header: header, Body: body,
		}
		batch.Put(dbutils.ColExtra, dbutils.BestKey(), hash.Bytes())

		stageTxAddresses(batch, overlay, hash, body.Transactions)

		if _, err := bloomindex.Insert(&liveBloomStore{ci: ci, batch: batch}, number, header.Bloom); err != nil {
			return model.ImportRoute{}, err
		}
		route = model.ImportRoute{Enacted: []common.Hash{hash}}

	case model.BranchBecomingCanonChain:
		r, err := ci.applyReorg(batch, overlay, currentBest.Hash, hash, newDetails, header, body)
		if err != nil {
			return model.ImportRoute{}, err
		}
		route = r
	}

	ci.pending = overlay
	return route, nil
}

func stageDetails(batch kv.Batch, hash common.Hash, d *model.BlockDetails) {
	encoded, err := codec.EncodeBlockDetails(d)
	mustInvariant(err == nil, "chainindex: details encode failed for %x: %v", hash, err)
	batch.Put(dbutils.ColExtra, dbutils.BlockDetailsKey(hash), encoded)
}

func stageTxAddresses(batch kv.Batch, overlay *pendingOverlay, blockHash common.Hash, txs types.Transactions) {
	for i, tx := range txs {
		addr := &model.TransactionAddress{BlockHash: blockHash, Index: uint32(i)}
		overlay.txAddrs[tx.Hash()] = addr
		encoded, err := codec.EncodeTransactionAddress(addr)
		mustInvariant(err == nil, "chainindex: tx address encode failed: %v", err)
		batch.Put(dbutils.ColExtra, dbutils.TxAddressKey(tx.Hash()), encoded)
	}
}

func stageTxAddressRemovals(batch kv.Batch, overlay *pendingOverlay, txs types.Transactions) {
	for _, tx := range txs {
		overlay.txAddrs[tx.Hash()] = nil
		batch.Delete(dbutils.ColExtra, dbutils.TxAddressKey(tx.Hash()))
	}
}

// Commit drains the pending overlay into the live maps under the
// declared lock order (§4.5.5). Call only after the batch InsertBlock
// filled has been durably applied by the caller.
func (ci *ChainIndex) Commit() error {
	ci.pendingMu.Lock()
	overlay := ci.pending
	ci.pending = nil
	ci.pendingMu.Unlock()

	if overlay == nil || overlay.isEmpty() {
		return nil
	}

	ci.checkLock(rankBestBlock)
	ci.bestMu.Lock()
	if overlay.bestBlock != nil {
		ci.best = overlay.bestBlock
	}
	ci.bestMu.Unlock()

	ci.checkLock(rankBlockDetails)
	for hash, details := range overlay.details {
		ci.details.Set(hash.Bytes(), details)
		ci.noteUsed(cachemgr.KindBlockDetails, hash.Bytes(), estimateDetailsSize(details))
	}

	ci.checkLock(rankBlockHashes)
	for number, hash := range overlay.hashes {
		key := dbutils.EncodeBlockNumber(number)
		ci.hashes.Set(key, hash)
		ci.noteUsed(cachemgr.KindBlockHashes, key, 32)
	}

	ci.checkLock(rankTransactionAddresses)
	for txHash, addr := range overlay.txAddrs {
		if addr == nil {
			ci.txAddrs.Delete(txHash.Bytes())
		} else {
			ci.txAddrs.Set(txHash.Bytes(), addr)
			ci.noteUsed(cachemgr.KindTransactionAddresses, txHash.Bytes(), 48)
		}
	}

	ci.releaseLock()
	return nil
}
