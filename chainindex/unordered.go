package chainindex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/ledgerwatch/chainindex/bloomindex"
	"github.com/ledgerwatch/chainindex/codec"
	"github.com/ledgerwatch/chainindex/common/dbutils"
	"github.com/ledgerwatch/chainindex/kv"
	"github.com/ledgerwatch/chainindex/model"
)

// InsertUnorderedBlock implements §4.5.6: catching up a historical gap
// from below. Unlike InsertBlock it runs no fork choice (every block is
// placed on the canonical chain), and tolerates the parent being entirely
// unknown locally (the stub-details case). Returns disconnected=true when the
// gap below this block is not yet closed.
func (ci *ChainIndex) InsertUnorderedBlock(
	batch kv.Batch,
	header *types.Header,
	body *types.Body,
	receipts []*types.ReceiptForStorage,
	parentTotalDifficulty *uint256.Int,
	isBest bool,
	isAncient bool,
) (disconnected bool, err error) {
	mustInvariant(len(receipts) == len(body.Transactions),
		"chainindex: receipts/transactions length mismatch (%d vs %d)", len(receipts), len(body.Transactions))

	ci.pendingMu.Lock()
	defer ci.pendingMu.Unlock()
	mustInvariant(ci.pending == nil || ci.pending.isEmpty(),
		"chainindex: InsertUnorderedBlock called with a non-empty pending overlay; Commit was not called")

	hash := header.Hash()
	parentHash := header.ParentHash
	number := header.Number.Uint64()

	encHeader, err := codec.EncodeHeader(header)
	if err != nil {
		return false, err
	}
	encBody, err := codec.EncodeBody(body)
	if err != nil {
		return false, err
	}
	key := dbutils.HeaderBodyKey(number, hash)
	batch.Put(dbutils.ColHeaders, key, encHeader)
	batch.Put(dbutils.ColBodies, key, encBody)

	encReceipts, err := codec.EncodeReceipts(receipts)
	if err != nil {
		return false, err
	}
	batch.Put(dbutils.ColExtra, dbutils.ReceiptsKey(hash), encReceipts)

	// See InsertBlock: header/body/receipts are populated lazily by
	// getHeader/getBody/getReceipts on a post-commit read, never here,
	// so a failed batch.Write never leaves a cache entry for data that
	// was never durably persisted.

	parentDetails, err := ci.getDetails(parentHash)
	if err != nil {
		return false, err
	}

	diff, overflow := uint256.FromBig(header.Difficulty)
	mustInvariant(!overflow, "chainindex: header difficulty of block %x overflows uint256", hash)

	overlay := newPendingOverlay()
	disconnected = parentDetails == nil

	var totalDifficulty *uint256.Int
	if parentDetails != nil {
		totalDifficulty = new(uint256.Int).Add(parentDetails.TotalDifficulty, diff)
		updatedParent := &model.BlockDetails{
			Number:          parentDetails.Number,
			TotalDifficulty: parentDetails.TotalDifficulty,
			Parent:          parentDetails.Parent,
			Children:        append(append([]common.Hash{}, parentDetails.Children...), hash),
		}
		overlay.details[parentHash] = updatedParent
		stageDetails(batch, parentHash, updatedParent)
	} else {
		mustInvariant(parentTotalDifficulty != nil,
			"chainindex: ancient block %x has no local parent details and no supplied parent total difficulty", hash)
		totalDifficulty = new(uint256.Int).Add(parentTotalDifficulty, diff)
		// Stub details record: empty children, linkage left to the caller.
	}

	newDetails := &model.BlockDetails{Number: number, TotalDifficulty: totalDifficulty, Parent: parentHash}
	overlay.details[hash] = newDetails
	stageDetails(batch, hash, newDetails)

	// Unordered stream is trusted to be canonical (§4.5.6): always treat
	// as CanonChain placement, never a branch or reorg trigger.
	overlay.hashes[number] = hash
	batch.Put(dbutils.ColExtra, dbutils.CanonicalKey(number), hash.Bytes())
	stageTxAddresses(batch, overlay, hash, body.Transactions)

	if _, err := bloomindex.Insert(&liveBloomStore{ci: ci, batch: batch}, number, header.Bloom); err != nil {
		return false, err
	}

	if isBest {
		overlay.bestBlock = &model.BestBlock{
			Hash: hash, Number: number, TotalDifficulty: totalDifficulty,
			Timestamp: header.Time, Header: header, Body: body,
		}
		batch.Put(dbutils.ColExtra, dbutils.BestKey(), hash.Bytes())
	}

	if err := ci.updateAncientMarker(batch, hash, number, isAncient); err != nil {
		return false, err
	}

	ci.pending = overlay
	return disconnected, nil
}

// updateAncientMarker implements the last bullet of §4.5.6: clear the
// ancient marker once the successor block is present (gap closed from
// this side), else advance it forward.
func (ci *ChainIndex) updateAncientMarker(batch kv.Batch, hash common.Hash, number uint64, isAncient bool) error {
	if !isAncient {
		return nil
	}
	if _, ok := ci.blockHash(number + 1); ok {
		batch.Delete(dbutils.ColExtra, dbutils.AncientKey())
		ci.bestAncientMu.Lock()
		ci.bestAncient = nil
		ci.bestAncientMu.Unlock()
		return nil
	}
	ci.bestAncientMu.Lock()
	defer ci.bestAncientMu.Unlock()
	if ci.bestAncient == nil || number > ci.bestAncient.Number {
		ci.bestAncient = &model.BestAncientBlock{Hash: hash, Number: number}
		batch.Put(dbutils.ColExtra, dbutils.AncientKey(), hash.Bytes())
	}
	return nil
}
