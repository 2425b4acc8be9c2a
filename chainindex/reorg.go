package chainindex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ledgerwatch/chainindex/bloomindex"
	"github.com/ledgerwatch/chainindex/common/dbutils"
	"github.com/ledgerwatch/chainindex/kv"
	"github.com/ledgerwatch/chainindex/model"
)

// applyReorg implements §4.5.4 for the BranchBecomingCanonChain case: it
// computes the tree route from the current best to the new block's
// parent, rewrites number->hash over the enacted range, replaces the
// bloom groups it covers, and swaps transaction addresses (retractions
// before enactments, so a tx in both ends up enacted).
func (ci *ChainIndex) applyReorg(
	batch kv.Batch,
	overlay *pendingOverlay,
	bestHash, newHash common.Hash,
	newDetails *model.BlockDetails,
	newHeader *types.Header,
	newBody *types.Body,
) (model.ImportRoute, error) {
	route, ok, err := ci.treeRoute(bestHash, newHeader.ParentHash)
	if err != nil {
		return model.ImportRoute{}, err
	}
	mustInvariant(ok, "chainindex: reorg from %x to %x has no common ancestor (missing details)", bestHash, newHeader.ParentHash)

	retracted := route.Blocks[:route.Index]
	enactedExisting := route.Blocks[route.Index:]
	enacted := make([]common.Hash, 0, len(enactedExisting)+1)
	enacted = append(enacted, enactedExisting...)
	enacted = append(enacted, newHash)

	ancestorDetails, err := ci.getDetails(route.Ancestor)
	if err != nil {
		return model.ImportRoute{}, err
	}
	mustInvariant(ancestorDetails != nil, "chainindex: reorg ancestor %x has no details record", route.Ancestor)

	// Retracted blocks lose their number->hash entries implicitly (they
	// are overwritten below); their transactions are removed first.
	for _, h := range retracted {
		d, err := ci.getDetails(h)
		if err != nil {
			return model.ImportRoute{}, err
		}
		mustInvariant(d != nil, "chainindex: retracted block %x has no details record", h)
		body, err := ci.getBody(h, d.Number)
		if err != nil {
			return model.ImportRoute{}, err
		}
		mustInvariant(body != nil, "chainindex: retracted block %x has no body", h)
		stageTxAddressRemovals(batch, overlay, body.Transactions)
	}

	blooms := make([]types.Bloom, 0, len(enacted))
	number := ancestorDetails.Number + 1
	for _, h := range enacted {
		overlay.hashes[number] = h
		batch.Put(dbutils.ColExtra, dbutils.CanonicalKey(number), h.Bytes())

		var header *types.Header
		var body *types.Body
		if h == newHash {
			header, body = newHeader, newBody
		} else {
			header, err = ci.getHeader(h, number)
			if err != nil {
				return model.ImportRoute{}, err
			}
			body, err = ci.getBody(h, number)
			if err != nil {
				return model.ImportRoute{}, err
			}
		}
		mustInvariant(header != nil && body != nil, "chainindex: enacted block %x missing header/body", h)
		blooms = append(blooms, header.Bloom)
		stageTxAddresses(batch, overlay, h, body.Transactions)
		number++
	}

	if err := bloomindex.Replace(&liveBloomStore{ci: ci, batch: batch}, ancestorDetails.Number+1, newDetails.Number, blooms); err != nil {
		return model.ImportRoute{}, err
	}

	overlay.bestBlock = &model.BestBlock{
		Hash: newHash, Number: newDetails.Number, TotalDifficulty: newDetails.TotalDifficulty,
		Timestamp: newHeader.Time, Header: newHeader, Body: newBody,
	}
	batch.Put(dbutils.ColExtra, dbutils.BestKey(), newHash.Bytes())

	ci.log.Info("chain reorg", "retracted", len(retracted), "enacted", len(enacted), "ancestor", route.Ancestor, "newBest", newHash)

	return model.ImportRoute{Enacted: enacted, Retracted: retracted}, nil
}
