package chainindex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ledgerwatch/chainindex/bloomindex"
	"github.com/ledgerwatch/chainindex/model"
)

// ChainInfo summarizes the store's current tip state for external
// collaborators (§4.6 chain_info).
type ChainInfo struct {
	Best        model.BestBlock
	BestAncient *model.BestAncientBlock
	FirstBlock  common.Hash
	GenesisHash common.Hash
}

// IsKnown reports whether hash has a details record.
func (ci *ChainIndex) IsKnown(hash common.Hash) (bool, error) {
	d, err := ci.getDetails(hash)
	return d != nil, err
}

// Block assembles the full block (header + body) for hash.
func (ci *ChainIndex) Block(hash common.Hash) (*types.Block, bool, error) {
	header, body, ok, err := ci.headerAndBody(hash)
	if err != nil || !ok {
		return nil, false, err
	}
	block := types.NewBlockWithHeader(header).WithBody(body.Transactions, body.Uncles)
	return block, true, nil
}

func (ci *ChainIndex) headerAndBody(hash common.Hash) (*types.Header, *types.Body, bool, error) {
	ci.bestMu.RLock()
	best := ci.best
	ci.bestMu.RUnlock()
	if best != nil && best.Hash == hash {
		return best.Header, best.Body, true, nil
	}

	details, err := ci.getDetails(hash)
	if err != nil || details == nil {
		return nil, nil, false, err
	}
	header, err := ci.getHeader(hash, details.Number)
	if err != nil || header == nil {
		return nil, nil, false, err
	}
	body, err := ci.getBody(hash, details.Number)
	if err != nil || body == nil {
		return nil, nil, false, err
	}
	return header, body, true, nil
}

// BlockHeader returns the header stored under hash.
func (ci *ChainIndex) BlockHeader(hash common.Hash) (*types.Header, bool, error) {
	ci.bestMu.RLock()
	best := ci.best
	ci.bestMu.RUnlock()
	if best != nil && best.Hash == hash {
		return best.Header, true, nil
	}
	details, err := ci.getDetails(hash)
	if err != nil || details == nil {
		return nil, false, err
	}
	h, err := ci.getHeader(hash, details.Number)
	return h, h != nil, err
}

// BlockBody returns the body stored under hash.
func (ci *ChainIndex) BlockBody(hash common.Hash) (*types.Body, bool, error) {
	ci.bestMu.RLock()
	best := ci.best
	ci.bestMu.RUnlock()
	if best != nil && best.Hash == hash {
		return best.Body, true, nil
	}
	details, err := ci.getDetails(hash)
	if err != nil || details == nil {
		return nil, false, err
	}
	b, err := ci.getBody(hash, details.Number)
	return b, b != nil, err
}

// BlockDetails returns the familial record for hash.
func (ci *ChainIndex) BlockDetails(hash common.Hash) (*model.BlockDetails, bool, error) {
	d, err := ci.getDetails(hash)
	return d, d != nil, err
}

// BlockHash returns the canonical hash recorded at number.
func (ci *ChainIndex) BlockHash(number uint64) (common.Hash, bool) {
	return ci.blockHash(number)
}

// TransactionAddress returns the canonical location of txHash, if any.
func (ci *ChainIndex) TransactionAddress(txHash common.Hash) (*model.TransactionAddress, bool, error) {
	return ci.txAddress(txHash)
}

// BlockReceipts returns the stored receipts for hash.
func (ci *ChainIndex) BlockReceipts(hash common.Hash) ([]*types.ReceiptForStorage, bool, error) {
	r, err := ci.getReceipts(hash)
	return r, r != nil, err
}

// GenesisHash returns the hash of block 0.
func (ci *ChainIndex) GenesisHash() common.Hash { return ci.genesisHash }

// FirstBlock returns the first available canonical block hash, and
// whether one is known. A freshly bootstrapped store knows it (genesis);
// a reopened store with neither a "first" key nor an ancient marker
// does not.
func (ci *ChainIndex) FirstBlock() (common.Hash, bool) {
	return ci.firstBlock, ci.firstBlockSet
}

// BestAncientBlock returns the marker bracketing the historical gap, if
// one currently exists.
func (ci *ChainIndex) BestAncientBlock() (*model.BestAncientBlock, bool) {
	ci.bestAncientMu.RLock()
	defer ci.bestAncientMu.RUnlock()
	return ci.bestAncient, ci.bestAncient != nil
}

// ChainInfo snapshots the tip state.
func (ci *ChainIndex) ChainInfo() ChainInfo {
	ci.bestMu.RLock()
	best := *ci.best
	ci.bestMu.RUnlock()
	ancient, _ := ci.BestAncientBlock()
	return ChainInfo{
		Best:        best,
		BestAncient: ancient,
		FirstBlock:  ci.firstBlock,
		GenesisHash: ci.genesisHash,
	}
}

// BlocksWithBloom returns canonical block numbers in [from, to] whose
// header bloom is a superset of query. A filter: no false negatives,
// false positives possible; callers must re-verify against receipts.
func (ci *ChainIndex) BlocksWithBloom(query types.Bloom, from, to uint64) ([]uint64, error) {
	return bloomindex.Query(&liveBloomStore{ci: ci}, from, to, query)
}

// AncestryIter yields first, its parent, grandparent, ... until the zero
// hash, stopping early if any details record is missing (§4.5.8).
func (ci *ChainIndex) AncestryIter(first common.Hash, fn func(hash common.Hash) (bool, error)) error {
	hash := first
	zero := common.Hash{}
	for hash != zero {
		cont, err := fn(hash)
		if err != nil || !cont {
			return err
		}
		details, err := ci.getDetails(hash)
		if err != nil {
			return err
		}
		if details == nil {
			return nil
		}
		hash = details.Parent
	}
	return nil
}
