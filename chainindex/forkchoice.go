package chainindex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ledgerwatch/chainindex/model"
)

// placement decides the outcome of §4.5.3 for a block of the given hash,
// parent and total difficulty, given the currently-best block. The tie
// break is strict: equal total difficulty keeps the incumbent.
func placement(parentHash, currentBestHash common.Hash, totalDifficulty, currentBestTD *uint256.Int) model.Placement {
	isNewBest := totalDifficulty.Gt(currentBestTD)
	switch {
	case !isNewBest:
		return model.Branch
	case parentHash == currentBestHash:
		return model.CanonChain
	default:
		return model.BranchBecomingCanonChain
	}
}
