package chainindex

import "github.com/ethereum/go-ethereum/common"

// TreeRoute is the result of walking from one block to another through
// their nearest common ancestor (§4.5.4).
type TreeRoute struct {
	Blocks   []common.Hash
	Ancestor common.Hash
	Index    int // number of leading entries in Blocks belonging to the "from" side
}

// treeRoute walks both endpoints toward the lower number first, then in
// lockstep, until they meet at a common ancestor. Returns ok=false if any
// needed details record is missing along the way.
func (ci *ChainIndex) treeRoute(from, to common.Hash) (TreeRoute, bool, error) {
	fromDetails, err := ci.getDetails(from)
	if err != nil {
		return TreeRoute{}, false, err
	}
	toDetails, err := ci.getDetails(to)
	if err != nil {
		return TreeRoute{}, false, err
	}
	if fromDetails == nil || toDetails == nil {
		return TreeRoute{}, false, nil
	}

	var fromChain, toChain []common.Hash
	fromHash, toHash := from, to
	fromNum, toNum := fromDetails.Number, toDetails.Number

	for fromNum > toNum {
		fromChain = append(fromChain, fromHash)
		d, err := ci.getDetails(fromHash)
		if err != nil {
			return TreeRoute{}, false, err
		}
		if d == nil {
			return TreeRoute{}, false, nil
		}
		fromHash = d.Parent
		fromNum--
	}
	for toNum > fromNum {
		toChain = append(toChain, toHash)
		d, err := ci.getDetails(toHash)
		if err != nil {
			return TreeRoute{}, false, err
		}
		if d == nil {
			return TreeRoute{}, false, nil
		}
		toHash = d.Parent
		toNum--
	}

	for fromHash != toHash {
		fromChain = append(fromChain, fromHash)
		toChain = append(toChain, toHash)
		fd, err := ci.getDetails(fromHash)
		if err != nil {
			return TreeRoute{}, false, err
		}
		td, err := ci.getDetails(toHash)
		if err != nil {
			return TreeRoute{}, false, err
		}
		if fd == nil || td == nil {
			return TreeRoute{}, false, nil
		}
		fromHash = fd.Parent
		toHash = td.Parent
	}

	blocks := make([]common.Hash, 0, len(fromChain)+len(toChain))
	blocks = append(blocks, fromChain...)
	for i := len(toChain) - 1; i >= 0; i-- {
		blocks = append(blocks, toChain[i])
	}
	return TreeRoute{Blocks: blocks, Ancestor: fromHash, Index: len(fromChain)}, true, nil
}
