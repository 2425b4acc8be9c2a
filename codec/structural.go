package codec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/ledgerwatch/chainindex/model"
)

// Structural encoding (§4.2.1) uses RLP throughout: it is already a
// deterministic, length-prefixed recursive encoding (the requirement the
// spec states generically), and it is the wire format every other record
// in this dependency family already uses, so no second scheme needs
// inventing.

// blockDetailsRLP is BlockDetails' wire shape. TotalDifficulty is carried
// as *big.Int, which go-ethereum's rlp encodes natively; model.BlockDetails
// keeps it as uint256.Int (the u256 the spec calls for) and this layer
// converts at the boundary.
type blockDetailsRLP struct {
	Number          uint64
	TotalDifficulty *big.Int
	Parent          common.Hash
	Children        []common.Hash
}

func EncodeBlockDetails(d *model.BlockDetails) ([]byte, error) {
	return rlp.EncodeToBytes(&blockDetailsRLP{
		Number:          d.Number,
		TotalDifficulty: d.TotalDifficulty.ToBig(),
		Parent:          d.Parent,
		Children:        d.Children,
	})
}

func DecodeBlockDetails(b []byte) (*model.BlockDetails, error) {
	var w blockDetailsRLP
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return nil, err
	}
	td, overflow := uint256.FromBig(w.TotalDifficulty)
	if overflow {
		return nil, errOverflow("total difficulty")
	}
	return &model.BlockDetails{
		Number:          w.Number,
		TotalDifficulty: td,
		Parent:          w.Parent,
		Children:        w.Children,
	}, nil
}

func EncodeTransactionAddress(a *model.TransactionAddress) ([]byte, error) {
	return rlp.EncodeToBytes(a)
}

func DecodeTransactionAddress(b []byte) (*model.TransactionAddress, error) {
	var a model.TransactionAddress
	if err := rlp.DecodeBytes(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

type epochCandidateRLP struct {
	BlockHash   common.Hash
	BlockNumber uint64
	Proof       []byte
}

type epochTransitionsRLP struct {
	Candidates []epochCandidateRLP
}

func EncodeEpochTransitions(e *model.EpochTransitions) ([]byte, error) {
	w := epochTransitionsRLP{Candidates: make([]epochCandidateRLP, len(e.Candidates))}
	for i, c := range e.Candidates {
		w.Candidates[i] = epochCandidateRLP{BlockHash: c.BlockHash, BlockNumber: c.BlockNumber, Proof: c.Proof}
	}
	return rlp.EncodeToBytes(&w)
}

func DecodeEpochTransitions(b []byte) (*model.EpochTransitions, error) {
	var w epochTransitionsRLP
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return nil, err
	}
	out := &model.EpochTransitions{Candidates: make([]model.EpochCandidate, len(w.Candidates))}
	for i, c := range w.Candidates {
		out.Candidates[i] = model.EpochCandidate{BlockHash: c.BlockHash, BlockNumber: c.BlockNumber, Proof: c.Proof}
	}
	return out, nil
}

func EncodePendingTransition(p *model.PendingEpochTransition) ([]byte, error) {
	return rlp.EncodeToBytes(p)
}

func DecodePendingTransition(b []byte) (*model.PendingEpochTransition, error) {
	var p model.PendingEpochTransition
	if err := rlp.DecodeBytes(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type overflowError string

func (e overflowError) Error() string { return "codec: " + string(e) + " overflows uint256" }

func errOverflow(what string) error { return overflowError(what) }
