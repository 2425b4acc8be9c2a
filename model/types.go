// Package model holds the entity types of §3 of the spec: the records
// the chain index persists and exchanges with its collaborators. It has
// no dependency on kv, codec, bloomindex, cachemgr or chainindex, so
// every one of those packages can depend on it without creating cycles.
package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// BlockDetails is the familial record for a stored block (§3).
// Invariants: TotalDifficulty = parent.TotalDifficulty + header difficulty;
// every entry of Children has this block's hash as its own parent;
// a BlockDetails exists iff the header and body for its hash both exist.
type BlockDetails struct {
	Number          uint64
	TotalDifficulty *uint256.Int
	Parent          common.Hash
	Children        []common.Hash
}

// AddChild appends hash to Children if not already present.
func (d *BlockDetails) AddChild(hash common.Hash) {
	for _, c := range d.Children {
		if c == hash {
			return
		}
	}
	d.Children = append(d.Children, hash)
}

// TransactionAddress locates a transaction within the canonical chain.
// It exists exactly for transactions contained in a canonical block.
type TransactionAddress struct {
	BlockHash common.Hash
	Index     uint32
}

// Placement is the outcome fork-choice assigns to an inserted block (§4.5.3).
type Placement uint8

const (
	Branch Placement = iota
	CanonChain
	BranchBecomingCanonChain
)

func (p Placement) String() string {
	switch p {
	case Branch:
		return "Branch"
	case CanonChain:
		return "CanonChain"
	case BranchBecomingCanonChain:
		return "BranchBecomingCanonChain"
	default:
		return "Unknown"
	}
}

// BlockInfo is the computed placement decision for one inserted block.
type BlockInfo struct {
	Hash            common.Hash
	Number          uint64
	TotalDifficulty *uint256.Int
	Location        Placement
}

// ImportRoute is returned by block insertion (§4.5.5). Omitted is always
// empty: the source this spec traces to carries the field but never
// populates it (§9, Open Question), and this repo preserves that for
// compatibility rather than inventing a policy for it.
type ImportRoute struct {
	Enacted   []common.Hash
	Retracted []common.Hash
	Omitted   []common.Hash
}

func (r ImportRoute) IsEmpty() bool {
	return len(r.Enacted) == 0 && len(r.Retracted) == 0 && len(r.Omitted) == 0
}

// BestBlock is the in-memory tip record (§3).
type BestBlock struct {
	Hash            common.Hash
	Number          uint64
	TotalDifficulty *uint256.Int
	Timestamp       uint64
	Header          *types.Header
	Body            *types.Body
}

// BestAncientBlock brackets the historical gap created by out-of-order
// ancient imports; present iff such a gap currently exists.
type BestAncientBlock struct {
	Hash   common.Hash
	Number uint64
}

// EpochCandidate is one candidate transition for an epoch. At most one
// candidate per epoch is ever canonical.
type EpochCandidate struct {
	BlockHash   common.Hash
	BlockNumber uint64
	Proof       []byte
}

// EpochTransitions accumulates the candidates seen for one epoch number.
type EpochTransitions struct {
	Candidates []EpochCandidate
}

// AddCandidate suppresses duplicates by block hash (§4.5.7).
func (e *EpochTransitions) AddCandidate(c EpochCandidate) {
	for _, existing := range e.Candidates {
		if existing.BlockHash == c.BlockHash {
			return
		}
	}
	e.Candidates = append(e.Candidates, c)
}

// PendingEpochTransition is an unapplied transition, stored per block
// hash. This core never garbage-collects it (§9, Open Question).
type PendingEpochTransition struct {
	Proof []byte
}
