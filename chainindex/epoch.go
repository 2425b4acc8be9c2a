package chainindex

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ledgerwatch/chainindex/codec"
	"github.com/ledgerwatch/chainindex/common/dbutils"
	"github.com/ledgerwatch/chainindex/kv"
	"github.com/ledgerwatch/chainindex/model"
)

// InsertEpochTransition records candidate as a transition for epoch,
// suppressing duplicates by block hash (§4.5.7). There is no live cache
// for epoch records — they are read-modify-written straight through the
// KV adapter, since epoch transitions are rare compared to blocks.
func (ci *ChainIndex) InsertEpochTransition(batch kv.Batch, epoch uint64, candidate model.EpochCandidate) error {
	key := dbutils.EpochKey(epoch)
	raw, err := ci.db.Get(dbutils.ColExtra, key)
	if err != nil {
		return err
	}
	var transitions *model.EpochTransitions
	if raw != nil {
		transitions, err = codec.DecodeEpochTransitions(raw)
		if err != nil {
			return err
		}
	} else {
		transitions = &model.EpochTransitions{}
	}
	transitions.AddCandidate(candidate)
	encoded, err := codec.EncodeEpochTransitions(transitions)
	if err != nil {
		return err
	}
	batch.Put(dbutils.ColExtra, key, encoded)
	return nil
}

// EpochTransitions iterates (epoch, candidate) pairs whose candidate is
// canonical — the canonical hash at candidate.BlockNumber equals
// candidate.BlockHash — or lies below the first available block (ancient,
// unique by construction). Iteration stops early if fn returns false.
func (ci *ChainIndex) EpochTransitions(fn func(epoch uint64, candidate model.EpochCandidate) (bool, error)) error {
	var firstNumber uint64
	if ci.firstBlockSet {
		firstDetails, err := ci.getDetails(ci.firstBlock)
		if err != nil {
			return err
		}
		if firstDetails != nil {
			firstNumber = firstDetails.Number
		}
	}

	var stop bool
	var iterErr error
	err := ci.db.IterPrefix(dbutils.ColExtra, dbutils.EpochKeyPrefix, func(k, v []byte) (bool, error) {
		if len(k) != len(dbutils.EpochKeyPrefix)+8 {
			return false, nil
		}
		epoch := dbutils.DecodeBlockNumber(k[len(dbutils.EpochKeyPrefix):])
		transitions, err := codec.DecodeEpochTransitions(v)
		if err != nil {
			return false, err
		}
		for _, cand := range transitions.Candidates {
			qualifies := cand.BlockNumber < firstNumber
			if !qualifies {
				canonHash, ok := ci.blockHash(cand.BlockNumber)
				qualifies = ok && canonHash == cand.BlockHash
			}
			if !qualifies {
				continue
			}
			cont, err := fn(epoch, cand)
			if err != nil {
				iterErr = err
				stop = true
				return false, nil
			}
			if !cont {
				stop = true
				return false, nil
			}
		}
		return !stop, nil
	})
	if err != nil {
		return err
	}
	return iterErr
}

// EpochTransitionFor walks ancestry from parentHash looking for the
// nearest recorded pending transition, supplementing spec.md's
// epoch_transitions iterator with the per-ancestor lookup a consensus
// engine needs when asked "what transition governs this parent" (see
// SPEC_FULL.md §9).
func (ci *ChainIndex) EpochTransitionFor(parentHash common.Hash) (*model.PendingEpochTransition, common.Hash, bool, error) {
	hash := parentHash
	for {
		pending, ok, err := ci.PendingTransition(hash)
		if err != nil {
			return nil, common.Hash{}, false, err
		}
		if ok {
			return pending, hash, true, nil
		}
		details, err := ci.getDetails(hash)
		if err != nil {
			return nil, common.Hash{}, false, err
		}
		if details == nil || hash == (common.Hash{}) {
			return nil, common.Hash{}, false, nil
		}
		if details.Parent == (common.Hash{}) {
			return nil, common.Hash{}, false, nil
		}
		hash = details.Parent
	}
}

// InsertPendingTransition stages an unapplied transition keyed by the
// block hash it governs. This core never garbage-collects these records
// (§9, Open Question): cleanup is left to a higher layer, "upon
// finality".
func (ci *ChainIndex) InsertPendingTransition(batch kv.Batch, hash common.Hash, p *model.PendingEpochTransition) error {
	encoded, err := codec.EncodePendingTransition(p)
	if err != nil {
		return err
	}
	batch.Put(dbutils.ColExtra, dbutils.PendingTransitionKey(hash), encoded)
	return nil
}

// PendingTransition reads the unapplied transition staged for hash, if any.
func (ci *ChainIndex) PendingTransition(hash common.Hash) (*model.PendingEpochTransition, bool, error) {
	raw, err := ci.db.Get(dbutils.ColExtra, dbutils.PendingTransitionKey(hash))
	if err != nil || raw == nil {
		return nil, false, err
	}
	p, err := codec.DecodePendingTransition(raw)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}
