package chainindex

import (
	"runtime"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogEntry pairs a log with its position within its enclosing
// transaction — go-ethereum's types.Log carries the block-wide Index and
// the TxIndex but not a per-transaction log index, and §4.5.8 calls for
// "transaction_log_index" alongside the other two.
type LogEntry struct {
	Log                 *types.Log
	TransactionLogIndex uint
}

type blockWithNumber struct {
	hash   common.Hash
	number uint64
}

// Logs implements §4.5.8: processes blocks in descending number order,
// fetches receipts and transaction hashes per block, assigns log_index /
// transaction_index / transaction_log_index consistent with the
// original (not reversed) positions, applies predicate, and returns at
// most limit entries (every matching entry when limit is 0). Unknown blocks are skipped rather than treated as
// an error — the predicate and limit govern correctness, not presence.
//
// Per-block work is independent and pure, so it fans out across bounded
// chunks (§5, §9 "Log iteration uses a fan-out over chunks") sized by
// runtime.NumCPU(); chunks are then combined strictly in descending
// order so the result and the limit cutoff are deterministic regardless
// of how work was scheduled.
func (ci *ChainIndex) Logs(blocks []common.Hash, predicate func(*types.Log) bool, limit int) ([]*LogEntry, error) {
	ordered := make([]blockWithNumber, 0, len(blocks))
	for _, h := range blocks {
		d, err := ci.getDetails(h)
		if err != nil {
			return nil, err
		}
		if d == nil {
			continue
		}
		ordered = append(ordered, blockWithNumber{hash: h, number: d.Number})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].number > ordered[j].number })

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	chunkSize := (len(ordered) + workers - 1) / workers
	if chunkSize == 0 {
		return nil, nil
	}
	numChunks := (len(ordered) + chunkSize - 1) / chunkSize

	results := make([][]*LogEntry, numChunks)
	errs := make([]error, numChunks)
	var wg sync.WaitGroup
	for c := 0; c < numChunks; c++ {
		start := c * chunkSize
		end := start + chunkSize
		if end > len(ordered) {
			end = len(ordered)
		}
		wg.Add(1)
		go func(idx, start, end int) {
			defer wg.Done()
			entries, err := ci.logsForChunk(ordered[start:end])
			results[idx] = entries
			errs[idx] = err
		}(c, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make([]*LogEntry, 0, limit)
	for _, chunk := range results {
		for _, entry := range chunk {
			if !predicate(entry.Log) {
				continue
			}
			out = append(out, entry)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (ci *ChainIndex) logsForChunk(blocks []blockWithNumber) ([]*LogEntry, error) {
	var out []*LogEntry
	for _, b := range blocks {
		body, err := ci.getBody(b.hash, b.number)
		if err != nil {
			return nil, err
		}
		receipts, err := ci.getReceipts(b.hash)
		if err != nil {
			return nil, err
		}
		mustInvariant(body != nil && receipts != nil, "chainindex: block %x missing body or receipts during log scan", b.hash)
		mustInvariant(len(receipts) == len(body.Transactions),
			"chainindex: block %x receipts/transactions length mismatch (%d vs %d)", b.hash, len(receipts), len(body.Transactions))

		var blockLogIndex uint
		for txIndex, tx := range body.Transactions {
			receipt := receipts[txIndex]
			for txLogIndex, l := range receipt.Logs {
				logCopy := *l
				logCopy.BlockHash = b.hash
				logCopy.BlockNumber = b.number
				logCopy.TxHash = tx.Hash()
				logCopy.TxIndex = uint(txIndex)
				logCopy.Index = blockLogIndex
				out = append(out, &LogEntry{Log: &logCopy, TransactionLogIndex: uint(txLogIndex)})
				blockLogIndex++
			}
		}
	}
	return out, nil
}
