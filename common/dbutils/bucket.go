// Package dbutils names the KV columns and key shapes the chain index
// reads and writes. Column identity is stable: changing these strings
// changes the on-disk layout of every existing store.
package dbutils

import "encoding/binary"

// Columns. ColState is reserved for the external state/execution layer
// (account and storage trie data) — this index never reads or writes it,
// but it is named here because §6 of the spec fixes the column
// enumeration as a stable, shared contract between collaborators.
const (
	ColHeaders = "h" // num(8) + hash(32) -> compressed header
	ColBodies  = "b" // num(8) + hash(32) -> compressed body
	ColExtra   = "e" // see key shapes below
	ColState   = "s" // reserved; owned by the external state layer
)

// Extras key shapes (§6). Each has a distinct, non-overlapping prefix or
// fixed length so a single column can hold all of them.
const (
	keyBest    = "best"
	keyFirst   = "first"
	keyAncient = "ancient"
)

// EpochKeyPrefix precedes an 8-byte big-endian epoch number.
var EpochKeyPrefix = []byte("epoch-")

// PendingTransitionPrefix precedes a 32-byte block hash.
var PendingTransitionPrefix = []byte("pending-epoch-")

// bloomGroupKeyPrefix precedes a 1-byte level and an 8-byte big-endian
// group index; distinguishes bloom-group keys from every other shape
// sharing the extras column.
var bloomGroupKeyPrefix = []byte("bloom-")

// Single-byte discriminants for the three record types that are all
// naturally keyed by a bare 32-byte hash (BlockDetails, BlockReceipts,
// TransactionAddress). Without these, BlockDetailsKey/ReceiptsKey/
// TxAddressKey for the same hash would all collide on the identical
// hash[:] key within ColExtra. Mirrors go-ethereum rawdb's own
// single-byte key prefixes (headerPrefix, bodyPrefix, ...) for exactly
// this reason.
const (
	detailsPrefix = 'd'
	receiptsPrefix = 'r'
	txLookupPrefix = 'l'
)

func EncodeBlockNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

func DecodeBlockNumber(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// HeaderBodyKey is the shared key shape for the headers and bodies
// columns: num(8) + hash(32), so both columns can be range-scanned by
// number and a stale hash at a number is trivially distinguishable.
func HeaderBodyKey(number uint64, hash [32]byte) []byte {
	key := make([]byte, 8+32)
	binary.BigEndian.PutUint64(key[:8], number)
	copy(key[8:], hash[:])
	return key
}

func BlockDetailsKey(hash [32]byte) []byte { return prefixedHashKey(detailsPrefix, hash) }

func CanonicalKey(number uint64) []byte { return EncodeBlockNumber(number) }

func TxAddressKey(txHash [32]byte) []byte { return prefixedHashKey(txLookupPrefix, txHash) }

func ReceiptsKey(hash [32]byte) []byte { return prefixedHashKey(receiptsPrefix, hash) }

func prefixedHashKey(prefix byte, hash [32]byte) []byte {
	key := make([]byte, 1+32)
	key[0] = prefix
	copy(key[1:], hash[:])
	return key
}

func BestKey() []byte { return []byte(keyBest) }

func FirstKey() []byte { return []byte(keyFirst) }

func AncientKey() []byte { return []byte(keyAncient) }

func EpochKey(epoch uint64) []byte {
	key := make([]byte, len(EpochKeyPrefix)+8)
	copy(key, EpochKeyPrefix)
	binary.BigEndian.PutUint64(key[len(EpochKeyPrefix):], epoch)
	return key
}

func PendingTransitionKey(hash [32]byte) []byte {
	key := make([]byte, len(PendingTransitionPrefix)+32)
	copy(key, PendingTransitionPrefix)
	copy(key[len(PendingTransitionPrefix):], hash[:])
	return key
}

// BloomGroupKey packs a (level, index) bloom-group position into a single
// extras-column key.
func BloomGroupKey(level uint8, index uint64) []byte {
	key := make([]byte, len(bloomGroupKeyPrefix)+1+8)
	n := copy(key, bloomGroupKeyPrefix)
	key[n] = level
	binary.BigEndian.PutUint64(key[n+1:], index)
	return key
}
