// Package kv defines the opaque, ordered key/value adapter the chain
// index is built on (§4.1). Every collaborator — the chain index, the
// bloom index, the cache manager's callers — talks to storage only
// through this interface; the concrete backend (kv/lmdbkv, kv/memkv) is
// swappable without touching any of them.
package kv

import "errors"

// ErrClosed is the error for an operation on a closed Database. Neither
// backend in this repository (kv/memkv, kv/lmdbkv) returns it.
var ErrClosed = errors.New("kv: database closed")

// Column is the small enumeration of column families the adapter
// addresses. See common/dbutils for the stable column identifiers.
type Column = string

// Database is the opaque ordered KV store. Get returns (nil, nil) for a
// missing key — benign not-found per §7, never an error.
type Database interface {
	Get(col Column, key []byte) ([]byte, error)
	NewBatch() Batch
	// IterPrefix yields (key, value) pairs whose key begins with prefix,
	// in key order, until fn returns false or an error, or keys stop
	// matching the prefix. Keys beyond the prefix may be observed by fn
	// before it is given the chance to reject them — callers authoritative
	// on format must still compare, mirroring §4.1's "Keys beyond the
	// prefix may appear; consumers must stop on the first mismatch."
	IterPrefix(col Column, prefix []byte, fn func(k, v []byte) (bool, error)) error
	Close() error
}

// Batch is the sole atomicity unit: every Put/Delete queued against it
// becomes visible together, or not at all, when Write is called.
type Batch interface {
	Put(col Column, key, value []byte)
	Delete(col Column, key []byte)
	Write() error
}

// Decoder turns raw stored bytes into a cacheable value.
type Decoder func([]byte) (interface{}, error)

// ReadWithCache returns cache's value for key if present; otherwise it
// loads from db, decodes, stores into cache, and returns it. The second
// return is false only when the key is absent from both cache and db.
func ReadWithCache(db Database, col Column, cache *Cache, key []byte, decode Decoder) (interface{}, bool, error) {
	if v, ok := cache.Get(key); ok {
		return v, true, nil
	}
	raw, err := db.Get(col, key)
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	decoded, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	cache.Set(key, decoded)
	return decoded, true, nil
}

// ExistsWithCache reports presence without forcing a decode.
func ExistsWithCache(db Database, col Column, cache *Cache, key []byte) (bool, error) {
	if _, ok := cache.Get(key); ok {
		return true, nil
	}
	raw, err := db.Get(col, key)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}
