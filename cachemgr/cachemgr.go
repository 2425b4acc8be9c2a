// Package cachemgr tracks approximate memory usage of the chain index's
// live caches and decides when to evict, mirroring §4.5 / §7's
// preferred-size/max-size cache budget. It holds no cache contents itself
// — chainindex's kv.Cache maps are the source of truth — cachemgr only
// decides WHICH keys are least recently used and should be dropped.
package cachemgr

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Kind identifies which live cache an entry belongs to, mirroring the
// seven column families of §4.5.1.
type Kind uint8

const (
	KindBlockHeader Kind = iota
	KindBlockBody
	KindBlockDetails
	KindBlockHashes
	KindTransactionAddresses
	KindBlocksBlooms
	KindBlockReceipts
)

func (k Kind) String() string {
	switch k {
	case KindBlockHeader:
		return "block_header"
	case KindBlockBody:
		return "block_body"
	case KindBlockDetails:
		return "block_details"
	case KindBlockHashes:
		return "block_hashes"
	case KindTransactionAddresses:
		return "transaction_addresses"
	case KindBlocksBlooms:
		return "blocks_blooms"
	case KindBlockReceipts:
		return "block_receipts"
	default:
		return "unknown"
	}
}

// Tag identifies one entry across all caches: which Kind of cache it
// lives in, and its key within that cache (the raw KV key bytes).
type Tag struct {
	Kind Kind
	Key  string
}

// EvictFunc removes the entry identified by tag from its owning live
// cache. The chain index supplies this, closing over its kv.Cache maps.
type EvictFunc func(tag Tag)

// Manager tracks recency of use across every cache kind in one LRU and
// evicts the coldest entries once total estimated bytes exceeds a budget.
// Implemented over hashicorp/golang-lru rather than a hand-rolled linked
// list: the teacher's own dependency set already includes it, and an
// LRU-with-eviction-callback is exactly what golang-lru.Cache provides.
//
// golang-lru.Cache is internally mutex-protected, but sizes/totalBytes are
// this package's own bookkeeping and are not — §5 requires "the cache
// manager behind a mutex" precisely because chainindex calls NoteUsed from
// every read path, including the goroutines Logs fans out across (§9), so
// mu guards every access to sizes/totalBytes.
type Manager struct {
	mu         sync.Mutex
	lru        *lru.Cache
	sizes      map[Tag]uintptr
	totalBytes uintptr
	prefSize   uintptr
	maxSize    uintptr
	evict      EvictFunc
}

// NewManager builds a Manager with no fixed capacity of its own — golang-lru
// requires a capacity so it is sized generously large (effectively
// unbounded for entry COUNT); actual eviction is driven by CollectGarbage
// comparing totalBytes against prefSize/maxSize, not by the LRU's own cap.
func NewManager(prefSize, maxSize uintptr, evict EvictFunc) (*Manager, error) {
	m := &Manager{
		sizes:    make(map[Tag]uintptr),
		prefSize: prefSize,
		maxSize:  maxSize,
		evict:    evict,
	}
	l, err := lru.NewWithEvict(1<<20, m.onEvicted)
	if err != nil {
		return nil, err
	}
	m.lru = l
	return m, nil
}

// onEvicted fires on every removal golang-lru makes, including Remove.
// Tags that Forget or CollectGarbage already untracked are skipped, so
// only golang-lru's own capacity eviction (a backstop, not the primary
// path) reaches evict from here.
func (m *Manager) onEvicted(key, _ interface{}) {
	tag := key.(Tag)
	m.mu.Lock()
	_, tracked := m.sizes[tag]
	m.forget(tag)
	m.mu.Unlock()
	if tracked {
		m.evict(tag)
	}
}

// forget removes tag's size accounting. Callers must hold m.mu.
func (m *Manager) forget(tag Tag) {
	if sz, ok := m.sizes[tag]; ok {
		m.totalBytes -= sz
		delete(m.sizes, tag)
	}
}

// NoteUsed records that tag now holds an entry of approximately size
// bytes, marking it most-recently-used. Call on every cache hit or
// insert (§4.5, "cache manager ... a recency structure").
func (m *Manager) NoteUsed(tag Tag, size uintptr) {
	m.mu.Lock()
	if old, ok := m.sizes[tag]; ok {
		m.totalBytes -= old
	}
	m.sizes[tag] = size
	m.totalBytes += size
	m.mu.Unlock()
	m.lru.Add(tag, struct{}{})
}

// Forget removes tag's accounting without evicting via the callback —
// used when the owning cache already dropped the entry itself (e.g. a
// pending overlay commit replacing a cached value).
func (m *Manager) Forget(tag Tag) {
	m.mu.Lock()
	m.forget(tag)
	m.mu.Unlock()
	m.lru.Remove(tag)
}

// TotalBytes returns the current estimated footprint across all caches.
func (m *Manager) TotalBytes() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes
}

// CollectGarbage evicts least-recently-used entries one at a time, via
// evict, until total estimated bytes is at or below prefSize. Callers
// invoke it once OverBudget reports totalBytes > maxSize.
func (m *Manager) CollectGarbage() {
	for {
		m.mu.Lock()
		over := m.totalBytes > m.prefSize
		m.mu.Unlock()
		if !over {
			return
		}
		key, _, ok := m.lru.GetOldest()
		if !ok {
			return
		}
		tag := key.(Tag)
		m.mu.Lock()
		m.forget(tag)
		m.mu.Unlock()
		m.lru.Remove(tag)
		m.evict(tag)
	}
}

// OverBudget reports whether the tracked footprint has crossed the hard
// ceiling and a garbage collection pass should run.
func (m *Manager) OverBudget() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes > m.maxSize
}
