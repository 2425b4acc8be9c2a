// Package memkv is the in-memory kv.Database used by chain-index tests,
// the same role ethdb.NewMemDatabase() plays for the teacher: a backend
// with identical semantics to the on-disk one but no filesystem, atomic
// batches applied in place while holding the database's write lock.
package memkv

import (
	"sort"
	"sync"

	"github.com/ledgerwatch/chainindex/kv"
)

type Database struct {
	mu   sync.RWMutex
	cols map[kv.Column]map[string][]byte
}

func New() *Database {
	return &Database{cols: make(map[kv.Column]map[string][]byte)}
}

func (d *Database) Get(col kv.Column, key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.cols[col][string(key)]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (d *Database) IterPrefix(col kv.Column, prefix []byte, fn func(k, v []byte) (bool, error)) error {
	d.mu.RLock()
	keys := make([]string, 0, len(d.cols[col]))
	for k := range d.cols[col] {
		keys = append(keys, k)
	}
	vals := d.cols[col]
	d.mu.RUnlock()

	sort.Strings(keys)
	p := string(prefix)
	for _, k := range keys {
		if len(k) < len(p) || k[:len(p)] != p {
			continue
		}
		cont, err := fn([]byte(k), vals[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (d *Database) NewBatch() kv.Batch {
	return &batch{db: d}
}

func (d *Database) Close() error { return nil }

type op struct {
	col    kv.Column
	key    []byte
	value  []byte
	delete bool
}

type batch struct {
	db  *Database
	ops []op
}

func (b *batch) Put(col kv.Column, key, value []byte) {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	b.ops = append(b.ops, op{col: col, key: k, value: v})
}

func (b *batch) Delete(col kv.Column, key []byte) {
	k := append([]byte(nil), key...)
	b.ops = append(b.ops, op{col: col, key: k, delete: true})
}

func (b *batch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, o := range b.ops {
		bucket, ok := b.db.cols[o.col]
		if !ok {
			bucket = make(map[string][]byte)
			b.db.cols[o.col] = bucket
		}
		if o.delete {
			delete(bucket, string(o.key))
			continue
		}
		bucket[string(o.key)] = o.value
	}
	return nil
}
