// Package lmdbkv is the on-disk kv.Database backend: an LMDB environment
// (github.com/ledgerwatch/lmdb-go/lmdb) with one named sub-database per
// column, fronted by a VictoriaMetrics/fastcache byte cache of compressed
// header/body payloads so repeated ancestry walks don't pay an LMDB
// transaction per hop. This mirrors the teacher's own choice of LMDB as
// the primary store (common/dbutils.BucketsConfigs, ethdb.NewMemDatabase's
// default branch).
package lmdbkv

import (
	"github.com/VictoriaMetrics/fastcache"
	"github.com/ledgerwatch/lmdb-go/lmdb"

	"github.com/ledgerwatch/chainindex/common/dbutils"
	"github.com/ledgerwatch/chainindex/kv"
)

// byteCacheSize bounds the raw-bytes front cache; it is independent of,
// and much smaller than, the typed caches the cache manager governs.
const byteCacheSize = 64 * 1024 * 1024

var columns = []string{dbutils.ColHeaders, dbutils.ColBodies, dbutils.ColExtra, dbutils.ColState}

type Database struct {
	env   *lmdb.Env
	dbis  map[kv.Column]lmdb.DBI
	bytes *fastcache.Cache
}

// Open creates or opens an LMDB environment rooted at path with one
// sub-database per column. mapSize is the LMDB map-size ceiling in
// bytes.
func Open(path string, mapSize int64) (*Database, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, err
	}
	if err := env.SetMaxDBs(len(columns)); err != nil {
		return nil, err
	}
	if err := env.SetMapSize(mapSize); err != nil {
		return nil, err
	}
	if err := env.Open(path, 0, 0644); err != nil {
		return nil, err
	}

	dbis := make(map[kv.Column]lmdb.DBI, len(columns))
	err = env.Update(func(txn *lmdb.Txn) error {
		for _, col := range columns {
			dbi, err := txn.CreateDBI(col)
			if err != nil {
				return err
			}
			dbis[col] = dbi
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, err
	}

	return &Database{
		env:   env,
		dbis:  dbis,
		bytes: fastcache.New(byteCacheSize),
	}, nil
}

func cacheKey(col kv.Column, key []byte) []byte {
	out := make([]byte, len(col)+len(key))
	n := copy(out, col)
	copy(out[n:], key)
	return out
}

func (d *Database) Get(col kv.Column, key []byte) ([]byte, error) {
	if cached, ok := d.bytes.HasGet(nil, cacheKey(col, key)); ok {
		return cached, nil
	}

	var out []byte
	err := d.env.View(func(txn *lmdb.Txn) error {
		txn.RawRead = true
		v, err := txn.Get(d.dbis[col], key)
		if lmdb.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil && (col == dbutils.ColHeaders || col == dbutils.ColBodies) {
		d.bytes.Set(cacheKey(col, key), out)
	}
	return out, nil
}

func (d *Database) IterPrefix(col kv.Column, prefix []byte, fn func(k, v []byte) (bool, error)) error {
	return d.env.View(func(txn *lmdb.Txn) error {
		cur, err := txn.OpenCursor(d.dbis[col])
		if err != nil {
			return err
		}
		defer cur.Close()

		k, v, err := cur.Get(prefix, nil, lmdb.SetRange)
		for ; err == nil; k, v, err = cur.Get(nil, nil, lmdb.Next) {
			if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
				break
			}
			cont, ferr := fn(append([]byte(nil), k...), append([]byte(nil), v...))
			if ferr != nil {
				return ferr
			}
			if !cont {
				break
			}
		}
		if lmdb.IsNotFound(err) {
			return nil
		}
		return err
	})
}

func (d *Database) NewBatch() kv.Batch {
	return &batch{db: d}
}

func (d *Database) Close() error {
	d.env.Close()
	return nil
}

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
	b.ops = append(b.ops, op{col: col, key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *batch) Delete(col kv.Column, key []byte) {
	b.ops = append(b.ops, op{col: col, key: append([]byte(nil), key...), delete: true})
}

func (b *batch) Write() error {
	err := b.db.env.Update(func(txn *lmdb.Txn) error {
		for _, o := range b.ops {
			dbi := b.db.dbis[o.col]
			if o.delete {
				if err := txn.Del(dbi, o.key, nil); err != nil && !lmdb.IsNotFound(err) {
					return err
				}
				continue
			}
			if err := txn.Put(dbi, o.key, o.value, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, o := range b.ops {
		ck := cacheKey(o.col, o.key)
		b.db.bytes.Del(ck)
	}
	return nil
}
