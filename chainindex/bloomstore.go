package chainindex

import (
	"github.com/ledgerwatch/chainindex/bloomindex"
	"github.com/ledgerwatch/chainindex/cachemgr"
	"github.com/ledgerwatch/chainindex/codec"
	"github.com/ledgerwatch/chainindex/common/dbutils"
	"github.com/ledgerwatch/chainindex/kv"
)

// liveBloomStore implements bloomindex.Store directly against the live
// blocks_blooms cache and a KV batch. Bloom writes are not staged through
// the pending overlay (§4.5.5 only names best_block/hashes/details/
// tx-addresses there): a Branch block never touches the bloom index at
// all, so there is nothing to roll back, and CanonChain/reorg writes are
// only ever reachable once the canonical range they cover has itself
// been committed.
type liveBloomStore struct {
	ci    *ChainIndex
	batch kv.Batch
}

func (s *liveBloomStore) GroupAt(pos bloomindex.Position) (*bloomindex.Group, error) {
	key := dbutils.BloomGroupKey(pos.Level, pos.Index)
	v, ok, err := kv.ReadWithCache(s.ci.db, dbutils.ColExtra, s.ci.blooms, key, func(raw []byte) (interface{}, error) {
		return codec.DecodeBloomGroup(raw)
	})
	if err != nil || !ok {
		return nil, err
	}
	s.ci.noteUsed(cachemgr.KindBlocksBlooms, key, 16*256)
	return v.(*bloomindex.Group), nil
}

func (s *liveBloomStore) PutGroup(pos bloomindex.Position, g *bloomindex.Group) {
	key := dbutils.BloomGroupKey(pos.Level, pos.Index)
	encoded, err := codec.EncodeBloomGroup(g)
	mustInvariant(err == nil, "chainindex: bloom group encode failed: %v", err)
	s.batch.Put(dbutils.ColExtra, key, encoded)
	s.ci.blooms.Set(key, g)
	s.ci.noteUsed(cachemgr.KindBlocksBlooms, key, 16*256)
}
