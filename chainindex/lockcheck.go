// +build debugchainlock

package chainindex

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// lockRanks tracks, per goroutine, the rank of the highest lock it
// currently holds (§9: "encode it as comments plus a debug-only
// acquisition-order checker"). Compiled only under -tags debugchainlock;
// release builds pay nothing for it.
var (
	lockRanksMu sync.Mutex
	lockRanks   = make(map[int64]int)
)

func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	i := bytes.IndexByte(buf, ' ')
	id, _ := strconv.ParseInt(string(buf[:i]), 10, 64)
	return id
}

// checkLock panics if rank is lower than a rank already held by this
// goroutine — a violation of the declared lock order in types.go.
func (ci *ChainIndex) checkLock(rank int) {
	gid := goroutineID()
	lockRanksMu.Lock()
	defer lockRanksMu.Unlock()
	if held, ok := lockRanks[gid]; ok && rank < held {
		panic("chainindex: lock order violation: acquiring rank " +
			strconv.Itoa(rank) + " while holding rank " + strconv.Itoa(held))
	}
	lockRanks[gid] = rank
}

// releaseLock clears this goroutine's held-rank marker once it has
// released every lock it took (callers invoke this after the last
// Unlock in a given call chain).
func (ci *ChainIndex) releaseLock() {
	gid := goroutineID()
	lockRanksMu.Lock()
	defer lockRanksMu.Unlock()
	delete(lockRanks, gid)
}
