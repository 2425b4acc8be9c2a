package chainindex

import "github.com/c2h5oh/datasize"

// Config is the tunable surface of §6: the two cache-manager bounds. Bloom
// parameters are compile-time constants in bloomindex and are not
// configurable — they must match across every reader/writer of a store.
type Config struct {
	PrefCacheSize datasize.ByteSize
	MaxCacheSize  datasize.ByteSize
}

// DefaultConfig mirrors the modest defaults the teacher's own stagedsync
// stages ship (tens of megabytes, not gigabytes, for index-side caches).
func DefaultConfig() Config {
	return Config{
		PrefCacheSize: 64 * datasize.MB,
		MaxCacheSize:  128 * datasize.MB,
	}
}
