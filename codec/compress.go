package codec

import (
	"sync"

	"github.com/valyala/gozstd"
)

// compressionLevel is fixed rather than configurable: the spec requires
// the dictionary (and, by extension, the whole compression scheme) to be
// identical across every installation of a store.
const compressionLevel = 9

var (
	cdictOnce sync.Once
	cdict     *gozstd.CDict
	ddict     *gozstd.DDict
)

func dicts() (*gozstd.CDict, *gozstd.DDict) {
	cdictOnce.Do(func() {
		var err error
		cdict, err = gozstd.NewCDictLevel(blockDictionary, compressionLevel)
		if err != nil {
			panic("codec: invalid block dictionary: " + err.Error())
		}
		ddict, err = gozstd.NewDDict(blockDictionary)
		if err != nil {
			panic("codec: invalid block dictionary: " + err.Error())
		}
	})
	return cdict, ddict
}

// CompressBlock compresses header or body bytes against the fixed block
// dictionary. Compression is deterministic: the same input always
// produces the same output.
func CompressBlock(src []byte) []byte {
	cd, _ := dicts()
	return gozstd.CompressDict(nil, src, cd)
}

// DecompressBlock reverses CompressBlock. It is the caller's
// responsibility to treat a decode failure as corruption (§7): this
// layer never silently returns partial data.
func DecompressBlock(src []byte) ([]byte, error) {
	_, dd := dicts()
	return gozstd.DecompressDict(nil, src, dd)
}
