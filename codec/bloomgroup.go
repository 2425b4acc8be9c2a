package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ledgerwatch/chainindex/bloomindex"
)

func EncodeBloomGroup(g *bloomindex.Group) ([]byte, error) {
	list := make([][]byte, len(g))
	for i, b := range g {
		list[i] = b.Bytes()
	}
	return rlp.EncodeToBytes(list)
}

func DecodeBloomGroup(b []byte) (*bloomindex.Group, error) {
	var list [][]byte
	if err := rlp.DecodeBytes(b, &list); err != nil {
		return nil, err
	}
	if len(list) != bloomindex.ElementsPerIndex {
		return nil, fmt.Errorf("codec: bloom group has %d slots, want %d", len(list), bloomindex.ElementsPerIndex)
	}
	var g bloomindex.Group
	for i, raw := range list {
		g[i].SetBytes(raw)
	}
	return &g, nil
}
