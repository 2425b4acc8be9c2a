package codec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/chainindex/bloomindex"
	"github.com/ledgerwatch/chainindex/model"
)

func TestBlockCompressionRoundTrip(t *testing.T) {
	h := &types.Header{
		Number:     big.NewInt(42),
		ParentHash: common.HexToHash("0xaa"),
		Difficulty: big.NewInt(131072),
		Time:       1600000000,
		Extra:      []byte("hello chain index"),
	}
	stored, err := EncodeHeader(h)
	require.NoError(t, err)

	got, err := DecodeHeader(stored)
	require.NoError(t, err)
	require.Equal(t, h.Hash(), got.Hash())
}

func TestBlockDetailsRoundTrip(t *testing.T) {
	d := &model.BlockDetails{
		Number:          7,
		TotalDifficulty: new(uint256.Int).SetUint64(999999999999),
		Parent:          common.HexToHash("0x01"),
		Children:        []common.Hash{common.HexToHash("0x02"), common.HexToHash("0x03")},
	}
	b, err := EncodeBlockDetails(d)
	require.NoError(t, err)
	got, err := DecodeBlockDetails(b)
	require.NoError(t, err)
	require.Equal(t, d.Number, got.Number)
	require.True(t, d.TotalDifficulty.Eq(got.TotalDifficulty))
	require.Equal(t, d.Parent, got.Parent)
	require.Equal(t, d.Children, got.Children)
}

func TestTransactionAddressRoundTrip(t *testing.T) {
	a := &model.TransactionAddress{BlockHash: common.HexToHash("0xbeef"), Index: 3}
	b, err := EncodeTransactionAddress(a)
	require.NoError(t, err)
	got, err := DecodeTransactionAddress(b)
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestBloomGroupRoundTrip(t *testing.T) {
	var g bloomindex.Group
	g[0] = types.BytesToBloom([]byte("some log data"))
	g[15] = types.BytesToBloom([]byte("other log data"))
	b, err := EncodeBloomGroup(&g)
	require.NoError(t, err)
	got, err := DecodeBloomGroup(b)
	require.NoError(t, err)
	require.Equal(t, g, *got)
}

func TestEpochTransitionsRoundTrip(t *testing.T) {
	e := &model.EpochTransitions{Candidates: []model.EpochCandidate{
		{BlockHash: common.HexToHash("0x1"), BlockNumber: 100, Proof: []byte{1, 2, 3}},
		{BlockHash: common.HexToHash("0x2"), BlockNumber: 100, Proof: []byte{4, 5}},
	}}
	b, err := EncodeEpochTransitions(e)
	require.NoError(t, err)
	got, err := DecodeEpochTransitions(b)
	require.NoError(t, err)
	require.Equal(t, e, got)
}
