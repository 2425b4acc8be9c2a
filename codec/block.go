package codec

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// EncodeHeader/EncodeBody RLP-encode then compress against the shared
// block dictionary (§4.2: "Compression is applied at put time to header
// and body columns").
func EncodeHeader(h *types.Header) ([]byte, error) {
	raw, err := rlp.EncodeToBytes(h)
	if err != nil {
		return nil, err
	}
	return CompressBlock(raw), nil
}

func DecodeHeader(stored []byte) (*types.Header, error) {
	raw, err := DecompressBlock(stored)
	if err != nil {
		return nil, err
	}
	var h types.Header
	if err := rlp.DecodeBytes(raw, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// bodyRLP wraps the transaction list the way §6 specifies: "The body
// record is a one-element list wrapping the transactions sub-record."
type bodyRLP struct {
	Transactions types.Transactions
}

func EncodeBody(b *types.Body) ([]byte, error) {
	raw, err := rlp.EncodeToBytes(&bodyRLP{Transactions: b.Transactions})
	if err != nil {
		return nil, err
	}
	return CompressBlock(raw), nil
}

func DecodeBody(stored []byte) (*types.Body, error) {
	raw, err := DecompressBlock(stored)
	if err != nil {
		return nil, err
	}
	var w bodyRLP
	if err := rlp.DecodeBytes(raw, &w); err != nil {
		return nil, err
	}
	return &types.Body{Transactions: w.Transactions}, nil
}

// EncodeReceipts/DecodeReceipts use the storage form (drops fields
// recoverable from the block itself), matching the teacher's own
// migrations/receipts.go and eth/stagedsync/stage_log_index.go, which
// both decode receipts as []*types.ReceiptForStorage.
func EncodeReceipts(receipts []*types.ReceiptForStorage) ([]byte, error) {
	return rlp.EncodeToBytes(receipts)
}

func DecodeReceipts(b []byte) ([]*types.ReceiptForStorage, error) {
	var receipts []*types.ReceiptForStorage
	if err := rlp.DecodeBytes(b, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}
