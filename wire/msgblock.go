// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/tenebrium/tenebriumd/util/chainhash"
)

// MaxTxPerBlock is the maximum number of transactions a serialized block may
// claim. It exists purely as a decode-time allocation guard.
const MaxTxPerBlock = 1 << 20

// MsgBlock implements a full block: a header plus the ordered transaction
// list. Transactions[0] is the coinbase.
type MsgBlock struct {
	Header       BlockHeader
	Transactions []*MsgTx
}

// NewMsgBlock returns a new block with the provided header and no
// transactions.
func NewMsgBlock(header *BlockHeader) *MsgBlock {
	return &MsgBlock{
		Header:       *header,
		Transactions: make([]*MsgTx, 0),
	}
}

// AddTransaction adds a transaction to the block.
func (msg *MsgBlock) AddTransaction(tx *MsgTx) {
	msg.Transactions = append(msg.Transactions, tx)
}

// BlockHash computes the block identifier from the header.
func (msg *MsgBlock) BlockHash() chainhash.Hash {
	return msg.Header.BlockHash()
}

// TxIDs returns the transaction ids of all transactions in the block, in
// block order, under the given txid version.
func (msg *MsgBlock) TxIDs(version TxIDVersion) ([]chainhash.Hash, error) {
	ids := make([]chainhash.Hash, len(msg.Transactions))
	for i, tx := range msg.Transactions {
		id, err := tx.TxID(version)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// SerializeV2 encodes the block as the 80-byte header followed by a u64
// little-endian transaction count and each transaction's v2 canonical bytes.
func (msg *MsgBlock) SerializeV2() ([]byte, error) {
	buf := msg.Header.Serialize()
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(msg.Transactions)))
	for _, tx := range msg.Transactions {
		serialized, err := tx.CanonicalBytesV2()
		if err != nil {
			return nil, err
		}
		buf = append(buf, serialized...)
	}
	return buf, nil
}

// DeserializeV2 decodes a v2-serialized block into the receiver. The whole of
// serialized must be consumed.
func (msg *MsgBlock) DeserializeV2(serialized []byte) error {
	if len(serialized) < BlockHeaderPayload+8 {
		return txRuleError(ErrMalformedTx, "serialized block is truncated")
	}
	var header BlockHeader
	if err := header.Deserialize(serialized[:BlockHeaderPayload]); err != nil {
		return err
	}
	r := &sliceReader{buf: serialized, offset: BlockHeaderPayload}
	txCount, err := r.readUint64()
	if err != nil {
		return err
	}
	if txCount > MaxTxPerBlock {
		str := fmt.Sprintf("serialized block claims %d transactions - max %d",
			txCount, MaxTxPerBlock)
		return txRuleError(ErrMalformedTx, str)
	}
	transactions := make([]*MsgTx, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		var tx MsgTx
		if err := tx.deserializeV2From(r); err != nil {
			return err
		}
		transactions = append(transactions, &tx)
	}
	if r.remaining() != 0 {
		str := fmt.Sprintf("serialized block has %d trailing bytes", r.remaining())
		return txRuleError(ErrMalformedTx, str)
	}
	msg.Header = header
	msg.Transactions = transactions
	return nil
}
