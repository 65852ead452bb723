// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/tenebrium/tenebriumd/util/chainhash"
)

// BlockHeaderPayload is the number of bytes a serialized block header
// occupies: Version 4 bytes + PrevBlock and MerkleRoot hashes + Timestamp 4
// bytes + Bits 4 bytes + Nonce 4 bytes.
const BlockHeaderPayload = 16 + 2*chainhash.HashSize

// BlockHeader defines information about a block. Timestamp is kept as raw
// unix seconds rather than time.Time so that the 80-byte serialized form is
// byte-exact.
type BlockHeader struct {
	// Version of the block.
	Version int32

	// Hash of the previous block header in the chain.
	PrevBlock chainhash.Hash

	// Merkle tree root over the block's transaction ids.
	MerkleRoot chainhash.Hash

	// Time the block was created, unix seconds.
	Timestamp uint32

	// Difficulty target for the block, in compact form.
	Bits uint32

	// Nonce used to generate the block.
	Nonce uint32
}

// Serialize returns the canonical 80-byte little-endian encoding of the
// header: version | prev | merkle | time | bits | nonce.
func (h *BlockHeader) Serialize() []byte {
	buf := make([]byte, 0, BlockHeaderPayload)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.Version))
	buf = append(buf, h.PrevBlock[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, h.Bits)
	buf = binary.LittleEndian.AppendUint32(buf, h.Nonce)
	return buf
}

// Deserialize decodes an 80-byte canonical header encoding into the receiver.
func (h *BlockHeader) Deserialize(serialized []byte) error {
	if len(serialized) != BlockHeaderPayload {
		str := fmt.Sprintf("serialized block header is %d bytes - want %d",
			len(serialized), BlockHeaderPayload)
		return txRuleError(ErrMalformedTx, str)
	}
	h.Version = int32(binary.LittleEndian.Uint32(serialized[0:4]))
	copy(h.PrevBlock[:], serialized[4:36])
	copy(h.MerkleRoot[:], serialized[36:68])
	h.Timestamp = binary.LittleEndian.Uint32(serialized[68:72])
	h.Bits = binary.LittleEndian.Uint32(serialized[72:76])
	h.Nonce = binary.LittleEndian.Uint32(serialized[76:80])
	return nil
}

// BlockHash computes the block identifier: the double sha256 of the 80-byte
// serialized header.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	return chainhash.DoubleHashH(h.Serialize())
}

// NewBlockHeader returns a new BlockHeader using the provided fields.
func NewBlockHeader(version int32, prevBlock, merkleRoot *chainhash.Hash,
	timestamp, bits, nonce uint32) *BlockHeader {

	return &BlockHeader{
		Version:    version,
		PrevBlock:  *prevBlock,
		MerkleRoot: *merkleRoot,
		Timestamp:  timestamp,
		Bits:       bits,
		Nonce:      nonce,
	}
}
