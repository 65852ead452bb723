// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

// genesisMerkleRoot is the merkle root committed to by the genesis header.
// The genesis block carries no transactions; the root is a fixed constant.
var genesisMerkleRoot = chainhash.Hash{
	0xa9, 0x79, 0x02, 0x7b, 0x27, 0xf1, 0xd8, 0xc2,
	0x24, 0xc9, 0xba, 0xed, 0x9d, 0x5d, 0x19, 0xe4,
	0x9b, 0x44, 0xae, 0xe4, 0x03, 0x08, 0xa8, 0x24,
	0xf5, 0xd0, 0x3a, 0xad, 0x12, 0xcd, 0xb3, 0x3a,
}

// genesisHeader is the first header of the chain. Its previous block hash is
// the zero hash.
var genesisHeader = wire.BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.ZeroHash,
	MerkleRoot: genesisMerkleRoot,
	Timestamp:  1769936400, // 2026-02-01 09:00:00 +0000 UTC
	Bits:       0x207fffff,
	Nonce:      2,
}
