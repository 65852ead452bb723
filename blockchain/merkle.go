// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/tenebrium/tenebriumd/util/chainhash"
)

// hashMerkleBranches takes two hashes, treated as the left and right tree
// nodes, and returns the hash of their concatenation. This is a helper
// function used to aid in the generation of a merkle tree.
func hashMerkleBranches(left, right *chainhash.Hash) chainhash.Hash {
	// Concatenate the left and right nodes.
	var hash [chainhash.HashSize * 2]byte
	copy(hash[:chainhash.HashSize], left[:])
	copy(hash[chainhash.HashSize:], right[:])

	return chainhash.DoubleHashH(hash[:])
}

// BuildMerkleRoot computes the merkle root over the given transaction ids.
// The ids are paired level by level, hashing left||right with double sha256;
// a level with an odd number of nodes duplicates its last node. An empty
// list yields the zero hash.
func BuildMerkleRoot(txIDs []chainhash.Hash) chainhash.Hash {
	if len(txIDs) == 0 {
		return chainhash.ZeroHash
	}

	level := make([]chainhash.Hash, len(txIDs))
	copy(level, txIDs)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]chainhash.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashMerkleBranches(&level[i], &level[i+1])
		}
		level = next
	}
	return level[0]
}
