// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"

	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

// blockStatus tracks how far a block has made it through the validation
// pipeline. A block only ever moves forward through the statuses, except for
// connected blocks dropping back to statusBlockValid when a reorg
// disconnects them.
type blockStatus byte

const (
	// statusNone indicates the block has been seen but not validated at
	// all yet.
	statusNone blockStatus = iota

	// statusHeaderValid indicates the header passed its contextual checks
	// (version, timestamps, difficulty, proof of work).
	statusHeaderValid

	// statusBlockValid indicates the full block passed its standalone
	// checks (merkle commitment, coinbase placement, transaction sanity)
	// but is not part of the selected chain.
	statusBlockValid

	// statusConnected indicates the block is part of the selected chain
	// and its transactions are applied to the utxo set.
	statusConnected

	// statusRejected indicates the block broke a consensus rule. The
	// rejection is permanent; the violation is kept on the node.
	statusRejected
)

var blockStatusStrings = map[blockStatus]string{
	statusNone:        "none",
	statusHeaderValid: "header valid",
	statusBlockValid:  "block valid",
	statusConnected:   "connected",
	statusRejected:    "rejected",
}

func (status blockStatus) String() string {
	if s, ok := blockStatusStrings[status]; ok {
		return s
	}
	return "unknown"
}

// blockNode represents a block within the block index. The index is built as
// headers arrive, so a node may exist long before its block connects.
type blockNode struct {
	// parent is the parent block for this node. It is nil for the
	// genesis node.
	parent *blockNode

	// hash is the double sha256 of the serialized header.
	hash chainhash.Hash

	// height is the position in the block chain.
	height uint64

	// header is the full header this node was built from.
	header wire.BlockHeader

	// workSum is the total amount of work in the chain up to and
	// including this node.
	workSum *big.Int

	// status is the node's position in the validation pipeline.
	status blockStatus

	// rejectionErr holds the rule violation of a rejected node.
	rejectionErr error
}

// newBlockNode returns a new block node for the given header and parent. The
// work sum is calculated based on the parent.
func newBlockNode(header *wire.BlockHeader, parent *blockNode) *blockNode {
	node := &blockNode{
		hash:    header.BlockHash(),
		header:  *header,
		workSum: CalcWork(header.Bits),
		status:  statusNone,
	}
	if parent != nil {
		node.parent = parent
		node.height = parent.height + 1
		node.workSum = node.workSum.Add(parent.workSum, node.workSum)
	}
	return node
}

// Ancestor returns the ancestor block node at the provided height by
// following the chain backwards from this node. The returned block will be
// nil when a height is requested that is after the height of the passed node.
func (node *blockNode) Ancestor(height uint64) *blockNode {
	if height > node.height {
		return nil
	}

	n := node
	for n != nil && n.height != height {
		n = n.parent
	}
	return n
}

// RelativeAncestor returns the ancestor block node a relative 'distance'
// blocks before this node.
func (node *blockNode) RelativeAncestor(distance uint64) *blockNode {
	if distance > node.height {
		return nil
	}
	return node.Ancestor(node.height - distance)
}

// blockIndex provides facilities for keeping track of an in-memory index of
// the block chain, including headers that are not part of the selected
// chain.
type blockIndex struct {
	index map[chainhash.Hash]*blockNode
}

// newBlockIndex returns a new empty instance of a block index.
func newBlockIndex() *blockIndex {
	return &blockIndex{
		index: make(map[chainhash.Hash]*blockNode),
	}
}

// HaveBlock returns whether or not the block index contains the provided
// hash.
func (bi *blockIndex) HaveBlock(hash *chainhash.Hash) bool {
	_, hasBlock := bi.index[*hash]
	return hasBlock
}

// LookupNode returns the block node identified by the provided hash. It will
// return nil if there is no entry for the hash.
func (bi *blockIndex) LookupNode(hash *chainhash.Hash) *blockNode {
	return bi.index[*hash]
}

// AddNode adds the provided node to the block index.
func (bi *blockIndex) AddNode(node *blockNode) {
	bi.index[node.hash] = node
}
