// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"sort"
	"time"

	"github.com/tenebrium/tenebriumd/chaincfg"
	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

// BehaviorFlags is a bitmask defining tweaks to the normal behavior when
// performing chain processing and consensus rules checks.
type BehaviorFlags uint32

const (
	// BFNoPoWCheck may be set to indicate the proof of work check which
	// ensures a block hashes to a value less than the required target will
	// not be performed.
	BFNoPoWCheck BehaviorFlags = 1 << iota

	// BFNone is a convenience value to specifically indicate no flags.
	BFNone BehaviorFlags = 0
)

// CalcBlockSubsidy returns the subsidy amount a block at the provided height
// should have. This is mainly used for determining how much the coinbase for
// newly generated blocks awards as well as validating the coinbase for blocks
// has the expected value.
//
// The subsidy is halved every SubsidyHalvingInterval blocks. Mathematically
// this is: baseSubsidy / 2^(height/SubsidyHalvingInterval)
func CalcBlockSubsidy(height uint64, params *chaincfg.Params) uint64 {
	if params.SubsidyHalvingInterval == 0 {
		return baseSubsidy
	}

	halvings := height / params.SubsidyHalvingInterval
	if halvings >= 64 {
		// Shifting a uint64 by 64 or more is undefined, and by then the
		// subsidy has long reached zero anyway.
		return 0
	}

	// Equivalent to: baseSubsidy / 2^halvings
	return baseSubsidy >> halvings
}

// baseSubsidy is the starting subsidy amount for mined blocks. This value is
// halved every SubsidyHalvingInterval blocks.
const baseSubsidy = 50 * 100000000

// checkProofOfWork ensures the block header bits which indicate the target
// difficulty is in min/max range and that the block hash is less than the
// target difficulty as claimed.
//
// The flags modify the behavior of this function as follows:
//   - BFNoPoWCheck: The check to ensure the block hash is less than the
//     target difficulty is not performed.
func checkProofOfWork(header *wire.BlockHeader, params *chaincfg.Params, flags BehaviorFlags) error {
	// The target difficulty must be larger than zero.
	target := CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		str := fmt.Sprintf("block target difficulty of %064x is too low", target)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	// The target difficulty must be less than the maximum allowed.
	if target.Cmp(params.PowLimit) > 0 {
		str := fmt.Sprintf("block target difficulty of %064x is "+
			"higher than max of %064x", target, params.PowLimit)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	// The block hash must be less than the claimed target unless the flag
	// to avoid proof of work checks is set.
	if flags&BFNoPoWCheck != BFNoPoWCheck {
		hash := header.BlockHash()
		hashNum := HashToBig(&hash)
		if hashNum.Cmp(target) > 0 {
			str := fmt.Sprintf("block hash of %064x is higher than "+
				"expected max of %064x", hashNum, target)
			return ruleError(ErrHighHash, str)
		}
	}

	return nil
}

// medianTimestamp returns the median header timestamp of up to
// TimestampMedianWindow ancestors ending at (and including) node. Returns
// false when node is nil, i.e. for the genesis block.
func medianTimestamp(node *blockNode, params *chaincfg.Params) (uint32, bool) {
	if node == nil {
		return 0, false
	}
	timestamps := make([]uint32, 0, params.TimestampMedianWindow)
	for n := node; n != nil && len(timestamps) < params.TimestampMedianWindow; n = n.parent {
		timestamps = append(timestamps, n.header.Timestamp)
	}
	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i] < timestamps[j]
	})
	return timestamps[len(timestamps)/2], true
}

// checkBlockHeaderContext performs the contextual checks of a header against
// its parent node, in order: version, future drift, median time, required
// difficulty and proof of work. The first violated rule is returned.
//
// This function MUST be called with the chain state lock held (for reads).
func (c *Chain) checkBlockHeaderContext(header *wire.BlockHeader, parent *blockNode,
	flags BehaviorFlags) error {

	if header.Version != c.params.BlockVersion {
		str := fmt.Sprintf("block version %d is not the accepted version %d",
			header.Version, c.params.BlockVersion)
		return ruleError(ErrBlockVersion, str)
	}

	// A header may not claim a timestamp too far ahead of our clock.
	maxTimestamp := c.timeSource().Add(c.params.MaxFutureDrift)
	if int64(header.Timestamp) > maxTimestamp.Unix() {
		str := fmt.Sprintf("block timestamp of %d is too far in the future",
			header.Timestamp)
		return ruleError(ErrTimeTooNew, str)
	}

	// The timestamp must be strictly greater than the median timestamp of
	// recent ancestors. The genesis block has no ancestors to compare to.
	if median, ok := medianTimestamp(parent, c.params); ok {
		if header.Timestamp <= median {
			str := fmt.Sprintf("block timestamp of %d is not after the "+
				"median time of the last blocks (%d)", header.Timestamp, median)
			return ruleError(ErrTimeTooOld, str)
		}
	}

	expectedBits, err := c.requiredBits(parent)
	if err != nil {
		return err
	}
	if header.Bits != expectedBits {
		str := fmt.Sprintf("block difficulty of %08x is not the expected "+
			"value of %08x", header.Bits, expectedBits)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	return checkProofOfWork(header, c.params, flags)
}

// checkBlockSanity performs the standalone checks on a full block: coinbase
// placement, per-transaction structural sanity and the merkle commitment.
func checkBlockSanity(block *wire.MsgBlock, txIDVersion wire.TxIDVersion) error {
	transactions := block.Transactions
	if len(transactions) == 0 {
		return ruleError(ErrNoTransactions, "block does not contain any transactions")
	}

	if !transactions[0].IsCoinBase() {
		return ruleError(ErrFirstTxNotCoinbase, "first transaction in "+
			"block is not the coinbase")
	}
	for i, tx := range transactions[1:] {
		if tx.IsCoinBase() {
			str := fmt.Sprintf("block contains second coinbase at index %d", i+1)
			return ruleError(ErrMultipleCoinbases, str)
		}
	}

	txIDs := make([]chainhash.Hash, len(transactions))
	for i, tx := range transactions {
		if err := tx.CheckSanity(); err != nil {
			str := fmt.Sprintf("transaction %d failed sanity check: %s", i, err)
			return ruleError(ErrInvalidTx, str)
		}
		txID, err := tx.TxID(txIDVersion)
		if err != nil {
			str := fmt.Sprintf("transaction %d could not be canonicalized: %s", i, err)
			return ruleError(ErrInvalidTx, str)
		}
		txIDs[i] = txID
	}

	// The committed merkle root must match the one calculated over the
	// ordered transaction ids.
	calculatedMerkleRoot := BuildMerkleRoot(txIDs)
	if block.Header.MerkleRoot != calculatedMerkleRoot {
		str := fmt.Sprintf("block merkle root is invalid - block header "+
			"indicates %s, but calculated value is %s",
			block.Header.MerkleRoot, calculatedMerkleRoot)
		return ruleError(ErrBadMerkleRoot, str)
	}

	return nil
}

// defaultTimeSource returns the current wall clock time. The chain keeps its
// time source injectable so tests can validate drift rules deterministically.
func defaultTimeSource() time.Time {
	return time.Now()
}
