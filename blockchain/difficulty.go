// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math/big"

	"github.com/tenebrium/tenebriumd/util/chainhash"
)

var (
	// bigOne is 1 represented as a big.Int. It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// oneLsh256 is 1 shifted left 256 bits.
	oneLsh256 = new(big.Int).Lsh(bigOne, 256)
)

// HashToBig converts a chainhash.Hash into a big.Int that can be used to
// perform math comparisons.
func HashToBig(hash *chainhash.Hash) *big.Int {
	return new(big.Int).SetBytes(hash[:])
}

// CompactToBig converts a compact representation of a whole number N to an
// unsigned 32-bit number. The representation is similar to IEEE754 floating
// point numbers.
//
// Like IEEE754 floating point, there are three basic components: the sign,
// the exponent, and the mantissa. They are broken out of the 32-bit number as
// follows:
//
//   - the most significant 8 bits represent the unsigned base 256 exponent
//   - bit 23 (the 24th bit) represents the sign bit
//   - the least significant 23 bits represent the mantissa
//
// The formula to calculate N is:
//
//	N = (-1^sign) * mantissa * 256^(exponent-3)
func CompactToBig(compact uint32) *big.Int {
	// Extract the mantissa, sign bit, and exponent.
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	// Since the base for the exponent is 256, the exponent can be treated
	// as the number of bytes to represent the full 256-bit number. So,
	// treat the exponent as the number of bytes and shift the mantissa
	// right or left accordingly. This is equivalent to:
	// N = mantissa * 256^(exponent-3)
	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	// Make it negative if the sign bit is set.
	if isNegative {
		bn = bn.Neg(bn)
	}

	return bn
}

// BigToCompact converts a whole number N to a compact representation using
// an unsigned 32-bit number. The compact representation only provides 23 bits
// of precision, so values larger than (2^23 - 1) only encode the most
// significant digits of the number. See CompactToBig for details.
func BigToCompact(n *big.Int) uint32 {
	// No need to do any work if it's zero.
	if n.Sign() == 0 {
		return 0
	}

	// Since the base for the exponent is 256, the exponent can be treated
	// as the number of bytes. So, shift the number right or left
	// accordingly. This is equivalent to:
	// mantissa = mantissa / 256^(exponent-3)
	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		// Use a copy to avoid modifying the caller's original number.
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// When the mantissa already has the sign bit set, the number is too
	// large to fit into the available 23-bits, so divide the number by 256
	// and increment the exponent accordingly.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	// Pack the exponent, sign bit, and mantissa into an unsigned 32-bit
	// int and return it.
	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// CalcWork calculates a work value from difficulty bits. It increases the
// difficulty for generating a block by decreasing the value which the
// generated hash must be less than.
//
// The work value is defined as 2^256 / (target + 1).
func CalcWork(bits uint32) *big.Int {
	// Return a work value of zero if the passed difficulty bits represent
	// a negative number. Note this should not happen in practice with
	// valid blocks, but an invalid block could trigger it.
	difficultyNum := CompactToBig(bits)
	if difficultyNum.Sign() <= 0 {
		return big.NewInt(0)
	}

	// (1 << 256) / (difficultyNum + 1)
	denominator := new(big.Int).Add(difficultyNum, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}

// requiredBits calculates the required difficulty bits for the block built on
// top of parent.
//
// The difficulty retargets every DifficultyWindow blocks: the window's actual
// duration is measured against the expected duration and the parent's target
// is scaled by their ratio, bounded to a factor of MaxRetargetFactor in
// either direction and never above the proof of work limit. Outside a
// retarget boundary the parent's bits carry over unchanged.
//
// This function MUST be called with the chain state lock held (for reads).
func (c *Chain) requiredBits(parent *blockNode) (uint32, error) {
	// Genesis block.
	if parent == nil {
		return c.params.PowLimitBits, nil
	}

	newHeight := parent.height + 1
	if newHeight%c.params.DifficultyWindow != 0 {
		return parent.header.Bits, nil
	}

	firstNode := parent.RelativeAncestor(c.params.DifficultyWindow - 1)
	if firstNode == nil {
		return 0, AssertError(fmt.Sprintf("unable to obtain the start of "+
			"the difficulty window ending at %s (height %d)",
			parent.hash, parent.height))
	}

	expectedTimespan := int64(c.params.TargetTimePerBlock.Seconds()) *
		int64(c.params.DifficultyWindow)
	actualTimespan := int64(parent.header.Timestamp) - int64(firstNode.header.Timestamp)

	// Bound the amount of adjustment allowed per retarget.
	minTimespan := expectedTimespan / c.params.MaxRetargetFactor
	maxTimespan := expectedTimespan * c.params.MaxRetargetFactor
	if actualTimespan < minTimespan {
		actualTimespan = minTimespan
	} else if actualTimespan > maxTimespan {
		actualTimespan = maxTimespan
	}

	// newTarget = oldTarget * actualTimespan / expectedTimespan. The
	// result uses integer division which means it will be slightly
	// rounded down.
	newTarget := CompactToBig(parent.header.Bits)
	newTarget.Mul(newTarget, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(expectedTimespan))
	if newTarget.Cmp(c.params.PowLimit) > 0 {
		return c.params.PowLimitBits, nil
	}
	return BigToCompact(newTarget), nil
}
