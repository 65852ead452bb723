// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import "fmt"

// ErrorCode identifies a kind of consensus rule violation.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrDuplicateBlock indicates a block with the same hash already
	// exists.
	ErrDuplicateBlock ErrorCode = iota

	// ErrBlockVersion indicates the block version is not the sole
	// accepted version.
	ErrBlockVersion

	// ErrParentBlockUnknown indicates a block's parent is unknown.
	ErrParentBlockUnknown

	// ErrInvalidAncestorBlock indicates a block's ancestor has already
	// failed validation.
	ErrInvalidAncestorBlock

	// ErrTimeTooOld indicates the header timestamp is not strictly
	// greater than the median timestamp of recent ancestors.
	ErrTimeTooOld

	// ErrTimeTooNew indicates the header timestamp is too far in the
	// future.
	ErrTimeTooNew

	// ErrUnexpectedDifficulty indicates the header's claimed difficulty
	// bits do not match the required difficulty.
	ErrUnexpectedDifficulty

	// ErrHighHash indicates the block hash does not meet the target
	// difficulty.
	ErrHighHash

	// ErrBadMerkleRoot indicates the committed merkle root does not match
	// the calculated one.
	ErrBadMerkleRoot

	// ErrNoTransactions indicates a block has no transactions and hence
	// no coinbase.
	ErrNoTransactions

	// ErrFirstTxNotCoinbase indicates the first transaction in a block
	// is not a coinbase transaction.
	ErrFirstTxNotCoinbase

	// ErrMultipleCoinbases indicates a block contains more than one
	// coinbase transaction.
	ErrMultipleCoinbases

	// ErrInvalidTx indicates a transaction within the block failed its
	// structural sanity checks.
	ErrInvalidTx

	// ErrMissingTxOut indicates a transaction input references an
	// outpoint that is not part of the utxo set.
	ErrMissingTxOut

	// ErrDuplicateOutput indicates a transaction would create an outpoint
	// that already exists in the utxo set.
	ErrDuplicateOutput

	// ErrSpendTooHigh indicates a transaction's outputs are worth more
	// than its inputs.
	ErrSpendTooHigh

	// ErrBadCoinbaseValue indicates the coinbase outputs are worth more
	// than the block subsidy plus collected fees.
	ErrBadCoinbaseValue

	// ErrValueOverflow indicates summing transaction amounts would
	// overflow a uint64.
	ErrValueOverflow

	// ErrWrongNetwork indicates the database belongs to a different
	// network than the one the chain was configured with.
	ErrWrongNetwork

	// ErrUnsupportedSchema indicates the database carries a schema
	// version this code does not understand.
	ErrUnsupportedSchema
)

var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock:       "ErrDuplicateBlock",
	ErrBlockVersion:         "ErrBlockVersion",
	ErrParentBlockUnknown:   "ErrParentBlockUnknown",
	ErrInvalidAncestorBlock: "ErrInvalidAncestorBlock",
	ErrTimeTooOld:           "ErrTimeTooOld",
	ErrTimeTooNew:           "ErrTimeTooNew",
	ErrUnexpectedDifficulty: "ErrUnexpectedDifficulty",
	ErrHighHash:             "ErrHighHash",
	ErrBadMerkleRoot:        "ErrBadMerkleRoot",
	ErrNoTransactions:       "ErrNoTransactions",
	ErrFirstTxNotCoinbase:   "ErrFirstTxNotCoinbase",
	ErrMultipleCoinbases:    "ErrMultipleCoinbases",
	ErrInvalidTx:            "ErrInvalidTx",
	ErrMissingTxOut:         "ErrMissingTxOut",
	ErrDuplicateOutput:      "ErrDuplicateOutput",
	ErrSpendTooHigh:         "ErrSpendTooHigh",
	ErrBadCoinbaseValue:     "ErrBadCoinbaseValue",
	ErrValueOverflow:        "ErrValueOverflow",
	ErrWrongNetwork:         "ErrWrongNetwork",
	ErrUnsupportedSchema:    "ErrUnsupportedSchema",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s, ok := errorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block or transaction failed due to one of the many
// validation rules. The caller can use type assertion to determine if a
// failure was specifically due to a rule violation and access the ErrorCode
// field to ascertain the specific reason for the rule violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}
