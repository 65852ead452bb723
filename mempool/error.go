// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
)

// RejectCode represents a numeric value by which the pool indicates why a
// transaction was rejected.
type RejectCode uint8

// These constants define the various supported reject codes.
const (
	RejectMalformed    RejectCode = 0x01
	RejectInvalid      RejectCode = 0x10
	RejectDuplicate    RejectCode = 0x12
	RejectOrphan       RejectCode = 0x20
	RejectDoubleSpend  RejectCode = 0x21
	RejectCoinbase     RejectCode = 0x22
	RejectInsufficient RejectCode = 0x42
)

// Map of reject codes back to strings for pretty printing.
var rejectCodeStrings = map[RejectCode]string{
	RejectMalformed:    "REJECT_MALFORMED",
	RejectInvalid:      "REJECT_INVALID",
	RejectDuplicate:    "REJECT_DUPLICATE",
	RejectOrphan:       "REJECT_ORPHAN",
	RejectDoubleSpend:  "REJECT_DOUBLESPEND",
	RejectCoinbase:     "REJECT_COINBASE",
	RejectInsufficient: "REJECT_INSUFFICIENT",
}

// String returns the RejectCode in human-readable form.
func (code RejectCode) String() string {
	if s, ok := rejectCodeStrings[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown RejectCode (%d)", uint8(code))
}

// TxRuleError identifies a rule violation. It is used to indicate that
// processing of a transaction failed due to one of the pool's validation
// rules. The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and access the RejectCode field to
// ascertain the specific reason.
type TxRuleError struct {
	RejectCode  RejectCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxRuleError) Error() string {
	return e.Description
}

// txRuleError creates a TxRuleError given a set of arguments.
func txRuleError(c RejectCode, desc string) TxRuleError {
	return TxRuleError{RejectCode: c, Description: desc}
}
