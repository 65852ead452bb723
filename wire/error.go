package wire

import "fmt"

// TxErrorCode identifies a kind of structural transaction error.
type TxErrorCode int

// These constants are used to identify a specific TxRuleError.
const (
	// ErrTooManyInputs indicates the number of transaction inputs exceeds
	// MaxTxInOuts.
	ErrTooManyInputs TxErrorCode = iota

	// ErrTooManyOutputs indicates the number of transaction outputs exceeds
	// MaxTxInOuts.
	ErrTooManyOutputs

	// ErrScriptTooLarge indicates a signature script or a public key script
	// exceeds MaxScriptSize.
	ErrScriptTooLarge

	// ErrMalformedTx indicates a serialized transaction could not be
	// decoded into a well-formed MsgTx.
	ErrMalformedTx
)

var txErrorCodeStrings = map[TxErrorCode]string{
	ErrTooManyInputs:  "ErrTooManyInputs",
	ErrTooManyOutputs: "ErrTooManyOutputs",
	ErrScriptTooLarge: "ErrScriptTooLarge",
	ErrMalformedTx:    "ErrMalformedTx",
}

// String returns the TxErrorCode as a human-readable name.
func (e TxErrorCode) String() string {
	if s, ok := txErrorCodeStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown TxErrorCode (%d)", int(e))
}

// TxRuleError identifies a structural violation in a transaction's shape. It
// is used to indicate that the transaction must be rejected before any
// canonicalization or hashing is trusted for consensus use.
type TxRuleError struct {
	ErrorCode   TxErrorCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxRuleError) Error() string {
	return e.Description
}

// txRuleError creates a TxRuleError given a set of arguments.
func txRuleError(c TxErrorCode, desc string) TxRuleError {
	return TxRuleError{ErrorCode: c, Description: desc}
}
