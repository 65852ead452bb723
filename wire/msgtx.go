// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tenebrium/tenebriumd/util/chainhash"
)

const (
	// MaxScriptSize is the maximum allowed length in bytes for a signature
	// script or a public key script.
	MaxScriptSize = 10000

	// MaxTxInOuts is the maximum allowed number of inputs or outputs in a
	// single transaction.
	MaxTxInOuts = 10000

	// minTxPayloadV2 is the minimum size of a v2-serialized transaction:
	// version 4 bytes + input count 8 bytes + output count 8 bytes +
	// lock time 4 bytes.
	minTxPayloadV2 = 4 + 8 + 8 + 4

	// outpointSize is the serialized size of an outpoint: 32-byte txid
	// plus a 4-byte output index.
	outpointSize = chainhash.HashSize + 4
)

// TxIDVersion selects which canonicalization scheme derives transaction
// identifiers. The session layer decides which version is authoritative for a
// given peer and passes it in as configuration.
type TxIDVersion uint8

// Constants for the supported txid versions.
const (
	// TxIDV1 is the legacy JSON-based canonicalization.
	TxIDV1 TxIDVersion = 1

	// TxIDV2 is the fixed little-endian binary canonicalization.
	TxIDV2 TxIDVersion = 2
)

// String returns the txid version as a human-readable string.
func (v TxIDVersion) String() string {
	switch v {
	case TxIDV1:
		return "v1"
	case TxIDV2:
		return "v2"
	}
	return fmt.Sprintf("unknown txid version (%d)", uint8(v))
}

// Outpoint defines the immutable identity of one transaction output.
// Equality is structural, so Outpoint is usable as a map key.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

// NewOutpoint returns a new transaction outpoint with the provided hash and
// index.
func NewOutpoint(txID *chainhash.Hash, index uint32) *Outpoint {
	return &Outpoint{
		TxID:  *txID,
		Index: index,
	}
}

// String returns the Outpoint in the human-readable form "txid:index".
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// TxIn defines a transaction input.
type TxIn struct {
	PreviousOutpoint Outpoint
	SignatureScript  []byte
	Sequence         uint32
}

// NewTxIn returns a new transaction input with the provided previous outpoint
// and signature script with a default sequence of MaxUint32.
func NewTxIn(prevOut *Outpoint, signatureScript []byte) *TxIn {
	return &TxIn{
		PreviousOutpoint: *prevOut,
		SignatureScript:  signatureScript,
		Sequence:         math.MaxUint32,
	}
}

// TxOut defines a transaction output.
type TxOut struct {
	Amount       uint64
	ScriptPubKey []byte
}

// NewTxOut returns a new transaction output with the provided amount and
// public key script.
func NewTxOut(amount uint64, scriptPubKey []byte) *TxOut {
	return &TxOut{
		Amount:       amount,
		ScriptPubKey: scriptPubKey,
	}
}

// MsgTx represents a tenebrium transaction. It is used to deliver transaction
// information in response to transaction relay and as a member of blocks.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// NewMsgTx returns a new transaction with the provided version and no inputs
// or outputs.
func NewMsgTx(version int32) *MsgTx {
	return &MsgTx{
		Version: version,
		TxIn:    make([]*TxIn, 0),
		TxOut:   make([]*TxOut, 0),
	}
}

// AddTxIn adds a transaction input to the message.
func (msg *MsgTx) AddTxIn(ti *TxIn) {
	msg.TxIn = append(msg.TxIn, ti)
}

// AddTxOut adds a transaction output to the message.
func (msg *MsgTx) AddTxOut(to *TxOut) {
	msg.TxOut = append(msg.TxOut, to)
}

// IsCoinBase determines whether or not the transaction is a coinbase. A
// coinbase has no inputs at all; a transaction carrying even a single input,
// null previous outpoint or not, is a regular spend.
func (msg *MsgTx) IsCoinBase() bool {
	return len(msg.TxIn) == 0
}

// CheckSanity performs the structural bounds checks on the transaction. It
// must pass before a transaction is trusted for consensus use; the v2
// canonicalization entry points run it internally. The v1 encoding does not,
// since the legacy identity of an out-of-bounds transaction is still needed
// for reporting.
func (msg *MsgTx) CheckSanity() error {
	if len(msg.TxIn) > MaxTxInOuts {
		str := fmt.Sprintf("transaction has %d inputs - max %d",
			len(msg.TxIn), MaxTxInOuts)
		return txRuleError(ErrTooManyInputs, str)
	}
	if len(msg.TxOut) > MaxTxInOuts {
		str := fmt.Sprintf("transaction has %d outputs - max %d",
			len(msg.TxOut), MaxTxInOuts)
		return txRuleError(ErrTooManyOutputs, str)
	}
	for _, txIn := range msg.TxIn {
		if len(txIn.SignatureScript) > MaxScriptSize {
			str := fmt.Sprintf("signature script is %d bytes - max %d",
				len(txIn.SignatureScript), MaxScriptSize)
			return txRuleError(ErrScriptTooLarge, str)
		}
	}
	for _, txOut := range msg.TxOut {
		if len(txOut.ScriptPubKey) > MaxScriptSize {
			str := fmt.Sprintf("public key script is %d bytes - max %d",
				len(txOut.ScriptPubKey), MaxScriptSize)
			return txRuleError(ErrScriptTooLarge, str)
		}
	}
	return nil
}

// serializeSizeV2 returns the number of bytes it takes to serialize the
// transaction in the v2 canonical layout.
func (msg *MsgTx) serializeSizeV2() int {
	n := minTxPayloadV2
	for _, txIn := range msg.TxIn {
		n += outpointSize + 8 + len(txIn.SignatureScript) + 4
	}
	for _, txOut := range msg.TxOut {
		n += 8 + 8 + len(txOut.ScriptPubKey)
	}
	return n
}

// CanonicalBytesV2 returns the fixed little-endian binary canonical encoding
// of the transaction:
//
//	version(i32,4) | input_count(u64,8) |
//	{prevout.txid(32) | prevout.index(u32,4) |
//	 unlock_len(u64,8) | unlock_script | sequence(u32,4)}* |
//	output_count(u64,8) | {amount(u64,8) | script_len(u64,8) | script}* |
//	lock_time(u32,4)
//
// There is no padding and no version tag (a 1-byte tag is reserved for future
// use but inactive). CheckSanity runs first; bounds violations surface as
// TxRuleErrors and no bytes are produced.
func (msg *MsgTx) CanonicalBytesV2() ([]byte, error) {
	if err := msg.CheckSanity(); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, msg.serializeSizeV2())
	buf = binary.LittleEndian.AppendUint32(buf, uint32(msg.Version))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(msg.TxIn)))
	for _, txIn := range msg.TxIn {
		buf = append(buf, txIn.PreviousOutpoint.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, txIn.PreviousOutpoint.Index)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(txIn.SignatureScript)))
		buf = append(buf, txIn.SignatureScript...)
		buf = binary.LittleEndian.AppendUint32(buf, txIn.Sequence)
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(msg.TxOut)))
	for _, txOut := range msg.TxOut {
		buf = binary.LittleEndian.AppendUint64(buf, txOut.Amount)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(txOut.ScriptPubKey)))
		buf = append(buf, txOut.ScriptPubKey...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, msg.LockTime)
	return buf, nil
}

// DeserializeV2 decodes a v2 canonical encoding into the receiver. The whole
// of serialized must be consumed; trailing bytes, truncated fields and
// out-of-bound counts are all rejected with ErrMalformedTx.
func (msg *MsgTx) DeserializeV2(serialized []byte) error {
	r := &sliceReader{buf: serialized}
	if err := msg.deserializeV2From(r); err != nil {
		return err
	}
	if r.remaining() != 0 {
		str := fmt.Sprintf("serialized transaction has %d trailing bytes",
			r.remaining())
		return txRuleError(ErrMalformedTx, str)
	}
	return nil
}

// deserializeV2From decodes one v2-encoded transaction from the reader's
// current position, leaving the cursor just past it.
func (msg *MsgTx) deserializeV2From(r *sliceReader) error {
	version, err := r.readUint32()
	if err != nil {
		return err
	}
	inputCount, err := r.readUint64()
	if err != nil {
		return err
	}
	if inputCount > MaxTxInOuts {
		str := fmt.Sprintf("serialized transaction claims %d inputs - max %d",
			inputCount, MaxTxInOuts)
		return txRuleError(ErrMalformedTx, str)
	}
	txIn := make([]*TxIn, 0, inputCount)
	for i := uint64(0); i < inputCount; i++ {
		var in TxIn
		txIDBytes, err := r.readBytes(chainhash.HashSize)
		if err != nil {
			return err
		}
		copy(in.PreviousOutpoint.TxID[:], txIDBytes)
		if in.PreviousOutpoint.Index, err = r.readUint32(); err != nil {
			return err
		}
		scriptLen, err := r.readUint64()
		if err != nil {
			return err
		}
		if scriptLen > MaxScriptSize {
			str := fmt.Sprintf("serialized signature script is %d bytes - max %d",
				scriptLen, MaxScriptSize)
			return txRuleError(ErrMalformedTx, str)
		}
		script, err := r.readBytes(int(scriptLen))
		if err != nil {
			return err
		}
		in.SignatureScript = script
		if in.Sequence, err = r.readUint32(); err != nil {
			return err
		}
		txIn = append(txIn, &in)
	}

	outputCount, err := r.readUint64()
	if err != nil {
		return err
	}
	if outputCount > MaxTxInOuts {
		str := fmt.Sprintf("serialized transaction claims %d outputs - max %d",
			outputCount, MaxTxInOuts)
		return txRuleError(ErrMalformedTx, str)
	}
	txOut := make([]*TxOut, 0, outputCount)
	for i := uint64(0); i < outputCount; i++ {
		var out TxOut
		if out.Amount, err = r.readUint64(); err != nil {
			return err
		}
		scriptLen, err := r.readUint64()
		if err != nil {
			return err
		}
		if scriptLen > MaxScriptSize {
			str := fmt.Sprintf("serialized public key script is %d bytes - max %d",
				scriptLen, MaxScriptSize)
			return txRuleError(ErrMalformedTx, str)
		}
		script, err := r.readBytes(int(scriptLen))
		if err != nil {
			return err
		}
		out.ScriptPubKey = script
		txOut = append(txOut, &out)
	}

	lockTime, err := r.readUint32()
	if err != nil {
		return err
	}

	msg.Version = int32(version)
	msg.TxIn = txIn
	msg.TxOut = txOut
	msg.LockTime = lockTime
	return nil
}

// TxIDV2 returns the transaction identifier under the v2 canonicalization:
// the double sha256 of CanonicalBytesV2.
func (msg *MsgTx) TxIDV2() (chainhash.Hash, error) {
	serialized, err := msg.CanonicalBytesV2()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.DoubleHashH(serialized), nil
}

// TxIDV1 returns the transaction identifier under the legacy v1
// canonicalization: the double sha256 of CanonicalBytesV1. Like the v1 bytes
// themselves it is defined for any transaction.
func (msg *MsgTx) TxIDV1() chainhash.Hash {
	return chainhash.DoubleHashH(msg.CanonicalBytesV1())
}

// TxID returns the transaction identifier under the given txid version.
func (msg *MsgTx) TxID(version TxIDVersion) (chainhash.Hash, error) {
	if version == TxIDV1 {
		return msg.TxIDV1(), nil
	}
	return msg.TxIDV2()
}

// Outpoints returns one outpoint per transaction output, in output order,
// keyed by the transaction id of the requested version.
func (msg *MsgTx) Outpoints(version TxIDVersion) ([]Outpoint, error) {
	txID, err := msg.TxID(version)
	if err != nil {
		return nil, err
	}
	outpoints := make([]Outpoint, len(msg.TxOut))
	for i := range msg.TxOut {
		outpoints[i] = Outpoint{TxID: txID, Index: uint32(i)}
	}
	return outpoints, nil
}

// SigHashV2 computes the baseline signing hash of the transaction: the double
// sha256 of the v2 canonical bytes with every signature script cleared.
func (msg *MsgTx) SigHashV2() (chainhash.Hash, error) {
	stripped := msg.Copy()
	for _, txIn := range stripped.TxIn {
		txIn.SignatureScript = nil
	}
	return stripped.TxIDV2()
}

// Copy creates a deep copy of a transaction so that the original does not get
// modified when the copy is manipulated.
func (msg *MsgTx) Copy() *MsgTx {
	newTx := MsgTx{
		Version:  msg.Version,
		TxIn:     make([]*TxIn, 0, len(msg.TxIn)),
		TxOut:    make([]*TxOut, 0, len(msg.TxOut)),
		LockTime: msg.LockTime,
	}
	for _, oldTxIn := range msg.TxIn {
		newTxIn := TxIn{
			PreviousOutpoint: oldTxIn.PreviousOutpoint,
			Sequence:         oldTxIn.Sequence,
		}
		if len(oldTxIn.SignatureScript) > 0 {
			newTxIn.SignatureScript = make([]byte, len(oldTxIn.SignatureScript))
			copy(newTxIn.SignatureScript, oldTxIn.SignatureScript)
		}
		newTx.TxIn = append(newTx.TxIn, &newTxIn)
	}
	for _, oldTxOut := range msg.TxOut {
		newTxOut := TxOut{Amount: oldTxOut.Amount}
		if len(oldTxOut.ScriptPubKey) > 0 {
			newTxOut.ScriptPubKey = make([]byte, len(oldTxOut.ScriptPubKey))
			copy(newTxOut.ScriptPubKey, oldTxOut.ScriptPubKey)
		}
		newTx.TxOut = append(newTx.TxOut, &newTxOut)
	}
	return &newTx
}

// sliceReader is a cursor over a byte slice with bounds-checked little-endian
// reads. Truncation surfaces as ErrMalformedTx.
type sliceReader struct {
	buf    []byte
	offset int
}

func (r *sliceReader) remaining() int {
	return len(r.buf) - r.offset
}

func (r *sliceReader) readBytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, txRuleError(ErrMalformedTx, "serialized transaction is truncated")
	}
	out := make([]byte, n)
	copy(out, r.buf[r.offset:r.offset+n])
	r.offset += n
	return out, nil
}

func (r *sliceReader) readUint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, txRuleError(ErrMalformedTx, "serialized transaction is truncated")
	}
	v := binary.LittleEndian.Uint32(r.buf[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *sliceReader) readUint64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, txRuleError(ErrMalformedTx, "serialized transaction is truncated")
	}
	v := binary.LittleEndian.Uint64(r.buf[r.offset:])
	r.offset += 8
	return v, nil
}
