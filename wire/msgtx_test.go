// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"github.com/tenebrium/tenebriumd/util/chainhash"
)

// testTx returns a small two-input, two-output transaction with fixed
// contents, used across the codec tests.
func testTx() *MsgTx {
	prevTxID1 := chainhash.Hash{0x01, 0x02, 0x03}
	prevTxID2 := chainhash.Hash{0xaa, 0xbb}
	tx := NewMsgTx(1)
	tx.AddTxIn(&TxIn{
		PreviousOutpoint: Outpoint{TxID: prevTxID1, Index: 0},
		SignatureScript:  []byte{0xde, 0xad, 0xbe, 0xef},
		Sequence:         math.MaxUint32,
	})
	tx.AddTxIn(&TxIn{
		PreviousOutpoint: Outpoint{TxID: prevTxID2, Index: 7},
		SignatureScript:  []byte{},
		Sequence:         42,
	})
	tx.AddTxOut(NewTxOut(5000000000, []byte{0x51}))
	tx.AddTxOut(NewTxOut(12345, []byte{0x52, 0x53}))
	tx.LockTime = 99
	return tx
}

// TestCanonicalBytesV2Layout builds the expected v2 encoding field by field
// and checks CanonicalBytesV2 matches it exactly, and that the v2 txid is the
// double sha256 of those bytes.
func TestCanonicalBytesV2Layout(t *testing.T) {
	tx := testTx()

	var want []byte
	want = binary.LittleEndian.AppendUint32(want, uint32(tx.Version))
	want = binary.LittleEndian.AppendUint64(want, uint64(len(tx.TxIn)))
	for _, txIn := range tx.TxIn {
		want = append(want, txIn.PreviousOutpoint.TxID[:]...)
		want = binary.LittleEndian.AppendUint32(want, txIn.PreviousOutpoint.Index)
		want = binary.LittleEndian.AppendUint64(want, uint64(len(txIn.SignatureScript)))
		want = append(want, txIn.SignatureScript...)
		want = binary.LittleEndian.AppendUint32(want, txIn.Sequence)
	}
	want = binary.LittleEndian.AppendUint64(want, uint64(len(tx.TxOut)))
	for _, txOut := range tx.TxOut {
		want = binary.LittleEndian.AppendUint64(want, txOut.Amount)
		want = binary.LittleEndian.AppendUint64(want, uint64(len(txOut.ScriptPubKey)))
		want = append(want, txOut.ScriptPubKey...)
	}
	want = binary.LittleEndian.AppendUint32(want, tx.LockTime)

	got, err := tx.CanonicalBytesV2()
	if err != nil {
		t.Fatalf("CanonicalBytesV2: unexpected error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("CanonicalBytesV2: got %x, want %x", got, want)
	}

	first := sha256.Sum256(want)
	wantID := chainhash.Hash(sha256.Sum256(first[:]))
	gotID, err := tx.TxIDV2()
	if err != nil {
		t.Fatalf("TxIDV2: unexpected error: %v", err)
	}
	if gotID != wantID {
		t.Fatalf("TxIDV2: got %s, want %s", gotID, wantID)
	}
}

// TestCanonicalBytesV1Form checks the v1 JSON form of a minimal transaction
// against the exact expected string.
func TestCanonicalBytesV1Form(t *testing.T) {
	tx := NewMsgTx(1)
	prevTxID := chainhash.Hash{}
	prevTxID[0] = 9
	tx.AddTxIn(&TxIn{
		PreviousOutpoint: Outpoint{TxID: prevTxID, Index: 3},
		SignatureScript:  []byte{1, 255},
		Sequence:         7,
	})
	tx.AddTxOut(NewTxOut(100, []byte{0}))
	tx.LockTime = 5

	want := `{"version":1,"vin":[{"prevout":{"txid":[9,0,0,0,0,0,0,0,0,0,0,0,` +
		`0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0],"vout":3},` +
		`"script_sig":[1,255],"sequence":7}],` +
		`"vout":[{"value":100,"script_pubkey":[0]}],"lock_time":5}`

	got := tx.CanonicalBytesV1()
	if string(got) != want {
		t.Fatalf("CanonicalBytesV1: got %s, want %s", got, want)
	}
}

// TestCanonicalBytesDeterminism checks repeated canonicalization of the same
// transaction yields identical bytes for both versions.
func TestCanonicalBytesDeterminism(t *testing.T) {
	tx := testTx()
	for i := 0; i < 3; i++ {
		v1a := tx.CanonicalBytesV1()
		v1b := tx.CanonicalBytesV1()
		v2a, _ := tx.CanonicalBytesV2()
		v2b, _ := tx.CanonicalBytesV2()
		if !bytes.Equal(v1a, v1b) {
			t.Fatalf("v1 canonical bytes differ between calls")
		}
		if !bytes.Equal(v2a, v2b) {
			t.Fatalf("v2 canonical bytes differ between calls")
		}
	}
}

// TestSerializeV2RoundTrip checks encode/decode round trips across edge-case
// transaction shapes.
func TestSerializeV2RoundTrip(t *testing.T) {
	maxScript := make([]byte, MaxScriptSize)
	for i := range maxScript {
		maxScript[i] = byte(i)
	}

	coinbase := NewMsgTx(1)
	coinbase.AddTxOut(NewTxOut(5000000000, []byte{0x51}))

	zeroOut := NewMsgTx(1)
	zeroOut.AddTxIn(NewTxIn(&Outpoint{TxID: chainhash.Hash{1}, Index: 0}, nil))

	maxScriptTx := NewMsgTx(2)
	maxScriptTx.AddTxIn(NewTxIn(&Outpoint{TxID: chainhash.Hash{2}, Index: 1}, maxScript))
	maxScriptTx.AddTxOut(NewTxOut(1, maxScript))

	empty := NewMsgTx(1)

	tests := []struct {
		name string
		tx   *MsgTx
	}{
		{"typical", testTx()},
		{"zero inputs", coinbase},
		{"zero outputs", zeroOut},
		{"max script", maxScriptTx},
		{"empty", empty},
	}
	for _, test := range tests {
		serialized, err := test.tx.CanonicalBytesV2()
		if err != nil {
			t.Errorf("%s: CanonicalBytesV2: unexpected error: %v", test.name, err)
			continue
		}
		var decoded MsgTx
		if err := decoded.DeserializeV2(serialized); err != nil {
			t.Errorf("%s: DeserializeV2: unexpected error: %v", test.name, err)
			continue
		}
		reserialized, err := decoded.CanonicalBytesV2()
		if err != nil {
			t.Errorf("%s: re-serialize: unexpected error: %v", test.name, err)
			continue
		}
		if !bytes.Equal(serialized, reserialized) {
			t.Errorf("%s: round trip changed canonical bytes", test.name)
		}
	}
}

// TestDeserializeV2Errors checks decode failures for truncated, padded and
// out-of-bound encodings.
func TestDeserializeV2Errors(t *testing.T) {
	valid, err := testTx().CanonicalBytesV2()
	if err != nil {
		t.Fatalf("CanonicalBytesV2: unexpected error: %v", err)
	}

	hugeCount := make([]byte, 12)
	binary.LittleEndian.PutUint32(hugeCount[0:], 1)
	binary.LittleEndian.PutUint64(hugeCount[4:], MaxTxInOuts+1)

	tests := []struct {
		name       string
		serialized []byte
	}{
		{"empty", nil},
		{"truncated header", valid[:3]},
		{"truncated mid-input", valid[:20]},
		{"truncated lock time", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte{}, valid...), 0)},
		{"input count over max", hugeCount},
	}
	for _, test := range tests {
		var tx MsgTx
		err := tx.DeserializeV2(test.serialized)
		if err == nil {
			t.Errorf("%s: expected error, got nil", test.name)
			continue
		}
		var ruleErr TxRuleError
		var ok bool
		if ruleErr, ok = err.(TxRuleError); !ok {
			t.Errorf("%s: expected TxRuleError, got %T", test.name, err)
			continue
		}
		if ruleErr.ErrorCode != ErrMalformedTx {
			t.Errorf("%s: expected ErrMalformedTx, got %v", test.name,
				ruleErr.ErrorCode)
		}
	}
}

// TestCheckSanity checks the structural bounds checks, that the v2
// canonicalization entry points refuse to produce bytes for invalid shapes,
// and that the v1 encoding still yields a legacy identity for them.
func TestCheckSanity(t *testing.T) {
	bigScript := make([]byte, MaxScriptSize+1)

	manyIn := NewMsgTx(1)
	for i := 0; i < MaxTxInOuts+1; i++ {
		manyIn.AddTxIn(NewTxIn(&Outpoint{}, nil))
	}
	manyOut := NewMsgTx(1)
	for i := 0; i < MaxTxInOuts+1; i++ {
		manyOut.AddTxOut(NewTxOut(0, nil))
	}
	bigSigScript := NewMsgTx(1)
	bigSigScript.AddTxIn(NewTxIn(&Outpoint{}, bigScript))
	bigPubKeyScript := NewMsgTx(1)
	bigPubKeyScript.AddTxOut(NewTxOut(0, bigScript))

	tests := []struct {
		name string
		tx   *MsgTx
		code TxErrorCode
	}{
		{"too many inputs", manyIn, ErrTooManyInputs},
		{"too many outputs", manyOut, ErrTooManyOutputs},
		{"oversized signature script", bigSigScript, ErrScriptTooLarge},
		{"oversized public key script", bigPubKeyScript, ErrScriptTooLarge},
	}
	for _, test := range tests {
		err := test.tx.CheckSanity()
		ruleErr, ok := err.(TxRuleError)
		if !ok {
			t.Errorf("%s: expected TxRuleError, got %T", test.name, err)
			continue
		}
		if ruleErr.ErrorCode != test.code {
			t.Errorf("%s: expected %v, got %v", test.name, test.code,
				ruleErr.ErrorCode)
		}
		if len(test.tx.CanonicalBytesV1()) == 0 {
			t.Errorf("%s: CanonicalBytesV1 produced no bytes", test.name)
		}
		if _, err := test.tx.CanonicalBytesV2(); err == nil {
			t.Errorf("%s: CanonicalBytesV2 accepted invalid transaction", test.name)
		}
		if _, err := test.tx.TxIDV2(); err == nil {
			t.Errorf("%s: TxIDV2 accepted invalid transaction", test.name)
		}
	}
}

// TestIsCoinBase checks only the zero-input shape counts as a coinbase; a
// null previous outpoint does not make an input-carrying transaction one.
func TestIsCoinBase(t *testing.T) {
	noInputs := NewMsgTx(1)
	noInputs.AddTxOut(NewTxOut(100, []byte{0x51}))

	nullInput := NewMsgTx(1)
	nullInput.AddTxIn(&TxIn{
		PreviousOutpoint: Outpoint{TxID: chainhash.ZeroHash, Index: math.MaxUint32},
		Sequence:         math.MaxUint32,
	})

	regular := NewMsgTx(1)
	regular.AddTxIn(NewTxIn(&Outpoint{TxID: chainhash.Hash{1}, Index: 0}, nil))

	tests := []struct {
		name string
		tx   *MsgTx
		want bool
	}{
		{"no inputs", noInputs, true},
		{"single null input", nullInput, false},
		{"regular spend", regular, false},
	}
	for _, test := range tests {
		if got := test.tx.IsCoinBase(); got != test.want {
			t.Errorf("%s: IsCoinBase = %v, want %v", test.name, got, test.want)
		}
	}
}

// TestOutpoints checks one outpoint per output in order under both txid
// versions, and that the versions disagree on the id.
func TestOutpoints(t *testing.T) {
	tx := testTx()
	for _, version := range []TxIDVersion{TxIDV1, TxIDV2} {
		outpoints, err := tx.Outpoints(version)
		if err != nil {
			t.Fatalf("Outpoints(%s): unexpected error: %v", version, err)
		}
		if len(outpoints) != len(tx.TxOut) {
			t.Fatalf("Outpoints(%s): got %d, want %d", version,
				len(outpoints), len(tx.TxOut))
		}
		wantID, err := tx.TxID(version)
		if err != nil {
			t.Fatalf("TxID(%s): unexpected error: %v", version, err)
		}
		for i, outpoint := range outpoints {
			if outpoint.TxID != wantID || outpoint.Index != uint32(i) {
				t.Fatalf("Outpoints(%s)[%d]: got %v", version, i, outpoint)
			}
		}
	}

	v1ID := tx.TxIDV1()
	v2ID, _ := tx.TxIDV2()
	if v1ID == v2ID {
		t.Fatal("v1 and v2 txids unexpectedly equal")
	}
}

// TestSigHashV2 checks the signing hash ignores signature scripts and leaves
// the transaction unmodified.
func TestSigHashV2(t *testing.T) {
	tx := testTx()
	before := tx.Copy()

	sigHash, err := tx.SigHashV2()
	if err != nil {
		t.Fatalf("SigHashV2: unexpected error: %v", err)
	}
	if !reflect.DeepEqual(tx, before) {
		t.Fatal("SigHashV2 modified the transaction")
	}

	mutated := tx.Copy()
	mutated.TxIn[0].SignatureScript = []byte{0xff, 0xfe}
	mutatedSigHash, err := mutated.SigHashV2()
	if err != nil {
		t.Fatalf("SigHashV2: unexpected error: %v", err)
	}
	if sigHash != mutatedSigHash {
		t.Fatal("SigHashV2 changed when only a signature script changed")
	}

	mutated.TxOut[0].Amount++
	changedSigHash, err := mutated.SigHashV2()
	if err != nil {
		t.Fatalf("SigHashV2: unexpected error: %v", err)
	}
	if changedSigHash == sigHash {
		t.Fatal("SigHashV2 did not change when an output changed")
	}
}

// TestTxCopy checks Copy produces an equal but independent transaction.
func TestTxCopy(t *testing.T) {
	tx := testTx()
	txCopy := tx.Copy()
	if !reflect.DeepEqual(tx, txCopy) {
		t.Fatal("copy is not equal to the original")
	}
	txCopy.TxIn[0].SignatureScript[0] ^= 0xff
	txCopy.TxOut[0].Amount++
	if reflect.DeepEqual(tx, txCopy) {
		t.Fatal("mutating the copy affected the original")
	}
}
