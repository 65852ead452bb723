package wire

import "strconv"

// CanonicalBytesV1 returns the legacy v1 canonical encoding of the
// transaction: compact JSON with a fixed field order and byte sequences
// rendered as arrays of decimal integers:
//
//	{"version":N,"vin":[{"prevout":{"txid":[...],"vout":N},
//	 "script_sig":[...],"sequence":N}],
//	 "vout":[{"value":N,"script_pubkey":[...]}],"lock_time":N}
//
// No insignificant whitespace is emitted and no float formatting is involved,
// so the output is byte-identical across platforms. Unlike the v2 encoding
// this one is defined for any transaction, in or out of structural bounds, so
// the legacy identity of an oversized transaction can still be derived and
// reported.
func (msg *MsgTx) CanonicalBytesV1() []byte {
	buf := make([]byte, 0, 512)
	buf = append(buf, `{"version":`...)
	buf = strconv.AppendInt(buf, int64(msg.Version), 10)
	buf = append(buf, `,"vin":[`...)
	for i, txIn := range msg.TxIn {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, `{"prevout":{"txid":`...)
		buf = appendJSONByteArray(buf, txIn.PreviousOutpoint.TxID[:])
		buf = append(buf, `,"vout":`...)
		buf = strconv.AppendUint(buf, uint64(txIn.PreviousOutpoint.Index), 10)
		buf = append(buf, `},"script_sig":`...)
		buf = appendJSONByteArray(buf, txIn.SignatureScript)
		buf = append(buf, `,"sequence":`...)
		buf = strconv.AppendUint(buf, uint64(txIn.Sequence), 10)
		buf = append(buf, '}')
	}
	buf = append(buf, `],"vout":[`...)
	for i, txOut := range msg.TxOut {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, `{"value":`...)
		buf = strconv.AppendUint(buf, txOut.Amount, 10)
		buf = append(buf, `,"script_pubkey":`...)
		buf = appendJSONByteArray(buf, txOut.ScriptPubKey)
		buf = append(buf, '}')
	}
	buf = append(buf, `],"lock_time":`...)
	buf = strconv.AppendUint(buf, uint64(msg.LockTime), 10)
	buf = append(buf, '}')
	return buf
}

// appendJSONByteArray appends b to buf as a JSON array of decimal integers,
// e.g. [1,2,255]. An empty or nil slice renders as [].
func appendJSONByteArray(buf []byte, b []byte) []byte {
	buf = append(buf, '[')
	for i, v := range b {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(v), 10)
	}
	return append(buf, ']')
}
