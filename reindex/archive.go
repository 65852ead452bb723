package reindex

import (
	"bufio"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

// maxArchiveLineSize bounds a single archive line. A transaction at the
// structural limits serializes well below this.
const maxArchiveLineSize = 512 * 1024 * 1024

// byteArray decodes the archive's representation of byte sequences: a JSON
// array of decimal byte values.
type byteArray []byte

func (b *byteArray) UnmarshalJSON(data []byte) error {
	var values []uint16
	err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &values)
	if err != nil {
		return err
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v > 0xff {
			return errors.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// archiveTx mirrors one line of the transaction archive, which carries
// transactions in their v1 canonical form.
type archiveTx struct {
	Version int32 `json:"version"`
	Vin     []struct {
		Prevout struct {
			TxID byteArray `json:"txid"`
			Vout uint32    `json:"vout"`
		} `json:"prevout"`
		ScriptSig byteArray `json:"script_sig"`
		Sequence  uint32    `json:"sequence"`
	} `json:"vin"`
	Vout []struct {
		Value        uint64    `json:"value"`
		ScriptPubKey byteArray `json:"script_pubkey"`
	} `json:"vout"`
	LockTime uint32 `json:"lock_time"`
}

// toMsgTx converts a decoded archive line into a transaction.
func (atx *archiveTx) toMsgTx() (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(atx.Version)
	for _, in := range atx.Vin {
		if len(in.Prevout.TxID) != chainhash.HashSize {
			return nil, errors.Errorf("prevout txid is %d bytes, want %d",
				len(in.Prevout.TxID), chainhash.HashSize)
		}
		outpoint := wire.Outpoint{Index: in.Prevout.Vout}
		copy(outpoint.TxID[:], in.Prevout.TxID)
		txIn := wire.NewTxIn(&outpoint, in.ScriptSig)
		txIn.Sequence = in.Sequence
		tx.AddTxIn(txIn)
	}
	for _, out := range atx.Vout {
		tx.AddTxOut(wire.NewTxOut(out.Value, out.ScriptPubKey))
	}
	tx.LockTime = atx.LockTime
	return tx, nil
}

// loadTxIDMap streams the JSONL transaction archive and returns the v1→v2
// txid mapping. Structurally invalid transactions are recorded through
// onInvalid and left out of the map; a malformed line is treated as archive
// corruption and aborts the load.
func loadTxIDMap(archivePath string, onInvalid func(txIDV1 chainhash.Hash, err error)) (
	map[chainhash.Hash]chainhash.Hash, error) {

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	txIDMap := make(map[chainhash.Hash]chainhash.Hash)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxArchiveLineSize)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var atx archiveTx
		err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(line, &atx)
		if err != nil {
			return nil, errors.Wrapf(err, "archive line %d is malformed", lineNumber)
		}
		tx, err := atx.toMsgTx()
		if err != nil {
			return nil, errors.Wrapf(err, "archive line %d is malformed", lineNumber)
		}

		// The v1 txid is derived from the re-encoded canonical form of the
		// parsed transaction, not the raw line, so an archive writer that
		// emitted extra whitespace still maps to the id the source store is
		// keyed by. The v1 encoding is defined for structurally out-of-bounds
		// transactions too, so even invalid ones get their legacy identity.
		txIDV1 := tx.TxIDV1()
		if err := tx.CheckSanity(); err != nil {
			onInvalid(txIDV1, err)
			continue
		}
		txIDV2, err := tx.TxID(wire.TxIDV2)
		if err != nil {
			onInvalid(txIDV1, err)
			continue
		}
		txIDMap[txIDV1] = txIDV2
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading archive %s", archivePath)
	}

	log.Debugf("Loaded %d transactions from %d archive lines (%s)",
		len(txIDMap), lineNumber, archivePath)
	return txIDMap, nil
}
