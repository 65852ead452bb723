package reindex

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tenebrium/tenebriumd/blockchain"
	"github.com/tenebrium/tenebriumd/dbaccess"
	"github.com/tenebrium/tenebriumd/wire"
)

func openTestDB(t *testing.T, name string) *dbaccess.DatabaseContext {
	t.Helper()
	databaseContext, err := dbaccess.New(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() {
		databaseContext.Close()
	})
	return databaseContext
}

// buildTestTxs returns n single-output transactions with distinct scripts.
func buildTestTxs(n int) []*wire.MsgTx {
	txs := make([]*wire.MsgTx, n)
	for i := range txs {
		tx := wire.NewMsgTx(1)
		tx.AddTxOut(wire.NewTxOut(uint64(1000*(i+1)), []byte{0x51, byte(i)}))
		txs[i] = tx
	}
	return txs
}

// writeArchive writes the given transactions as a JSONL archive of their v1
// canonical forms.
func writeArchive(t *testing.T, path string, txs []*wire.MsgTx) {
	t.Helper()
	var buf bytes.Buffer
	for _, tx := range txs {
		buf.Write(tx.CanonicalBytesV1())
		buf.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// populateSource writes every output of the given transactions into the
// source store under its v1 outpoint key.
func populateSource(t *testing.T, source *dbaccess.DatabaseContext, txs []*wire.MsgTx) {
	t.Helper()
	for _, tx := range txs {
		outpoints, err := tx.Outpoints(wire.TxIDV1)
		require.NoError(t, err)
		for i, outpoint := range outpoints {
			entry := &blockchain.UTXOEntry{
				Amount:       tx.TxOut[i].Amount,
				ScriptPubKey: tx.TxOut[i].ScriptPubKey,
			}
			err := dbaccess.AddToUTXOSet(source,
				blockchain.SerializeOutpointKey(outpoint),
				blockchain.SerializeUTXOEntry(entry))
			require.NoError(t, err)
		}
	}
}

func countEntries(t *testing.T, databaseContext *dbaccess.DatabaseContext) uint64 {
	t.Helper()
	cursor, err := dbaccess.UTXOSetCursor(databaseContext)
	require.NoError(t, err)
	defer cursor.Close()
	count := uint64(0)
	for ok := cursor.First(); ok; ok = cursor.Next() {
		count++
	}
	return count
}

// TestMigrationWithMissingTx runs the migration over a 10-entry source whose
// archive lacks one originating transaction: the entry is skipped, recorded
// as MissingTx, and everything else lands in the destination.
func TestMigrationWithMissingTx(t *testing.T) {
	txs := buildTestTxs(10)
	missing := txs[6]

	source := openTestDB(t, "source")
	destination := openTestDB(t, "destination")
	populateSource(t, source, txs)

	archivePath := filepath.Join(t.TempDir(), "archive.jsonl")
	writeArchive(t, archivePath, append(append([]*wire.MsgTx{}, txs[:6]...), txs[7:]...))

	migrator := NewMigrator(&Config{
		Source:      source,
		Destination: destination,
		ArchivePath: archivePath,
	})
	report, err := migrator.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, uint64(10), report.TotalInputs)
	require.Equal(t, uint64(9), report.TotalOutputs)
	require.Equal(t, uint64(1), report.Skipped)
	require.Len(t, report.Errors, 1)
	require.Equal(t, ErrorKindMissingTx, report.Errors[0].Kind)

	missingTxIDV1, err := missing.TxID(wire.TxIDV1)
	require.NoError(t, err)
	require.Equal(t, missingTxIDV1.String(), report.Errors[0].TxIDV1)

	require.Equal(t, uint64(9), countEntries(t, destination))

	// Every migrated entry is reachable under its v2 key with the source's
	// exact value.
	for i, tx := range txs {
		if i == 6 {
			continue
		}
		v1Outpoints, err := tx.Outpoints(wire.TxIDV1)
		require.NoError(t, err)
		v2Outpoints, err := tx.Outpoints(wire.TxIDV2)
		require.NoError(t, err)
		sourceValue, err := dbaccess.GetFromUTXOSet(source,
			blockchain.SerializeOutpointKey(v1Outpoints[0]))
		require.NoError(t, err)
		destinationValue, err := dbaccess.GetFromUTXOSet(destination,
			blockchain.SerializeOutpointKey(v2Outpoints[0]))
		require.NoError(t, err)
		require.Equal(t, sourceValue, destinationValue)
	}

	require.NoError(t, migrator.Verify())
}

// TestDryRunWritesNothing checks a dry run reports the same counters as a
// real run while leaving the destination untouched, and is repeatable.
func TestDryRunWritesNothing(t *testing.T) {
	txs := buildTestTxs(10)
	source := openTestDB(t, "source")
	destination := openTestDB(t, "destination")
	populateSource(t, source, txs)

	archivePath := filepath.Join(t.TempDir(), "archive.jsonl")
	writeArchive(t, archivePath, txs[:9])

	migrator := NewMigrator(&Config{
		Source:      source,
		Destination: destination,
		ArchivePath: archivePath,
		DryRun:      true,
	})
	for run := 0; run < 2; run++ {
		report, err := migrator.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(10), report.TotalInputs)
		require.Equal(t, uint64(9), report.TotalOutputs)
		require.Equal(t, uint64(1), report.Skipped)
		require.Equal(t, uint64(0), countEntries(t, destination))
		require.NoError(t, migrator.VerifyDryRun(report))

		// Tampered counters fail the dry-run verification.
		tampered := *report
		tampered.TotalOutputs++
		err = migrator.VerifyDryRun(&tampered)
		require.Error(t, err)
		require.Contains(t, err.Error(), "verification mismatch")
	}
}

// TestResumeFromCheckpoint interrupts a run at a checkpoint boundary and
// resumes it with a fresh migrator, expecting the combined runs to produce a
// complete, verified destination.
func TestResumeFromCheckpoint(t *testing.T) {
	txs := buildTestTxs(10)
	source := openTestDB(t, "source")
	destination := openTestDB(t, "destination")
	populateSource(t, source, txs)

	archivePath := filepath.Join(t.TempDir(), "archive.jsonl")
	writeArchive(t, archivePath, txs)
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")

	config := &Config{
		Source:             source,
		Destination:        destination,
		ArchivePath:        archivePath,
		CheckpointPath:     checkpointPath,
		CheckpointInterval: 4,
	}

	// A canceled context stops the run at the first checkpoint boundary,
	// after the batch was committed and the checkpoint written.
	canceledCtx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := NewMigrator(config).Run(canceledCtx)
	require.Error(t, err)
	require.Equal(t, uint64(4), report.TotalInputs)
	require.FileExists(t, checkpointPath)
	require.Equal(t, uint64(4), countEntries(t, destination))

	// The resumed run picks up from the checkpoint and finishes.
	resumed := NewMigrator(config)
	report, err = resumed.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(10), report.TotalInputs)
	require.Equal(t, uint64(10), report.TotalOutputs)
	require.Equal(t, uint64(0), report.Skipped)
	require.Equal(t, uint64(10), countEntries(t, destination))
	require.NoFileExists(t, checkpointPath)
	require.NoError(t, resumed.Verify())
}

// TestVerifyDetectsTampering checks verification fails on a tampered or
// padded destination.
func TestVerifyDetectsTampering(t *testing.T) {
	txs := buildTestTxs(6)
	source := openTestDB(t, "source")
	destination := openTestDB(t, "destination")
	populateSource(t, source, txs)

	archivePath := filepath.Join(t.TempDir(), "archive.jsonl")
	writeArchive(t, archivePath, txs)

	migrator := NewMigrator(&Config{
		Source:      source,
		Destination: destination,
		ArchivePath: archivePath,
		SampleSize:  16,
	})
	_, err := migrator.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, migrator.Verify())

	// Overwrite one destination entry with a different value.
	v2Outpoints, err := txs[2].Outpoints(wire.TxIDV2)
	require.NoError(t, err)
	tampered := blockchain.SerializeUTXOEntry(&blockchain.UTXOEntry{
		Amount:       1,
		ScriptPubKey: []byte{0x00},
	})
	require.NoError(t, dbaccess.AddToUTXOSet(destination,
		blockchain.SerializeOutpointKey(v2Outpoints[0]), tampered))

	err = migrator.Verify()
	require.Error(t, err)
	require.Contains(t, err.Error(), "verification mismatch")
}

// TestFatalOnCorruptArchive checks a malformed archive line aborts the run
// before any destination write.
func TestFatalOnCorruptArchive(t *testing.T) {
	txs := buildTestTxs(3)
	source := openTestDB(t, "source")
	destination := openTestDB(t, "destination")
	populateSource(t, source, txs)

	archivePath := filepath.Join(t.TempDir(), "archive.jsonl")
	corrupt := append(txs[0].CanonicalBytesV1(), []byte("\n{\"version\":")...)
	require.NoError(t, os.WriteFile(archivePath, corrupt, 0644))

	migrator := NewMigrator(&Config{
		Source:      source,
		Destination: destination,
		ArchivePath: archivePath,
	})
	_, err := migrator.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, uint64(0), countEntries(t, destination))
}

// TestInvalidArchiveTransaction checks a structurally out-of-bounds archive
// transaction is recorded and its outputs treated as unresolvable.
func TestInvalidArchiveTransaction(t *testing.T) {
	txs := buildTestTxs(3)
	source := openTestDB(t, "source")
	destination := openTestDB(t, "destination")
	populateSource(t, source, txs)

	// An oversized script cannot pass sanity, but the line itself is
	// well-formed JSON and the v1 encoding is still defined for it.
	invalid := wire.NewMsgTx(1)
	invalid.AddTxOut(wire.NewTxOut(1, make([]byte, wire.MaxScriptSize+1)))

	archivePath := filepath.Join(t.TempDir(), "archive.jsonl")
	writeArchive(t, archivePath, txs)
	file, err := os.OpenFile(archivePath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = file.Write(append(invalid.CanonicalBytesV1(), '\n'))
	require.NoError(t, err)
	require.NoError(t, file.Close())

	migrator := NewMigrator(&Config{
		Source:      source,
		Destination: destination,
		ArchivePath: archivePath,
	})
	report, err := migrator.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), report.TotalInputs)
	require.Equal(t, uint64(3), report.TotalOutputs)
	require.Equal(t, uint64(0), report.Skipped)
	require.Len(t, report.Errors, 1)
	require.Equal(t, ErrorKindInvalidTx, report.Errors[0].Kind)
	require.Equal(t, invalid.TxIDV1().String(), report.Errors[0].TxIDV1)
}

// TestNonCanonicalArchiveLines checks entries still resolve when the archive
// writer emitted valid but non-canonical JSON, since the v1 txid is derived
// from the re-encoded transaction rather than the raw line.
func TestNonCanonicalArchiveLines(t *testing.T) {
	txs := buildTestTxs(3)
	source := openTestDB(t, "source")
	destination := openTestDB(t, "destination")
	populateSource(t, source, txs)

	var buf bytes.Buffer
	for _, tx := range txs {
		line := tx.CanonicalBytesV1()
		line = bytes.Replace(line, []byte(`"version":`), []byte(`"version": `), 1)
		line = append(line, ' ')
		buf.Write(line)
		buf.WriteByte('\n')
	}
	archivePath := filepath.Join(t.TempDir(), "archive.jsonl")
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0644))

	migrator := NewMigrator(&Config{
		Source:      source,
		Destination: destination,
		ArchivePath: archivePath,
	})
	report, err := migrator.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), report.TotalInputs)
	require.Equal(t, uint64(3), report.TotalOutputs)
	require.Equal(t, uint64(0), report.Skipped)
	require.Empty(t, report.Errors)
	require.Equal(t, uint64(3), countEntries(t, destination))
	require.NoError(t, migrator.Verify())
}
