package reindex

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/tenebrium/tenebriumd/blockchain"
	"github.com/tenebrium/tenebriumd/dbaccess"
	"github.com/tenebrium/tenebriumd/logger"
	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

const (
	// defaultCheckpointInterval is the number of source entries between
	// checkpoint commits when the config leaves it zero.
	defaultCheckpointInterval = 1000

	// defaultSampleSize is the number of destination entries re-derived
	// end-to-end during verification when the config leaves it zero.
	defaultSampleSize = 16
)

// Config describes one migration run from a v1-keyed UTXO store to a
// v2-keyed one.
type Config struct {
	// Source holds the v1-keyed UTXO set. It is only ever read.
	Source *dbaccess.DatabaseContext

	// Destination receives the v2-keyed entries.
	Destination *dbaccess.DatabaseContext

	// ArchivePath points at the JSONL transaction archive used to resolve
	// v1 txids to v2 txids.
	ArchivePath string

	// CheckpointPath is where the resume cursor is persisted. Empty
	// disables checkpointing (and resume).
	CheckpointPath string

	// CheckpointInterval is the number of source entries per checkpoint.
	CheckpointInterval uint64

	// DryRun performs the full pass without writing to the destination or
	// the checkpoint file.
	DryRun bool

	// SampleSize is the number of entries re-derived during Verify.
	SampleSize int
}

// Migrator executes the one-time UTXO reindexing migration.
type Migrator struct {
	config  Config
	txIDMap map[chainhash.Hash]chainhash.Hash
}

// NewMigrator returns a migrator for the given configuration.
func NewMigrator(config *Config) *Migrator {
	cfg := *config
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = defaultCheckpointInterval
	}
	if cfg.SampleSize == 0 {
		cfg.SampleSize = defaultSampleSize
	}
	return &Migrator{config: cfg}
}

// loadMap builds (or reuses) the v1→v2 txid mapping, recording structurally
// invalid archive transactions on the given state.
func (m *Migrator) loadMap(state *checkpoint) error {
	if m.txIDMap != nil {
		return nil
	}
	txIDMap, err := loadTxIDMap(m.config.ArchivePath, func(txIDV1 chainhash.Hash, cause error) {
		log.Warnf("Archive transaction %s is invalid: %s", txIDV1, cause)
		if state != nil {
			state.Errors = append(state.Errors, ReportError{
				Kind:    ErrorKindInvalidTx,
				TxIDV1:  txIDV1.String(),
				Message: cause.Error(),
			})
		}
	})
	if err != nil {
		return err
	}
	m.txIDMap = txIDMap
	return nil
}

// Run performs the migration. It resumes from a persisted checkpoint when one
// exists, honors cancellation only at checkpoint boundaries, and returns the
// run's report. Structural corruption of the source or archive and store I/O
// failures are fatal and abort before any further writes.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	defer logger.LogAndMeasureExecutionTime(log, "reindex.Run")()

	state := &checkpoint{StartedAt: time.Now()}
	if m.config.CheckpointPath != "" && !m.config.DryRun {
		loaded, exists, err := loadCheckpoint(m.config.CheckpointPath)
		if err != nil {
			return nil, err
		}
		if exists {
			state = loaded
			log.Infof("Resuming migration from checkpoint: %d entries already processed",
				state.ProcessedEntries)
		}
	}

	// Invalid archive transactions are only recorded on a fresh run;
	// resumed runs already carry them in the checkpoint.
	recordInvalid := state
	if state.ProcessedEntries > 0 {
		recordInvalid = nil
	}
	err := m.loadMap(recordInvalid)
	if err != nil {
		return nil, err
	}

	err = m.migrateEntries(ctx, state)
	report := &Report{
		StartedAt:    state.StartedAt,
		FinishedAt:   time.Now(),
		TotalInputs:  state.TotalInputs,
		TotalOutputs: state.TotalOutputs,
		Skipped:      state.Skipped,
		Errors:       state.Errors,
	}
	if report.Errors == nil {
		report.Errors = []ReportError{}
	}
	if err != nil {
		return report, err
	}

	if m.config.CheckpointPath != "" && !m.config.DryRun {
		err := removeCheckpoint(m.config.CheckpointPath)
		if err != nil {
			return report, err
		}
	}
	log.Infof("Migration finished: %d entries in, %d written, %d skipped",
		report.TotalInputs, report.TotalOutputs, report.Skipped)
	return report, nil
}

// migrateEntries iterates the source UTXO set in stable key order, skipping
// entries a previous run already processed, and writes the remapped entries
// in batches of CheckpointInterval.
func (m *Migrator) migrateEntries(ctx context.Context, state *checkpoint) error {
	cursor, err := dbaccess.UTXOSetCursor(m.config.Source)
	if err != nil {
		return err
	}
	defer cursor.Close()

	var batch *dbaccess.TxContext
	// writtenInBatch tracks keys staged in the open batch, which are not
	// yet visible through reads of the destination.
	writtenInBatch := make(map[wire.Outpoint]struct{})
	batchSize := uint64(0)

	commitBatch := func() error {
		batchSize = 0
		if batch != nil {
			err := batch.Commit()
			if err != nil {
				return err
			}
			batch = nil
			writtenInBatch = make(map[wire.Outpoint]struct{})
		}
		if m.config.CheckpointPath != "" && !m.config.DryRun {
			return state.save(m.config.CheckpointPath)
		}
		return nil
	}
	defer func() {
		if batch != nil {
			batch.RollbackUnlessClosed()
		}
	}()

	position := uint64(0)
	for ok := cursor.First(); ok; ok = cursor.Next() {
		position++
		if position <= state.ProcessedEntries {
			continue
		}

		key, err := cursor.Key()
		if err != nil {
			return err
		}
		value, err := cursor.Value()
		if err != nil {
			return err
		}
		outpointV1, err := blockchain.DeserializeOutpointKey(key.Suffix())
		if err != nil {
			return errors.Wrapf(err, "source entry %d has a corrupt key", position)
		}
		// Decoding validates the entry's structure; the raw value is what
		// gets copied.
		_, err = blockchain.DeserializeUTXOEntry(value)
		if err != nil {
			return errors.Wrapf(err, "source entry for %s is corrupt", outpointV1)
		}

		state.ProcessedEntries = position
		state.TotalInputs++

		txIDV2, ok := m.txIDMap[outpointV1.TxID]
		if !ok {
			state.Skipped++
			state.Errors = append(state.Errors, ReportError{
				Kind:   ErrorKindMissingTx,
				TxIDV1: outpointV1.TxID.String(),
				Message: fmt.Sprintf("no originating transaction for outpoint %s "+
					"in the archive", outpointV1),
			})
			log.Warnf("Skipping %s: originating transaction not in the archive",
				outpointV1)
			continue
		}
		outpointV2 := wire.Outpoint{TxID: txIDV2, Index: outpointV1.Index}

		if !m.config.DryRun {
			duplicate, err := m.isDestinationDuplicate(outpointV2, writtenInBatch)
			if err != nil {
				return err
			}
			if duplicate {
				state.Skipped++
				state.Errors = append(state.Errors, ReportError{
					Kind:    ErrorKindDuplicateOutPoint,
					TxIDV1:  outpointV1.TxID.String(),
					Message: fmt.Sprintf("destination already holds %s", outpointV2),
				})
				continue
			}
			if batch == nil {
				batch, err = m.config.Destination.NewTx()
				if err != nil {
					return err
				}
			}
			err = dbaccess.AddToUTXOSet(batch,
				blockchain.SerializeOutpointKey(outpointV2), value)
			if err != nil {
				return err
			}
			writtenInBatch[outpointV2] = struct{}{}
		}
		state.TotalOutputs++
		batchSize++

		if batchSize >= m.config.CheckpointInterval {
			err := commitBatch()
			if err != nil {
				return err
			}
			// Cancellation is honored only here, with the batch committed
			// and the checkpoint persisted, so a resumed run continues
			// from a consistent boundary.
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "migration interrupted at checkpoint boundary")
			}
		}
	}
	return commitBatch()
}

// isDestinationDuplicate reports whether the destination, including the open
// batch, already holds the given outpoint.
func (m *Migrator) isDestinationDuplicate(outpoint wire.Outpoint,
	writtenInBatch map[wire.Outpoint]struct{}) (bool, error) {

	if _, ok := writtenInBatch[outpoint]; ok {
		return true, nil
	}
	return dbaccess.HasUTXOEntry(m.config.Destination,
		blockchain.SerializeOutpointKey(outpoint))
}
