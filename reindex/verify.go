package reindex

import (
	"bytes"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/tenebrium/tenebriumd/blockchain"
	"github.com/tenebrium/tenebriumd/dbaccess"
	"github.com/tenebrium/tenebriumd/util/chainhash"
	"github.com/tenebrium/tenebriumd/wire"
)

// Verify checks a completed migration end-to-end: the destination must hold
// exactly the source's resolvable entries, and a random sample of destination
// entries is re-derived from the source and compared byte-for-byte. Any
// mismatch is fatal.
func (m *Migrator) Verify() error {
	err := m.loadMap(nil)
	if err != nil {
		return err
	}
	reverseMap := make(map[chainhash.Hash]chainhash.Hash, len(m.txIDMap))
	for v1, v2 := range m.txIDMap {
		reverseMap[v2] = v1
	}

	// Count the source entries that resolve through the archive. The rest
	// were necessarily skipped.
	sourceResolvable := uint64(0)
	sourceCursor, err := dbaccess.UTXOSetCursor(m.config.Source)
	if err != nil {
		return err
	}
	defer sourceCursor.Close()
	for ok := sourceCursor.First(); ok; ok = sourceCursor.Next() {
		key, err := sourceCursor.Key()
		if err != nil {
			return err
		}
		outpointV1, err := blockchain.DeserializeOutpointKey(key.Suffix())
		if err != nil {
			return errors.Wrap(err, "source entry has a corrupt key")
		}
		if _, ok := m.txIDMap[outpointV1.TxID]; ok {
			sourceResolvable++
		}
	}

	// Count the destination and reservoir-sample keys for re-derivation.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sample := make([]wire.Outpoint, 0, m.config.SampleSize)
	destinationCount := uint64(0)
	destinationCursor, err := dbaccess.UTXOSetCursor(m.config.Destination)
	if err != nil {
		return err
	}
	defer destinationCursor.Close()
	for ok := destinationCursor.First(); ok; ok = destinationCursor.Next() {
		key, err := destinationCursor.Key()
		if err != nil {
			return err
		}
		outpointV2, err := blockchain.DeserializeOutpointKey(key.Suffix())
		if err != nil {
			return errors.Wrap(err, "destination entry has a corrupt key")
		}
		destinationCount++
		if len(sample) < m.config.SampleSize {
			sample = append(sample, outpointV2)
		} else if i := rng.Intn(int(destinationCount)); i < m.config.SampleSize {
			sample[i] = outpointV2
		}
	}

	if destinationCount != sourceResolvable {
		return errors.Errorf("verification mismatch: destination holds %d "+
			"entries but the source resolves %d", destinationCount, sourceResolvable)
	}

	for _, outpointV2 := range sample {
		v1TxID, ok := reverseMap[outpointV2.TxID]
		if !ok {
			return errors.Errorf("verification mismatch: destination entry %s "+
				"has no originating transaction in the archive", outpointV2)
		}
		outpointV1 := wire.Outpoint{TxID: v1TxID, Index: outpointV2.Index}
		sourceValue, err := dbaccess.GetFromUTXOSet(m.config.Source,
			blockchain.SerializeOutpointKey(outpointV1))
		if err != nil {
			return errors.Wrapf(err, "verification mismatch: destination entry "+
				"%s has no source counterpart %s", outpointV2, outpointV1)
		}
		destinationValue, err := dbaccess.GetFromUTXOSet(m.config.Destination,
			blockchain.SerializeOutpointKey(outpointV2))
		if err != nil {
			return err
		}
		if !bytes.Equal(sourceValue, destinationValue) {
			return errors.Errorf("verification mismatch: entry %s differs "+
				"from its source counterpart %s", outpointV2, outpointV1)
		}
	}

	log.Infof("Verification passed: %d entries, %d sampled", destinationCount,
		len(sample))
	return nil
}

// VerifyDryRun checks a dry run's accounting without touching the
// destination: the report's counters must balance, the source must resolve
// exactly TotalOutputs entries through the archive, and a random sample of
// resolvable entries is re-derived end-to-end short of the write itself.
func (m *Migrator) VerifyDryRun(report *Report) error {
	if report.TotalOutputs != report.TotalInputs-report.Skipped {
		return errors.Errorf("verification mismatch: %d outputs from %d inputs "+
			"with %d skipped", report.TotalOutputs, report.TotalInputs, report.Skipped)
	}
	err := m.loadMap(nil)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sample := make([]wire.Outpoint, 0, m.config.SampleSize)
	resolvable := uint64(0)
	cursor, err := dbaccess.UTXOSetCursor(m.config.Source)
	if err != nil {
		return err
	}
	defer cursor.Close()
	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return err
		}
		outpointV1, err := blockchain.DeserializeOutpointKey(key.Suffix())
		if err != nil {
			return errors.Wrap(err, "source entry has a corrupt key")
		}
		if _, ok := m.txIDMap[outpointV1.TxID]; !ok {
			continue
		}
		resolvable++
		if len(sample) < m.config.SampleSize {
			sample = append(sample, outpointV1)
		} else if i := rng.Intn(int(resolvable)); i < m.config.SampleSize {
			sample[i] = outpointV1
		}
	}

	if resolvable != report.TotalOutputs {
		return errors.Errorf("verification mismatch: the source resolves %d "+
			"entries but the run reported %d", resolvable, report.TotalOutputs)
	}

	for _, outpointV1 := range sample {
		value, err := dbaccess.GetFromUTXOSet(m.config.Source,
			blockchain.SerializeOutpointKey(outpointV1))
		if err != nil {
			return err
		}
		if _, err := blockchain.DeserializeUTXOEntry(value); err != nil {
			return errors.Wrapf(err, "source entry for %s is corrupt", outpointV1)
		}
		outpointV2 := wire.Outpoint{
			TxID:  m.txIDMap[outpointV1.TxID],
			Index: outpointV1.Index,
		}
		roundTripped, err := blockchain.DeserializeOutpointKey(
			blockchain.SerializeOutpointKey(outpointV2))
		if err != nil {
			return err
		}
		if roundTripped != outpointV2 {
			return errors.Errorf("verification mismatch: destination key for %s "+
				"does not round-trip", outpointV2)
		}
	}

	log.Infof("Dry-run verification passed: %d resolvable entries, %d sampled",
		resolvable, len(sample))
	return nil
}
