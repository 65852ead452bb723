package reindex

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// checkpoint is the persisted cursor of a migration run. Source entries are
// iterated in the store's stable key order, so the number of processed
// entries fully identifies the resume position.
type checkpoint struct {
	ProcessedEntries uint64        `json:"processed_entries"`
	TotalInputs      uint64        `json:"total_inputs"`
	TotalOutputs     uint64        `json:"total_outputs"`
	Skipped          uint64        `json:"skipped"`
	Errors           []ReportError `json:"errors"`
	StartedAt        time.Time     `json:"started_at"`
}

// loadCheckpoint reads a persisted checkpoint. Returns false when no
// checkpoint file exists, i.e. the run starts from zero.
func loadCheckpoint(path string) (*checkpoint, bool, error) {
	serialized, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WithStack(err)
	}
	cp := &checkpoint{}
	err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(serialized, cp)
	if err != nil {
		return nil, false, errors.Wrapf(err, "checkpoint file %s is corrupt", path)
	}
	return cp, true, nil
}

// save persists the checkpoint through a temporary file and a rename, so a
// crash mid-write never leaves a truncated checkpoint behind.
func (cp *checkpoint) save(path string) error {
	serialized, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(cp)
	if err != nil {
		return errors.Wrap(err, "could not serialize the checkpoint")
	}
	tmpPath := path + ".tmp"
	err = os.WriteFile(tmpPath, serialized, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmpPath, path))
}

// removeCheckpoint deletes the checkpoint file after a completed run.
func removeCheckpoint(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}
