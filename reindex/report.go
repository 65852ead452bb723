package reindex

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ErrorKind classifies the per-entry problems a migration run records.
type ErrorKind string

const (
	// ErrorKindMissingTx marks a source entry whose originating transaction
	// is absent from the archive. Recoverable: the entry is skipped.
	ErrorKindMissingTx ErrorKind = "MissingTx"

	// ErrorKindInvalidTx marks an archive transaction that fails structural
	// sanity. Its outputs become unresolvable.
	ErrorKindInvalidTx ErrorKind = "InvalidTx"

	// ErrorKindDuplicateOutPoint marks a destination key that was already
	// occupied when the migration tried to write it.
	ErrorKindDuplicateOutPoint ErrorKind = "DuplicateOutPoint"

	// ErrorKindOther marks recoverable problems outside the above.
	ErrorKindOther ErrorKind = "Other"
)

// ReportError is one recorded per-entry problem.
type ReportError struct {
	Kind    ErrorKind `json:"kind"`
	TxIDV1  string    `json:"txid_v1"`
	Message string    `json:"message"`
}

// Report summarizes a migration run. TotalInputs counts source entries
// examined, TotalOutputs entries written (or, in a dry run, that would have
// been written) to the destination.
type Report struct {
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	TotalInputs  uint64        `json:"total_inputs"`
	TotalOutputs uint64        `json:"total_outputs"`
	Skipped      uint64        `json:"skipped"`
	Errors       []ReportError `json:"errors"`
}

// Save writes the report as an indented JSON document.
func (r *Report) Save(path string) error {
	serialized, err := jsoniter.ConfigCompatibleWithStandardLibrary.
		MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize the reindex report")
	}
	err = os.WriteFile(path, serialized, 0644)
	return errors.WithStack(err)
}
