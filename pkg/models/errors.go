package models

import "errors"

// Failure kinds reported by the novelty pipeline.
// Extraction problems are never errors; they surface as diagnostics.
var (
	// ErrEmptyCorpus indicates there is no reference document to compare against.
	ErrEmptyCorpus = errors.New("no prior patents in the corpus")

	// ErrExternalCapability indicates the embedding or generation call failed.
	ErrExternalCapability = errors.New("external capability failure")

	// ErrCapabilityTimeout indicates the embedding or generation call did not finish in time.
	ErrCapabilityTimeout = errors.New("external capability timeout")

	// ErrCorpusWriteConflict indicates a concurrent write held the corpus entry.
	ErrCorpusWriteConflict = errors.New("corpus write conflict")

	// ErrCorpusStorage indicates the corpus backend failed to persist a record.
	ErrCorpusStorage = errors.New("corpus storage failure")

	// ErrDimensionMismatch indicates an embedding does not match the corpus dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound indicates a corpus entry does not exist.
	ErrNotFound = errors.New("not found")
)

// Machine-readable error kinds.
const (
	KindEmptyCorpus         = "empty_corpus"
	KindCapabilityFailure   = "external_capability_failure"
	KindCapabilityTimeout   = "external_capability_timeout"
	KindCorpusWriteConflict = "corpus_write_conflict"
	KindCorpusStorage       = "corpus_storage_failure"
	KindDimensionMismatch   = "dimension_mismatch"
	KindNotFound            = "not_found"
	KindInternal            = "internal"
)

// ErrorKind maps an error to its machine-readable kind.
// Timeouts are checked before generic capability failures since they wrap both.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyCorpus):
		return KindEmptyCorpus
	case errors.Is(err, ErrCapabilityTimeout):
		return KindCapabilityTimeout
	case errors.Is(err, ErrExternalCapability):
		return KindCapabilityFailure
	case errors.Is(err, ErrCorpusWriteConflict):
		return KindCorpusWriteConflict
	case errors.Is(err, ErrCorpusStorage):
		return KindCorpusStorage
	case errors.Is(err, ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
