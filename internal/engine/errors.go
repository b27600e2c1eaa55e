package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// BatchFetchError reports that a chunk of parent records could not be
// read. It is systemic: the run stops without end_ingest.
type BatchFetchError struct {
	// Chunk is the 1-based index of the failed chunk.
	Chunk int

	// IDs are the parent ids that were requested.
	IDs []int

	Err error
}

// Error implements the error interface.
func (e *BatchFetchError) Error() string {
	return fmt.Sprintf("batch fetch of %d parent records failed (chunk %d, ids %d..%d): %v",
		len(e.IDs), e.Chunk, first(e.IDs), last(e.IDs), e.Err)
}

func (e *BatchFetchError) Unwrap() error {
	return e.Err
}

// IsBatchFetchError reports whether err is, or wraps, a BatchFetchError.
func IsBatchFetchError(err error) bool {
	var be *BatchFetchError
	return errors.As(err, &be)
}

func newBatchFetchError(chunk int, ids []int, err error) error {
	return errors.WithHint(
		&BatchFetchError{Chunk: chunk, IDs: ids, Err: err},
		"the backend or network is unusable; re-run with --skip-via-log pointing at this run's log to resume",
	)
}

// errorResult extracts what an event's "result" field should echo.
// Remote errors that carry a response body expose it via Payload.
func errorResult(err error) any {
	var p interface{ Payload() any }
	if errors.As(err, &p) {
		return p.Payload()
	}
	return err.Error()
}

func first(ids []int) int {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

func last(ids []int) int {
	if len(ids) == 0 {
		return 0
	}
	return ids[len(ids)-1]
}
