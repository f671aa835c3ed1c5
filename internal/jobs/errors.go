package jobs

import (
	"errors"

	"github.com/hejijunhao/mosaiq/internal/engine/embedder"
)

var (
	// ErrServiceUnavailable is returned at once when the embedding model is
	// disabled. It is the same value the embedder returns.
	ErrServiceUnavailable = embedder.ErrServiceUnavailable

	// ErrQueueFull is returned when the admission queue has no room.
	ErrQueueFull = errors.New("classification queue full")

	// ErrClosed is returned after the manager has been closed.
	ErrClosed = errors.New("job manager closed")

	// ErrJobFailed wraps the reason a job ended in the failed state.
	ErrJobFailed = errors.New("classification job failed")

	// ErrClassifierRequired is returned by NewManager without a classifier.
	ErrClassifierRequired = errors.New("classifier is required")

	// ErrContentSourceRequired is returned by BatchReclassify when no
	// content source is configured.
	ErrContentSourceRequired = errors.New("content source is required")

	// ErrEmptyContentID is returned for a blank content id.
	ErrEmptyContentID = errors.New("content id is empty")
)
