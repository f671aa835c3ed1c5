package mosaiq

import (
	"errors"

	"github.com/hejijunhao/mosaiq/internal/engine/embedder"
	"github.com/hejijunhao/mosaiq/internal/engine/taxonomy"
	"github.com/hejijunhao/mosaiq/internal/jobs"
	"github.com/hejijunhao/mosaiq/internal/store/sqlite"
)

var (
	// ErrModelUnavailable is wrapped by Service.ModelError when the model
	// could not be loaded.
	ErrModelUnavailable = embedder.ErrModelUnavailable
	// ErrServiceUnavailable is returned by classification calls while the
	// model is unavailable.
	ErrServiceUnavailable = embedder.ErrServiceUnavailable
	// ErrVocabularyLoad is returned by New for a missing or malformed vocabulary.
	ErrVocabularyLoad = embedder.ErrVocabularyLoad
	// ErrTaxonomyLoad is returned by New for a malformed taxonomy.
	ErrTaxonomyLoad = taxonomy.ErrTaxonomyLoad
	// ErrNotFound is returned for unknown concept ids.
	ErrNotFound = taxonomy.ErrNotFound
	// ErrContentNotFound is returned for unknown content ids in the store.
	ErrContentNotFound = sqlite.ErrContentNotFound
	// ErrJobFailed wraps the reason of a failed job.
	ErrJobFailed = jobs.ErrJobFailed
	// ErrQueueFull is returned when the job queue cannot take more work.
	ErrQueueFull = jobs.ErrQueueFull
	// ErrClosed is returned after Close.
	ErrClosed = jobs.ErrClosed
	// ErrNoContentSource is returned when an operation needs to load content
	// and no ContentSource or store is configured.
	ErrNoContentSource = jobs.ErrContentSourceRequired
	// ErrNoStore is returned by store operations without WithStorePath.
	ErrNoStore = errors.New("no content store configured")
	// ErrInvalidRequest is returned for requests that fail validation.
	ErrInvalidRequest = errors.New("invalid request")
)
