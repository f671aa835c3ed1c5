package mosaiq

import (
	"github.com/hejijunhao/mosaiq/internal/jobs"
	"github.com/hejijunhao/mosaiq/internal/model"
)

type (
	// Content is a saved item to classify.
	Content = model.Content
	// Concept is a taxonomy node.
	Concept = model.Concept
	// Classification tags content with a concept and a confidence in [0,1].
	Classification = model.ConceptClassification
	// JobState is the lifecycle state of a classification job.
	JobState = model.JobState
	// JobStatus is a snapshot of a classification job.
	JobStatus = model.JobStatus
	// ProgressEvent reports a job transition or a settled batch item.
	ProgressEvent = model.ProgressEvent
	// Batch is a running batch reclassification.
	Batch = jobs.Batch
	// BatchSummary is the final tally of a batch.
	BatchSummary = jobs.BatchSummary

	// ContentSource resolves content ids for item and batch classification.
	ContentSource = jobs.ContentSource
	// Recorder persists completed classifications.
	Recorder = jobs.Recorder
	// ProgressSink receives every progress event.
	ProgressSink = jobs.Sink
)

// Job states.
const (
	JobQueued    = model.JobQueued
	JobRunning   = model.JobRunning
	JobCompleted = model.JobCompleted
	JobFailed    = model.JobFailed
	JobCancelled = model.JobCancelled
)

// ClassifyContentRequest asks for an ad-hoc classification that is not
// tied to a stored item or job.
type ClassifyContentRequest struct {
	Title string
	Text  string
}

// ClassifyItemRequest asks for classification of one content item. When
// Title and Text are both empty the item is loaded from the ContentSource.
type ClassifyItemRequest struct {
	ID    string
	Title string
	Text  string
	// Force supersedes an active job for the same id.
	Force bool
}

// BatchRequest asks for reclassification of several items. All selects every
// item in the store and cannot be combined with IDs.
type BatchRequest struct {
	IDs   []string
	All   bool
	Force bool
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	ID        string
	Cancelled bool // false when no job was active
}
