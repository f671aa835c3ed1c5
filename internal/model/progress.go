package model

import "time"

// ProgressEvent reports a job state transition or a settled batch item.
type ProgressEvent struct {
	ContentID string                  `json:"content_id"`
	JobID     string                  `json:"job_id,omitempty"`
	BatchID   string                  `json:"batch_id,omitempty"` // empty for individual jobs
	Processed int                     `json:"processed"`
	Total     int                     `json:"total"`
	State     JobState                `json:"state"`
	Concepts  []ConceptClassification `json:"concepts,omitempty"` // only on completion
	Error     string                  `json:"error,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}
