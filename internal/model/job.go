package model

import "time"

// JobState is the lifecycle state of a classification job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Active reports whether the state is queued or running.
func (s JobState) Active() bool {
	return s == JobQueued || s == JobRunning
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobStatus is a point-in-time snapshot of a classification job.
type JobStatus struct {
	JobID     string                  `json:"job_id"`
	ContentID string                  `json:"content_id"`
	State     JobState                `json:"state"`
	Result    []ConceptClassification `json:"result,omitempty"` // only when State == JobCompleted
	Error     string                  `json:"error,omitempty"`  // only when State == JobFailed
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}
