package jobs

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hejijunhao/mosaiq/internal/model"
)

// Job is one classification request for a content item. State moves
// queued → running → completed|failed|cancelled, or queued → cancelled.
// Once terminal it never changes.
type Job struct {
	id        string
	contentID string
	batchID   string
	title     string
	text      string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     model.JobState
	settling  bool // terminal move claimed, not yet committed
	result    []model.ConceptClassification
	errMsg    string
	createdAt time.Time
	updatedAt time.Time
}

func newJob(parent context.Context, id, contentID, batchID, title, text string, now time.Time) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		id:        id,
		contentID: contentID,
		batchID:   batchID,
		title:     title,
		text:      text,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     model.JobQueued,
		createdAt: now,
		updatedAt: now,
	}
}

// ID is the unique id of this job instance.
func (j *Job) ID() string { return j.id }

// ContentID is the content item the job classifies.
func (j *Job) ContentID() string { return j.contentID }

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// State returns the current state.
func (j *Job) State() model.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Status returns a snapshot of the job.
func (j *Job) Status() model.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return model.JobStatus{
		JobID:     j.id,
		ContentID: j.contentID,
		State:     j.state,
		Result:    slices.Clone(j.result),
		Error:     j.errMsg,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
}

// Wait blocks until the job is terminal or ctx is done. A failed job
// returns its status together with an error wrapping ErrJobFailed; a
// cancelled job is not an error.
func (j *Job) Wait(ctx context.Context) (model.JobStatus, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return j.Status(), ctx.Err()
	}
	st := j.Status()
	if st.State == model.JobFailed {
		return st, fmt.Errorf("%w: %s", ErrJobFailed, st.Error)
	}
	return st, nil
}

// start moves a queued job to running. It fails once the job is terminal or
// its terminal move has been claimed.
func (j *Job) start(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != model.JobQueued || j.settling {
		return false
	}
	j.state = model.JobRunning
	j.updatedAt = now
	return true
}

// claim reserves the job's terminal move. Only the first claim succeeds. The
// visible state is unchanged until commit.
func (j *Job) claim() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() || j.settling {
		return false
	}
	j.settling = true
	return true
}

// commit applies the claimed terminal state and releases waiters.
func (j *Job) commit(to model.JobState, result []model.ConceptClassification, errMsg string, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = to
	j.updatedAt = now
	switch to {
	case model.JobCompleted:
		j.result = result
	case model.JobFailed:
		j.errMsg = errMsg
	}
	j.cancel()
	close(j.done)
}

// settle claims and commits a terminal state in one step.
func (j *Job) settle(to model.JobState, errMsg string, now time.Time) bool {
	if !j.claim() {
		return false
	}
	j.commit(to, nil, errMsg, now)
	return true
}

// event builds the progress event for an individual job transition.
func (j *Job) event() model.ProgressEvent {
	st := j.Status()
	ev := model.ProgressEvent{
		ContentID: st.ContentID,
		JobID:     st.JobID,
		BatchID:   j.batchID,
		Total:     1,
		State:     st.State,
		Concepts:  st.Result,
		Error:     st.Error,
		Timestamp: st.UpdatedAt,
	}
	if st.State.Terminal() {
		ev.Processed = 1
	}
	return ev
}
