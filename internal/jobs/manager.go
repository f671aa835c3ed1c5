package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/hejijunhao/mosaiq/internal/engine"
	"github.com/hejijunhao/mosaiq/internal/model"
)

// Defaults for the worker pool and admission queue.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 256
)

// Classifier runs the staged classification pipeline. *engine.Engine
// satisfies it.
type Classifier interface {
	Available() bool
	Classify(ctx context.Context, title, text string, check engine.Checkpoint) ([]model.ConceptClassification, error)
}

// ContentSource resolves content ids for batch reclassification.
type ContentSource interface {
	Content(ctx context.Context, id string) (model.Content, error)
}

// Recorder persists the result of a completed job.
type Recorder interface {
	SaveClassifications(ctx context.Context, contentID string, cs []model.ConceptClassification) error
}

// Sink receives progress events. output.Output satisfies it.
type Sink interface {
	Write(ctx context.Context, ev model.ProgressEvent) error
}

// ClassifyOptions tunes a single classification request.
type ClassifyOptions struct {
	// Force cancels an active job for the same content and starts a new one.
	Force bool
}

// Manager owns every classification job. Jobs run on a bounded ants pool
// and are admitted in FIFO order through a bounded queue. The job map is
// mutated only by the manager.
type Manager struct {
	classifier Classifier
	source     ContentSource
	recorder   Recorder
	sink       Sink
	limiter    *rate.Limiter
	logger     *slog.Logger

	workers   int
	queueSize int
	pool      *ants.Pool
	queue     chan *Job

	ctx      context.Context
	stop     context.CancelFunc
	dispatch chan struct{} // closed when the dispatcher exits
	running  sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool

	auto atomic.Bool
	now  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager) error

// WithWorkers sets the number of jobs that may run at once.
// Default is DefaultWorkers.
func WithWorkers(n int) Option {
	return func(m *Manager) error {
		if n < 1 {
			return fmt.Errorf("jobs: workers must be at least 1, got %d", n)
		}
		m.workers = n
		return nil
	}
}

// WithQueueSize sets how many jobs may wait for a worker.
// Default is DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(m *Manager) error {
		if n < 1 {
			return fmt.Errorf("jobs: queue size must be at least 1, got %d", n)
		}
		m.queueSize = n
		return nil
	}
}

// WithContentSource enables BatchReclassify.
func WithContentSource(src ContentSource) Option {
	return func(m *Manager) error {
		m.source = src
		return nil
	}
}

// WithRecorder persists completed results.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) error {
		m.recorder = r
		return nil
	}
}

// WithSink receives every progress event.
func WithSink(s Sink) Option {
	return func(m *Manager) error {
		m.sink = s
		return nil
	}
}

// WithBatchRate paces batch item admission to r items per second with the
// given burst. Zero r disables pacing.
func WithBatchRate(r float64, burst int) Option {
	return func(m *Manager) error {
		if r <= 0 {
			m.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(r), burst)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// NewManager creates a Manager and starts its dispatcher.
func NewManager(c Classifier, opts ...Option) (*Manager, error) {
	if c == nil {
		return nil, ErrClassifierRequired
	}

	m := &Manager{
		classifier: c,
		logger:     slog.Default(),
		workers:    DefaultWorkers,
		queueSize:  DefaultQueueSize,
		jobs:       make(map[string]*Job),
		dispatch:   make(chan struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "jobs")

	pool, err := ants.NewPool(m.workers)
	if err != nil {
		return nil, err
	}
	m.pool = pool
	m.queue = make(chan *Job, m.queueSize)
	m.ctx, m.stop = context.WithCancel(context.Background())

	go m.dispatchLoop()
	return m, nil
}

// Available reports whether the embedding model can serve jobs.
func (m *Manager) Available() bool {
	return m.classifier.Available()
}

// Workers returns the worker pool size.
func (m *Manager) Workers() int { return m.workers }

// Classify requests classification of a content item. If an active job
// exists for contentID it is returned unchanged unless opts.Force is set, in
// which case it is cancelled and superseded by a new job.
func (m *Manager) Classify(contentID, title, text string, opts ClassifyOptions) (*Job, error) {
	return m.classify(contentID, title, text, opts.Force, "")
}

func (m *Manager) classify(contentID, title, text string, force bool, batchID string) (*Job, error) {
	if strings.TrimSpace(contentID) == "" {
		return nil, ErrEmptyContentID
	}
	if !m.classifier.Available() {
		return nil, ErrServiceUnavailable
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	prev := m.jobs[contentID]
	if prev != nil && prev.State().Active() && !force {
		m.mu.Unlock()
		m.logger.Debug("joined active job", "content_id", contentID, "job_id", prev.id)
		return prev, nil
	}
	// Only classify sends on the queue, always under m.mu, so the send
	// below cannot block once this check passes.
	if len(m.queue) == cap(m.queue) {
		m.mu.Unlock()
		return nil, ErrQueueFull
	}

	now := m.now()
	superseded := prev != nil && prev.settle(model.JobCancelled, "", now)
	j := newJob(m.ctx, uuid.NewString(), contentID, batchID, title, text, now)
	m.queue <- j
	m.jobs[contentID] = j
	m.mu.Unlock()

	if superseded {
		m.logger.Debug("job superseded", "content_id", contentID, "job_id", prev.id)
		m.emit(prev.event())
	}
	m.logger.Debug("job queued", "content_id", contentID, "job_id", j.id, "force", force)
	m.emit(j.event())
	return j, nil
}

// dispatchLoop admits queued jobs to the pool in FIFO order. Submit blocks
// while every worker is busy.
func (m *Manager) dispatchLoop() {
	defer close(m.dispatch)
	for {
		select {
		case <-m.ctx.Done():
			return
		case j := <-m.queue:
			if j.State().Terminal() {
				continue
			}
			m.running.Add(1)
			err := m.pool.Submit(func() {
				defer m.running.Done()
				m.run(j)
			})
			if err != nil {
				m.running.Done()
				m.finish(j, model.JobFailed, nil, err)
			}
		}
	}
}

// run executes one job on a pool worker.
func (m *Manager) run(j *Job) {
	if !j.start(m.now()) {
		return
	}
	m.emit(j.event())

	defer func() {
		if r := recover(); r != nil {
			m.finish(j, model.JobFailed, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := m.classifier.Classify(j.ctx, j.title, j.text, func(engine.Stage) error {
		return j.ctx.Err()
	})
	switch {
	case j.ctx.Err() != nil:
		m.finish(j, model.JobCancelled, nil, nil)
	case err != nil:
		m.finish(j, model.JobFailed, nil, err)
	default:
		m.finish(j, model.JobCompleted, result, nil)
	}
}

// finish moves j to a terminal state. The first caller claims the move; a
// completed result is persisted before the state becomes visible and
// waiters are released, so a cancelled job never records a result.
func (m *Manager) finish(j *Job, state model.JobState, result []model.ConceptClassification, cause error) bool {
	var reason string
	if cause != nil {
		reason = cause.Error()
	}
	if !j.claim() {
		return false
	}
	if state == model.JobCompleted {
		m.record(j.contentID, result)
	}
	j.commit(state, result, reason, m.now())

	switch state {
	case model.JobCompleted:
		m.logger.Debug("job completed", "content_id", j.contentID, "job_id", j.id, "concepts", len(result))
	case model.JobFailed:
		m.logger.Warn("job failed", "content_id", j.contentID, "job_id", j.id, "error", reason)
	case model.JobCancelled:
		m.logger.Debug("job cancelled", "content_id", j.contentID, "job_id", j.id)
	}
	m.emit(j.event())
	return true
}

// record persists a result. The job has already claimed its terminal move,
// so a failing or panicking Recorder is logged and never leaves it unsettled.
func (m *Manager) record(contentID string, result []model.ConceptClassification) {
	if m.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("recorder panicked", "content_id", contentID, "panic", r)
		}
	}()
	if err := m.recorder.SaveClassifications(context.Background(), contentID, result); err != nil {
		m.logger.Warn("failed to record classifications", "content_id", contentID, "error", err)
	}
}

func (m *Manager) cancelJob(j *Job) bool {
	return m.finish(j, model.JobCancelled, nil, nil)
}

// Cancel cancels the active job for contentID. It reports whether a job was
// cancelled; without an active job it does nothing.
func (m *Manager) Cancel(contentID string) bool {
	m.mu.Lock()
	j := m.jobs[contentID]
	m.mu.Unlock()
	if j == nil {
		return false
	}
	return m.cancelJob(j)
}

// Job returns the latest job for contentID.
func (m *Manager) Job(contentID string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[contentID]
	return j, ok
}

// Status returns a snapshot of the latest job for contentID.
func (m *Manager) Status(contentID string) (model.JobStatus, bool) {
	j, ok := m.Job(contentID)
	if !ok {
		return model.JobStatus{}, false
	}
	return j.Status(), true
}

// IsClassifying reports whether contentID has a queued or running job.
func (m *Manager) IsClassifying(contentID string) bool {
	j, ok := m.Job(contentID)
	return ok && j.State().Active()
}

// ClearStatus forgets a finished job. Active jobs are kept and false is
// returned.
func (m *Manager) ClearStatus(contentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[contentID]
	if !ok || j.State().Active() {
		return false
	}
	delete(m.jobs, contentID)
	return true
}

// SetAutoClassification stores the process-wide auto-classification flag.
// Acting on it is left to the ingestion side.
func (m *Manager) SetAutoClassification(enabled bool) {
	m.auto.Store(enabled)
}

// AutoClassificationEnabled returns the auto-classification flag.
func (m *Manager) AutoClassificationEnabled() bool {
	return m.auto.Load()
}

// markCancelled records a cancelled status for content that a batch never
// started, unless another job is active for it.
func (m *Manager) markCancelled(contentID, batchID string) *Job {
	now := m.now()
	j := newJob(m.ctx, uuid.NewString(), contentID, batchID, "", "", now)
	j.settle(model.JobCancelled, "", now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev := m.jobs[contentID]; prev == nil || !prev.State().Active() {
		m.jobs[contentID] = j
	}
	return j
}

// markFailed records a failed status for content a batch could not load.
func (m *Manager) markFailed(contentID, batchID string, cause error) *Job {
	now := m.now()
	j := newJob(m.ctx, uuid.NewString(), contentID, batchID, "", "", now)
	j.settle(model.JobFailed, cause.Error(), now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev := m.jobs[contentID]; prev == nil || !prev.State().Active() {
		m.jobs[contentID] = j
	}
	return j
}

func (m *Manager) emit(ev model.ProgressEvent) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Write(context.Background(), ev); err != nil {
		m.logger.Warn("progress sink write failed", "content_id", ev.ContentID, "error", err)
	}
}

// Close cancels every active job, waits for running jobs to return and
// releases the pool. Later calls to Classify return ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	active := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State().Active() {
			active = append(active, j)
		}
	}
	m.mu.Unlock()

	for _, j := range active {
		m.cancelJob(j)
	}
	m.stop()
	<-m.dispatch
	m.running.Wait()
	m.pool.Release()
	return nil
}

// errIs reports whether err matches any of targets.
func errIs(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
