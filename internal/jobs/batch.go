package jobs

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hejijunhao/mosaiq/internal/model"
)

// BatchOptions tunes a batch reclassification.
type BatchOptions struct {
	// Force supersedes active jobs for the batch's content ids.
	Force bool
}

// BatchSummary is the final tally of a batch.
type BatchSummary struct {
	BatchID   string
	Total     int
	Completed int
	Failed    int
	Cancelled int
}

// Batch tracks a running batch reclassification.
type Batch struct {
	id     string
	total  int
	events chan model.ProgressEvent
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	processed int
	summary   BatchSummary
	owned     map[string]*Job // in-flight jobs this batch created
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newBatchID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// ID is the batch's ULID.
func (b *Batch) ID() string { return b.id }

// Total is the number of content ids in the batch.
func (b *Batch) Total() int { return b.total }

// Events delivers one event per settled item. It is buffered for every item
// and closed when the batch finishes, so it never needs to be drained.
func (b *Batch) Events() <-chan model.ProgressEvent { return b.events }

// Done is closed when every item has settled.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Cancel stops the batch. Jobs it started are cancelled and items not yet
// started settle as cancelled. Completed items keep their results.
func (b *Batch) Cancel() { b.cancel() }

// Wait blocks until the batch finishes and returns its summary.
func (b *Batch) Wait() BatchSummary {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summary
}

// BatchReclassify classifies every id in ids, loading content from the
// configured ContentSource. At most Workers items are admitted at once. The
// batch stops early when ctx is cancelled or Cancel is called.
func (m *Manager) BatchReclassify(ctx context.Context, ids []string, opts BatchOptions) (*Batch, error) {
	if !m.classifier.Available() {
		return nil, ErrServiceUnavailable
	}
	if m.source == nil {
		return nil, ErrContentSourceRequired
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	bctx, cancel := context.WithCancel(ctx)
	b := &Batch{
		id:     newBatchID(m.now()),
		total:  len(ids),
		events: make(chan model.ProgressEvent, len(ids)),
		ctx:    bctx,
		cancel: cancel,
		done:   make(chan struct{}),
		owned:  make(map[string]*Job),
	}
	b.summary = BatchSummary{BatchID: b.id, Total: len(ids)}

	m.logger.Info("batch started", "batch_id", b.id, "items", len(ids), "force", opts.Force)
	go m.runBatch(b, ids, opts)
	return b, nil
}

func (m *Manager) runBatch(b *Batch, ids []string, opts BatchOptions) {
	defer func() {
		b.cancel()
		close(b.events)
		close(b.done)
		s := b.summary
		m.logger.Info("batch finished", "batch_id", b.id,
			"completed", s.Completed, "failed", s.Failed, "cancelled", s.Cancelled)
	}()

	// Cancel owned jobs as soon as the batch is stopped.
	stopWatch := context.AfterFunc(b.ctx, func() {
		b.mu.Lock()
		owned := make([]*Job, 0, len(b.owned))
		for _, j := range b.owned {
			owned = append(owned, j)
		}
		b.mu.Unlock()
		for _, j := range owned {
			m.cancelJob(j)
		}
	})
	defer stopWatch()

	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup
	for i, id := range ids {
		if !m.admit(b, sem) {
			for _, rest := range ids[i:] {
				j := m.markCancelled(rest, b.id)
				m.settle(b, j.Status())
			}
			break
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			m.settle(b, m.batchItem(b, id, opts.Force))
		}(id)
	}
	wg.Wait()
}

// admit waits for a free slot and the rate limiter. It reports false once
// the batch is stopped.
func (m *Manager) admit(b *Batch, sem chan struct{}) bool {
	select {
	case sem <- struct{}{}:
	case <-b.ctx.Done():
		return false
	}
	if b.ctx.Err() != nil {
		<-sem
		return false
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(b.ctx); err != nil {
			<-sem
			return false
		}
	}
	return true
}

// batchItem loads and classifies one item and waits for it to settle.
func (m *Manager) batchItem(b *Batch, id string, force bool) model.JobStatus {
	content, err := m.source.Content(b.ctx, id)
	if err != nil {
		if b.ctx.Err() != nil {
			return m.markCancelled(id, b.id).Status()
		}
		return m.markFailed(id, b.id, fmt.Errorf("load content: %w", err)).Status()
	}

	j, err := m.classify(id, content.Title, content.Text, force, b.id)
	if err != nil {
		if errIs(err, ErrClosed, context.Canceled) || b.ctx.Err() != nil {
			return m.markCancelled(id, b.id).Status()
		}
		return m.markFailed(id, b.id, err).Status()
	}

	own := j.batchID == b.id
	if own {
		b.mu.Lock()
		b.owned[j.id] = j
		b.mu.Unlock()
		// The batch may have been stopped before the job was registered.
		if b.ctx.Err() != nil {
			m.cancelJob(j)
		}
		defer func() {
			b.mu.Lock()
			delete(b.owned, j.id)
			b.mu.Unlock()
		}()
	}

	select {
	case <-j.Done():
		return j.Status()
	case <-b.ctx.Done():
		if own {
			<-j.Done()
			return j.Status()
		}
		// A job started elsewhere is left running; the batch gives up on it.
		st := j.Status()
		st.State = model.JobCancelled
		st.Result = nil
		return st
	}
}

// settle records one finished item and emits its progress event.
func (m *Manager) settle(b *Batch, st model.JobStatus) {
	b.mu.Lock()
	b.processed++
	switch st.State {
	case model.JobCompleted:
		b.summary.Completed++
	case model.JobFailed:
		b.summary.Failed++
	default:
		b.summary.Cancelled++
	}
	ev := model.ProgressEvent{
		ContentID: st.ContentID,
		JobID:     st.JobID,
		BatchID:   b.id,
		Processed: b.processed,
		Total:     b.total,
		State:     st.State,
		Concepts:  st.Result,
		Error:     st.Error,
		Timestamp: m.now(),
	}
	b.events <- ev
	b.mu.Unlock()

	m.emit(ev)
}
