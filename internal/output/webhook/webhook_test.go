package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/mosaiq/internal/model"
	"github.com/hejijunhao/mosaiq/internal/output"
)

func testEvent(id string) model.ProgressEvent {
	return model.ProgressEvent{
		ContentID: id,
		JobID:     "job-" + id,
		Processed: 1,
		Total:     1,
		State:     model.JobCompleted,
		Concepts:  []model.ConceptClassification{{ConceptID: "economics", Confidence: 0.5}},
		Timestamp: time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
	}
}

// recorder is an httptest handler that stores every received batch.
type recorder struct {
	mu      sync.Mutex
	batches [][]model.ProgressEvent
	headers []http.Header
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	var batch []model.ProgressEvent
	_ = json.Unmarshal(body, &batch)
	r.mu.Lock()
	r.batches = append(r.batches, batch)
	r.headers = append(r.headers, req.Header.Clone())
	r.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestBatchFlushAtBatchSize(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(3), WithFlushInterval(10*time.Second))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, out.Write(context.Background(), testEvent(id)))
	}

	require.Equal(t, 1, rec.count(), "the third write flushes synchronously")
	require.Len(t, rec.batches[0], 3)
	assert.Equal(t, "c", rec.batches[0][2].ContentID)
	require.NoError(t, out.Close())
	assert.Equal(t, 1, rec.count())
}

func TestTimerFlushBeforeBatchSize(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(100), WithFlushInterval(50*time.Millisecond))
	defer out.Close()
	require.NoError(t, out.Write(context.Background(), testEvent("timer")))

	assert.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithBackoff(time.Millisecond))
	require.NoError(t, out.Write(context.Background(), testEvent("a")))
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithBackoff(time.Millisecond))
	err := out.Write(context.Background(), testEvent("a"))
	assert.ErrorContains(t, err, "HTTP 503")
	assert.EqualValues(t, maxRetries+1, calls.Load())
}

func TestNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithBackoff(time.Millisecond))
	assert.ErrorContains(t, out.Write(context.Background(), testEvent("a")), "HTTP 400")
	assert.EqualValues(t, 1, calls.Load())
}

func TestCustomHeaders(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithHeaders(map[string]string{"X-Custom-Auth": "secret123"}))
	require.NoError(t, out.Write(context.Background(), testEvent("a")))

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "secret123", rec.headers[0].Get("X-Custom-Auth"))
	assert.Equal(t, "application/json", rec.headers[0].Get("Content-Type"))
}

func TestVerbosityApplied(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithVerbosity(output.Minimal))
	require.NoError(t, out.Write(context.Background(), testEvent("a")))

	require.Equal(t, 1, rec.count())
	assert.Nil(t, rec.batches[0][0].Concepts)
}

func TestTimerFlushErrorCallbackInvoked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	var errCount atomic.Int32
	out := New(srv.URL,
		WithBatchSize(100),
		WithFlushInterval(20*time.Millisecond),
		WithOnError(func(error) { errCount.Add(1) }),
	)
	require.NoError(t, out.Write(context.Background(), testEvent("a")))

	assert.Eventually(t, func() bool { return errCount.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseFlushesRemaining(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(100), WithFlushInterval(10*time.Second))
	require.NoError(t, out.Write(context.Background(), testEvent("a")))
	require.NoError(t, out.Write(context.Background(), testEvent("b")))
	assert.Zero(t, rec.count())

	require.NoError(t, out.Close())
	require.Equal(t, 1, rec.count())
	assert.Len(t, rec.batches[0], 2)
}

func TestStateFilter(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(10), WithStates(model.JobCompleted, model.JobFailed))
	for _, state := range []model.JobState{model.JobQueued, model.JobRunning, model.JobCompleted, model.JobCancelled} {
		ev := testEvent(string(state))
		ev.State = state
		require.NoError(t, out.Write(context.Background(), ev))
	}
	require.NoError(t, out.Close())

	require.Equal(t, 1, rec.count())
	require.Len(t, rec.batches[0], 1)
	assert.Equal(t, model.JobCompleted, rec.batches[0][0].State)
}

func TestSignedBody(t *testing.T) {
	var got, want string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		got = req.Header.Get(SignatureHeader)
		want = Sign([]byte("s3cret"), body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithSecret("s3cret"))
	require.NoError(t, out.Write(context.Background(), testEvent("a")))
	assert.Equal(t, want, got)
	assert.Contains(t, got, "sha256=")
}

func TestRetryOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithBackoff(time.Millisecond))
	require.NoError(t, out.Write(context.Background(), testEvent("a")))
	assert.EqualValues(t, 2, calls.Load())
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryAfter("2"))
	assert.Equal(t, maxRetryAfter, retryAfter("3600"))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("-5"))
	assert.Zero(t, retryAfter("soon"))
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := New(srv.URL, WithBatchSize(1), WithBackoff(time.Hour))
	time.AfterFunc(20*time.Millisecond, cancel)
	err := out.Write(ctx, testEvent("a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteAfterClose(t *testing.T) {
	out := New("http://127.0.0.1:0")
	require.NoError(t, out.Close())
	require.NoError(t, out.Close())
	assert.ErrorIs(t, out.Write(context.Background(), testEvent("a")), errClosed)
}
