package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hejijunhao/mosaiq/internal/model"
	"github.com/hejijunhao/mosaiq/internal/output"
)

// SignatureHeader carries "sha256=" plus the hex HMAC-SHA256 of the request
// body when a secret is configured.
const SignatureHeader = "X-Mosaiq-Signature"

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
	defaultBackoff       = time.Second
	maxRetries           = 3
	maxRetryAfter        = 30 * time.Second
)

var errClosed = errors.New("webhook: output closed")

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) { o.headers = h }
}

// WithSecret signs every request body; see SignatureHeader.
func WithSecret(secret string) Option {
	return func(o *Output) {
		if secret != "" {
			o.secret = []byte(secret)
		}
	}
}

// WithStates posts only events in one of the given states. By default every
// event is posted.
func WithStates(states ...model.JobState) Option {
	return func(o *Output) {
		if len(states) == 0 {
			o.states = nil
			return
		}
		o.states = make(map[model.JobState]bool, len(states))
		for _, s := range states {
			o.states[s] = true
		}
	}
}

// WithBatchSize sets how many events are sent per request. Default: 50.
func WithBatchSize(n int) Option {
	return func(o *Output) {
		if n >= 1 {
			o.batchSize = n
		}
	}
}

// WithFlushInterval bounds how long an event waits for its batch to fill.
// Default: 5s.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Output) { o.flushInterval = d }
}

// WithTimeout sets the per-request HTTP timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.client.Timeout = d }
}

// WithBackoff sets the delay before the first retry; later retries double it.
// A Retry-After header on a 429 response takes precedence. Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.backoff = d }
}

// WithVerbosity sets how much of each event is posted. Default: Standard.
func WithVerbosity(v output.Verbosity) Option {
	return func(o *Output) { o.verbosity = v }
}

// WithOnError sets the callback for failed timer-triggered deliveries.
// Default: a slog warning.
func WithOnError(f func(error)) Option {
	return func(o *Output) { o.errFunc = f }
}

// Output delivers progress events to an HTTP endpoint as JSON arrays. Events
// are batched until batchSize is reached or flushInterval passes after the
// first pending event. 429 and 5xx responses and transport errors are
// retried up to maxRetries times.
type Output struct {
	client        *http.Client
	url           string
	headers       map[string]string
	secret        []byte
	states        map[model.JobState]bool // nil posts every state
	verbosity     output.Verbosity
	batchSize     int
	flushInterval time.Duration
	backoff       time.Duration
	errFunc       func(error)

	mu      sync.Mutex
	pending []model.ProgressEvent
	timer   *time.Timer
	closed  bool
}

// New creates a webhook output posting to url.
func New(url string, opts ...Option) *Output {
	o := &Output{
		client:        &http.Client{Timeout: defaultTimeout},
		url:           url,
		verbosity:     output.Standard,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		backoff:       defaultBackoff,
		errFunc:       func(err error) { slog.Warn("webhook delivery failed", "error", err) },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Write queues event for delivery. A full batch is delivered before Write
// returns, so a slow endpoint slows the caller; wrap the output in async to
// decouple them.
func (o *Output) Write(ctx context.Context, event model.ProgressEvent) error {
	if o.states != nil && !o.states[event.State] {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errClosed
	}

	o.pending = append(o.pending, output.FormatEvent(event, o.verbosity))
	switch {
	case len(o.pending) >= o.batchSize:
		return o.flushLocked(ctx)
	case o.timer == nil:
		o.timer = time.AfterFunc(o.flushInterval, o.flushOnTimer)
	}
	return nil
}

// Close delivers pending events. Later writes fail.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.flushLocked(context.Background())
}

func (o *Output) flushOnTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.flushLocked(context.Background()); err != nil {
		o.errFunc(err)
	}
}

// flushLocked delivers and clears the pending batch. Caller holds o.mu.
func (o *Output) flushLocked(ctx context.Context) error {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if len(o.pending) == 0 {
		return nil
	}
	batch := o.pending
	o.pending = nil

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	if err := o.deliver(ctx, body); err != nil {
		return fmt.Errorf("webhook: %d events not delivered: %w", len(batch), err)
	}
	return nil
}

func (o *Output) deliver(ctx context.Context, body []byte) error {
	delay := o.backoff
	for attempt := 0; ; attempt++ {
		wait, retry, err := o.post(ctx, body)
		if err == nil || !retry || attempt == maxRetries {
			return err
		}
		if wait <= 0 {
			wait = delay
			delay *= 2
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// post makes one delivery attempt. wait is the server's Retry-After, if any.
func (o *Output) post(ctx context.Context, body []byte) (wait time.Duration, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	if o.secret != nil {
		req.Header.Set(SignatureHeader, Sign(o.secret, body))
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, ctx.Err() == nil, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return 0, false, nil
	case code == http.StatusTooManyRequests:
		return retryAfter(resp.Header.Get("Retry-After")), true, fmt.Errorf("HTTP %d", code)
	case code >= 500:
		return 0, true, fmt.Errorf("HTTP %d", code)
	default:
		return 0, false, fmt.Errorf("HTTP %d", code)
	}
}

// Sign returns the SignatureHeader value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// retryAfter parses a Retry-After value in seconds or as an HTTP date,
// capped at maxRetryAfter. Unparseable values yield 0.
func retryAfter(v string) time.Duration {
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}
	return min(max(d, 0), maxRetryAfter)
}
