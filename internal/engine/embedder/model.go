package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// ModelConfig locates the model artifacts.
type ModelConfig struct {
	// ModelPath is the ONNX model file.
	ModelPath string
	// ProjectionPath is an optional safetensors dense layer applied after
	// pooling. Empty disables projection.
	ProjectionPath string
	// LibraryPath is the ONNX Runtime shared library. Defaults to
	// libonnxruntime.so next to the model.
	LibraryPath string
	// IntraOpThreads bounds ONNX Runtime's intra-op parallelism; 0 keeps
	// the runtime default.
	IntraOpThreads int
	// Name identifies the model in cache keys. Defaults to the model file
	// name without extension.
	Name string

	Logger *slog.Logger
}

// Model produces L2-normalized sentence embeddings. The underlying session is
// not reentrant, so one worker goroutine owns it and every Embed call queues
// on a single channel. Model is safe for concurrent use.
//
// Pooling is attention-mask-weighted mean pooling over the token axis,
// followed by the optional projection and L2 normalization.
type Model struct {
	name   string
	sess   session
	proj   *projection
	dim    int
	logger *slog.Logger

	reqs chan embedRequest
	quit chan struct{}
	done chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	inferred  atomic.Int64
}

type embedRequest struct {
	ctx  context.Context
	in   TokenizedInput
	resp chan embedResult
}

type embedResult struct {
	vec []float32
	err error
}

// NewModel loads the model described by cfg and starts its worker.
//
// On failure NewModel returns a disabled Model together with an error
// wrapping ErrModelUnavailable. The disabled Model is usable: Available
// reports false and Embed fails fast with ErrServiceUnavailable. Loading is
// never retried.
func NewModel(cfg ModelConfig) (*Model, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "embedder")

	name := cfg.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath))
	}

	sess, proj, err := loadArtifacts(cfg)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		logger.Warn("classification disabled", "model", cfg.ModelPath, "error", err)
		return Disabled(name), err
	}

	m := newModel(name, sess, proj, logger)
	logger.Info("model loaded", "model", cfg.ModelPath, "name", name, "dim", m.dim)
	return m, nil
}

func loadArtifacts(cfg ModelConfig) (session, *projection, error) {
	if cfg.ModelPath == "" {
		return nil, nil, fmt.Errorf("no model path configured")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, nil, err
	}
	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(cfg.ModelPath), "libonnxruntime.so")
	}

	sess, err := newONNXSession(cfg.ModelPath, libPath, cfg.IntraOpThreads)
	if err != nil {
		return nil, nil, err
	}

	if cfg.ProjectionPath == "" {
		return sess, nil, nil
	}
	proj, err := loadProjection(cfg.ProjectionPath)
	if err != nil {
		sess.close()
		return nil, nil, err
	}
	if int(sess.hiddenDim()) != proj.inDim {
		sess.close()
		return nil, nil, fmt.Errorf("ONNX output dim %d != projection input dim %d", sess.hiddenDim(), proj.inDim)
	}
	return sess, proj, nil
}

// newModel wires a loaded session into a running Model.
func newModel(name string, sess session, proj *projection, logger *slog.Logger) *Model {
	dim := int(sess.hiddenDim())
	if proj != nil {
		dim = proj.outDim
	}
	m := &Model{
		name:   name,
		sess:   sess,
		proj:   proj,
		dim:    dim,
		logger: logger,
		reqs:   make(chan embedRequest),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Disabled returns a Model that reports itself unavailable.
func Disabled(name string) *Model {
	m := &Model{name: name, logger: slog.Default()}
	m.closed.Store(true)
	return m
}

// Available reports whether Embed can run inference.
func (m *Model) Available() bool {
	return m.sess != nil && !m.closed.Load()
}

// Name identifies the model.
func (m *Model) Name() string { return m.name }

// Dim returns the embedding dimensionality, 0 when unavailable.
func (m *Model) Dim() int { return m.dim }

// Inferences returns the number of inference calls executed so far.
func (m *Model) Inferences() int64 { return m.inferred.Load() }

// Embed queues in for inference and waits for the result.
//
// A request whose context is done before the worker picks it up is withdrawn
// without running inference. Once dispatched, inference runs to completion;
// cancelling ctx only stops the caller from waiting.
func (m *Model) Embed(ctx context.Context, in TokenizedInput) ([]float32, error) {
	if !m.Available() {
		return nil, ErrServiceUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := embedRequest{ctx: ctx, in: in, resp: make(chan embedResult, 1)}
	select {
	case m.reqs <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.quit:
		return nil, ErrServiceUnavailable
	}

	select {
	case res := <-req.resp:
		return res.vec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the single owner of the session.
func (m *Model) run() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			return
		case req := <-m.reqs:
			if err := req.ctx.Err(); err != nil {
				req.resp <- embedResult{err: err}
				continue
			}
			vec, err := m.infer(req.in)
			req.resp <- embedResult{vec: vec, err: err}
		}
	}
}

func (m *Model) infer(in TokenizedInput) ([]float32, error) {
	seqLen := int64(in.Len())
	if seqLen == 0 || len(in.AttentionMask) != int(seqLen) || len(in.TokenTypeIDs) != int(seqLen) {
		return nil, fmt.Errorf("embedder: malformed input: %d ids, %d mask, %d types",
			len(in.InputIDs), len(in.AttentionMask), len(in.TokenTypeIDs))
	}

	m.inferred.Add(1)
	hidden, err := m.sess.infer(in.InputIDs, in.AttentionMask, in.TokenTypeIDs, 1, seqLen)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	vec := meanPool(hidden, in.AttentionMask, 1, seqLen, m.sess.hiddenDim())
	if m.proj != nil {
		vec = m.proj.apply(vec)
	}
	return Normalize(vec), nil
}

// Close stops the worker and releases the session. Calls after Close fail
// with ErrServiceUnavailable.
func (m *Model) Close() error {
	if m.sess == nil {
		return nil
	}
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.quit)
		<-m.done
		err = m.sess.close()
	})
	return err
}
