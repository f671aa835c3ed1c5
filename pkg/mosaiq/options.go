package mosaiq

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hejijunhao/mosaiq/internal/engine"
	"github.com/hejijunhao/mosaiq/internal/engine/classifier"
	"github.com/hejijunhao/mosaiq/internal/engine/embedder"
	"github.com/hejijunhao/mosaiq/internal/jobs"
)

type options struct {
	modelDir       string
	modelPath      string
	vocabPath      string
	projectionPath string
	libraryPath    string
	intraOpThreads int

	maxLength    int
	unicodeWords bool
	longText     engine.LongTextMode
	chunkOverlap int

	taxonomyFile string
	cacheDir     string

	topK          int
	minConfidence float64

	workers    int
	queueSize  int
	batchRate  float64
	batchBurst int

	storePath string
	source    ContentSource
	recorder  Recorder
	sink      ProgressSink

	logger *slog.Logger

	// embedder replaces the ONNX model; tests only.
	embedder embedder.Embedder
}

// Option configures a Service.
type Option func(*options)

// WithModelDir sets the directory containing model files.
// Expects: model_quantized.onnx or model.onnx, vocab.txt, optionally
// 2_Dense/model.safetensors, and libonnxruntime.so. Default: "models".
func WithModelDir(dir string) Option {
	return func(o *options) {
		o.modelDir = dir
	}
}

// WithModelPaths sets explicit paths for each model file. An empty
// projection disables the dense projection.
func WithModelPaths(model, vocab, projection string) Option {
	return func(o *options) {
		o.modelPath = model
		o.vocabPath = vocab
		o.projectionPath = projection
	}
}

// WithLibraryPath sets the ONNX Runtime shared library path.
func WithLibraryPath(path string) Option {
	return func(o *options) {
		o.libraryPath = path
	}
}

// WithIntraOpThreads bounds ONNX Runtime's intra-op threads. 0 keeps the
// runtime default.
func WithIntraOpThreads(n int) Option {
	return func(o *options) {
		o.intraOpThreads = n
	}
}

// WithMaxLength sets the token window, special tokens included. Default: 128.
func WithMaxLength(n int) Option {
	return func(o *options) {
		o.maxLength = n
	}
}

// WithUnicodeWords composes input to NFC and keeps non-ASCII letters inside
// words when tokenizing. By default only ASCII letters, digits, underscore
// and hyphen form words.
func WithUnicodeWords(enabled bool) Option {
	return func(o *options) {
		o.unicodeWords = enabled
	}
}

// WithChunking embeds long input as overlapping windows and averages them
// instead of truncating. overlap is in tokens.
func WithChunking(overlap int) Option {
	return func(o *options) {
		o.longText = engine.Chunk
		o.chunkOverlap = overlap
	}
}

// WithTaxonomyFile loads the taxonomy from a YAML or SKOS JSON-LD file
// instead of the built-in one.
func WithTaxonomyFile(path string) Option {
	return func(o *options) {
		o.taxonomyFile = path
	}
}

// WithEmbeddingCache persists concept embeddings in a badger database at dir.
func WithEmbeddingCache(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// WithTopK sets how many concepts a classification returns at most. Default: 5.
func WithTopK(k int) Option {
	return func(o *options) {
		o.topK = k
	}
}

// WithMinConfidence sets the lowest confidence a returned concept may have.
// Default: 0.25.
func WithMinConfidence(c float64) Option {
	return func(o *options) {
		o.minConfidence = c
	}
}

// WithWorkers sets how many jobs run at once. Default: 2.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithQueueSize sets how many jobs may wait for a worker. Default: 256.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// WithBatchRate paces batch items to perSecond with the given burst.
func WithBatchRate(perSecond float64, burst int) Option {
	return func(o *options) {
		o.batchRate = perSecond
		o.batchBurst = burst
	}
}

// WithStorePath opens a SQLite content store at path. It serves as the
// ContentSource and Recorder unless those are set explicitly.
func WithStorePath(path string) Option {
	return func(o *options) {
		o.storePath = path
	}
}

// WithContentSource sets where item and batch classification load content.
func WithContentSource(src ContentSource) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithRecorder persists completed classifications.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithProgressSink receives every job and batch progress event.
func WithProgressSink(s ProgressSink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func defaultOptions() options {
	return options{
		modelDir:      "models",
		maxLength:     embedder.DefaultMaxLength,
		longText:      engine.Truncate,
		topK:          classifier.DefaultTopK,
		minConfidence: classifier.DefaultMinConfidence,
		workers:       jobs.DefaultWorkers,
		queueSize:     jobs.DefaultQueueSize,
		logger:        slog.Default(),
	}
}

// resolvePaths determines the model, vocab and projection paths. Explicit
// paths take precedence over modelDir. Inside modelDir the quantized model
// is preferred and the projection is used only when present.
func resolvePaths(o options) (model, vocab, projection string) {
	if o.modelPath != "" {
		vocab = o.vocabPath
		if vocab == "" {
			vocab = filepath.Join(filepath.Dir(o.modelPath), "vocab.txt")
		}
		return o.modelPath, vocab, o.projectionPath
	}
	dir := o.modelDir
	model = filepath.Join(dir, "model_quantized.onnx")
	if !exists(model) {
		model = filepath.Join(dir, "model.onnx")
	}
	projection = filepath.Join(dir, "2_Dense", "model.safetensors")
	if !exists(projection) {
		projection = ""
	}
	return model, filepath.Join(dir, "vocab.txt"), projection
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
