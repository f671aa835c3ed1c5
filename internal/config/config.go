package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all mosaiq configuration. Values come from defaults, then an
// optional TOML file named by MOSAIQ_CONFIG, then MOSAIQ_* environment
// variables; later sources win.
type Config struct {
	Model      ModelConfig      `toml:"model"`
	Taxonomy   TaxonomyConfig   `toml:"taxonomy"`
	Classifier ClassifierConfig `toml:"classifier"`
	Jobs       JobsConfig       `toml:"jobs"`
	Store      StoreConfig      `toml:"store"`
	Output     OutputConfig     `toml:"output"`
	Log        LogConfig        `toml:"log"`
}

// ModelConfig locates the embedding model files. Empty paths are resolved
// inside Dir.
type ModelConfig struct {
	Dir            string `toml:"dir"`
	Path           string `toml:"path"`
	VocabPath      string `toml:"vocab_path"`
	ProjectionPath string `toml:"projection_path"`
	LibraryPath    string `toml:"library_path"`
	IntraOpThreads int    `toml:"intra_op_threads"`
	MaxLength      int    `toml:"max_length"`
	UnicodeWords   bool   `toml:"unicode_words"`
	LongText       string `toml:"long_text"` // "truncate" or "chunk"
	ChunkOverlap   int    `toml:"chunk_overlap"`
}

// TaxonomyConfig selects the taxonomy resource and embedding cache.
type TaxonomyConfig struct {
	File     string `toml:"file"`      // YAML or SKOS JSON-LD; empty uses the built-in taxonomy
	CacheDir string `toml:"cache_dir"` // badger directory; empty disables the cache
}

// ClassifierConfig holds match selection settings.
type ClassifierConfig struct {
	TopK          int     `toml:"top_k"`
	MinConfidence float64 `toml:"min_confidence"`
}

// JobsConfig sizes the job manager.
type JobsConfig struct {
	Workers    int     `toml:"workers"`
	QueueSize  int     `toml:"queue_size"`
	BatchRate  float64 `toml:"batch_rate"` // items per second; 0 disables pacing
	BatchBurst int     `toml:"batch_burst"`
}

// StoreConfig locates the content database.
type StoreConfig struct {
	Path string `toml:"path"`
}

// OutputConfig selects progress sinks.
type OutputConfig struct {
	Sinks            []string `toml:"sinks"` // any of "stdout", "file", "webhook"
	Verbosity        string   `toml:"verbosity"`
	Pretty           bool     `toml:"pretty"`
	FilePath         string   `toml:"file_path"`
	FileMaxSize      int64    `toml:"file_max_size"`
	WebhookURL       string   `toml:"webhook_url"`
	WebhookBatchSize int      `toml:"webhook_batch_size"`
	WebhookSecret    string   `toml:"webhook_secret"` // signs request bodies when set
	WebhookStates    []string `toml:"webhook_states"` // job states to post; empty posts all
	Async            bool     `toml:"async"`
	AsyncBuffer      int      `toml:"async_buffer"`
}

// LogConfig configures the default slog logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Dir:          "models",
			MaxLength:    128,
			LongText:     "truncate",
			ChunkOverlap: 32,
		},
		Classifier: ClassifierConfig{
			TopK:          5,
			MinConfidence: 0.25,
		},
		Jobs: JobsConfig{
			Workers:    2,
			QueueSize:  256,
			BatchBurst: 1,
		},
		Store: StoreConfig{
			Path: "mosaiq.db",
		},
		Output: OutputConfig{
			Verbosity:        "standard",
			FilePath:         "mosaiq-progress.jsonl",
			WebhookBatchSize: 50,
			AsyncBuffer:      1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads .env (if present), the MOSAIQ_CONFIG file (if set) and the
// environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("MOSAIQ_CONFIG"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// LoadFile overlays the TOML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	m := &cfg.Model
	m.Dir = getenv("MOSAIQ_MODEL_DIR", m.Dir)
	m.Path = getenv("MOSAIQ_MODEL_PATH", m.Path)
	m.VocabPath = getenv("MOSAIQ_VOCAB_PATH", m.VocabPath)
	m.ProjectionPath = getenv("MOSAIQ_PROJECTION_PATH", m.ProjectionPath)
	m.LibraryPath = getenv("MOSAIQ_ORT_LIBRARY", m.LibraryPath)
	m.IntraOpThreads = getenvInt("MOSAIQ_INTRA_OP_THREADS", m.IntraOpThreads)
	m.MaxLength = getenvInt("MOSAIQ_MAX_LENGTH", m.MaxLength)
	m.UnicodeWords = getenvBool("MOSAIQ_UNICODE_WORDS", m.UnicodeWords)
	m.LongText = getenv("MOSAIQ_LONG_TEXT", m.LongText)
	m.ChunkOverlap = getenvInt("MOSAIQ_CHUNK_OVERLAP", m.ChunkOverlap)

	cfg.Taxonomy.File = getenv("MOSAIQ_TAXONOMY_FILE", cfg.Taxonomy.File)
	cfg.Taxonomy.CacheDir = getenv("MOSAIQ_EMBEDDING_CACHE", cfg.Taxonomy.CacheDir)

	cfg.Classifier.TopK = getenvInt("MOSAIQ_TOP_K", cfg.Classifier.TopK)
	cfg.Classifier.MinConfidence = getenvFloat("MOSAIQ_MIN_CONFIDENCE", cfg.Classifier.MinConfidence)

	j := &cfg.Jobs
	j.Workers = getenvInt("MOSAIQ_WORKERS", j.Workers)
	j.QueueSize = getenvInt("MOSAIQ_QUEUE_SIZE", j.QueueSize)
	j.BatchRate = getenvFloat("MOSAIQ_BATCH_RATE", j.BatchRate)
	j.BatchBurst = getenvInt("MOSAIQ_BATCH_BURST", j.BatchBurst)

	cfg.Store.Path = getenv("MOSAIQ_DB", cfg.Store.Path)

	o := &cfg.Output
	o.Sinks = getenvList("MOSAIQ_OUTPUT", o.Sinks)
	o.Verbosity = getenv("MOSAIQ_VERBOSITY", o.Verbosity)
	o.Pretty = getenvBool("MOSAIQ_OUTPUT_PRETTY", o.Pretty)
	o.FilePath = getenv("MOSAIQ_OUTPUT_FILE", o.FilePath)
	o.FileMaxSize = int64(getenvInt("MOSAIQ_OUTPUT_FILE_MAX_SIZE", int(o.FileMaxSize)))
	o.WebhookURL = getenv("MOSAIQ_WEBHOOK_URL", o.WebhookURL)
	o.WebhookBatchSize = getenvInt("MOSAIQ_WEBHOOK_BATCH_SIZE", o.WebhookBatchSize)
	o.WebhookSecret = getenv("MOSAIQ_WEBHOOK_SECRET", o.WebhookSecret)
	o.WebhookStates = getenvList("MOSAIQ_WEBHOOK_STATES", o.WebhookStates)
	o.Async = getenvBool("MOSAIQ_OUTPUT_ASYNC", o.Async)
	o.AsyncBuffer = getenvInt("MOSAIQ_OUTPUT_ASYNC_BUFFER", o.AsyncBuffer)

	cfg.Log.Level = getenv("MOSAIQ_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("MOSAIQ_LOG_FORMAT", cfg.Log.Format)
}

// Validate checks ranges and enumerations and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.Model.MaxLength < 2 {
		errs = append(errs, fmt.Errorf("model.max_length must be at least 2, got %d", c.Model.MaxLength))
	}
	switch c.Model.LongText {
	case "truncate", "chunk":
	default:
		errs = append(errs, fmt.Errorf("model.long_text must be truncate or chunk, got %q", c.Model.LongText))
	}
	if c.Model.ChunkOverlap < 0 || (c.Model.LongText == "chunk" && c.Model.ChunkOverlap >= c.Model.MaxLength-2) {
		errs = append(errs, fmt.Errorf("model.chunk_overlap must be in [0, max_length-2), got %d", c.Model.ChunkOverlap))
	}
	if c.Model.IntraOpThreads < 0 {
		errs = append(errs, fmt.Errorf("model.intra_op_threads must not be negative, got %d", c.Model.IntraOpThreads))
	}
	if c.Classifier.TopK < 1 {
		errs = append(errs, fmt.Errorf("classifier.top_k must be at least 1, got %d", c.Classifier.TopK))
	}
	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("classifier.min_confidence must be in [0, 1], got %g", c.Classifier.MinConfidence))
	}
	if c.Jobs.Workers < 1 {
		errs = append(errs, fmt.Errorf("jobs.workers must be at least 1, got %d", c.Jobs.Workers))
	}
	if c.Jobs.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("jobs.queue_size must be at least 1, got %d", c.Jobs.QueueSize))
	}
	if c.Jobs.BatchRate < 0 {
		errs = append(errs, fmt.Errorf("jobs.batch_rate must not be negative, got %g", c.Jobs.BatchRate))
	}
	switch strings.ToLower(c.Output.Verbosity) {
	case "minimal", "standard", "full":
	default:
		errs = append(errs, fmt.Errorf("output.verbosity must be minimal, standard or full, got %q", c.Output.Verbosity))
	}
	for _, s := range c.Output.Sinks {
		switch s {
		case "stdout":
		case "file":
			if c.Output.FilePath == "" {
				errs = append(errs, errors.New("output.file_path is required for the file sink"))
			}
		case "webhook":
			if c.Output.WebhookURL == "" {
				errs = append(errs, errors.New("output.webhook_url is required for the webhook sink"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown output sink %q", s))
		}
	}
	for _, s := range c.Output.WebhookStates {
		switch s {
		case "queued", "running", "completed", "failed", "cancelled":
		default:
			errs = append(errs, fmt.Errorf("unknown job state %q in output.webhook_states", s))
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getenvList splits a comma-separated variable, dropping blank entries.
func getenvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
