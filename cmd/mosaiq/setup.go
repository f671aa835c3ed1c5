package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/hejijunhao/mosaiq/internal/config"
	"github.com/hejijunhao/mosaiq/internal/logging"
	"github.com/hejijunhao/mosaiq/internal/model"
	"github.com/hejijunhao/mosaiq/internal/output"
	"github.com/hejijunhao/mosaiq/internal/output/async"
	"github.com/hejijunhao/mosaiq/internal/output/file"
	"github.com/hejijunhao/mosaiq/internal/output/multi"
	"github.com/hejijunhao/mosaiq/internal/output/stdout"
	"github.com/hejijunhao/mosaiq/internal/output/webhook"
	"github.com/hejijunhao/mosaiq/pkg/mosaiq"
)

const configKey = "config"

// setup loads and validates the configuration, applies global flags and
// installs the default logger.
func setup(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		os.Setenv("MOSAIQ_CONFIG", path)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v := c.String("db"); v != "" {
		cfg.Store.Path = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) config.Config {
	if cfg, ok := c.App.Metadata[configKey].(config.Config); ok {
		return cfg
	}
	return config.Default()
}

// openService builds the progress sinks and the Service from the loaded
// configuration. The returned func closes both, service first.
func openService(c *cli.Context) (*mosaiq.Service, func(), error) {
	cfg := configFrom(c)
	logger := slog.Default()

	sink, err := buildSink(cfg.Output, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := serviceOptions(cfg, logger)
	if sink != nil {
		opts = append(opts, mosaiq.WithProgressSink(sink))
	}
	svc, err := mosaiq.New(opts...)
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		return nil, nil, err
	}

	closeAll := func() {
		if err := svc.Close(); err != nil {
			logger.Warn("closing service", "error", err)
		}
		if sink != nil {
			if err := sink.Close(); err != nil {
				logger.Warn("closing progress output", "error", err)
			}
		}
	}
	return svc, closeAll, nil
}

func serviceOptions(cfg config.Config, logger *slog.Logger) []mosaiq.Option {
	m := cfg.Model
	opts := []mosaiq.Option{
		mosaiq.WithModelDir(m.Dir),
		mosaiq.WithLibraryPath(m.LibraryPath),
		mosaiq.WithIntraOpThreads(m.IntraOpThreads),
		mosaiq.WithMaxLength(m.MaxLength),
		mosaiq.WithUnicodeWords(m.UnicodeWords),
		mosaiq.WithTopK(cfg.Classifier.TopK),
		mosaiq.WithMinConfidence(cfg.Classifier.MinConfidence),
		mosaiq.WithWorkers(cfg.Jobs.Workers),
		mosaiq.WithQueueSize(cfg.Jobs.QueueSize),
		mosaiq.WithBatchRate(cfg.Jobs.BatchRate, cfg.Jobs.BatchBurst),
		mosaiq.WithLogger(logger),
	}
	if m.Path != "" {
		opts = append(opts, mosaiq.WithModelPaths(m.Path, m.VocabPath, m.ProjectionPath))
	}
	if m.LongText == "chunk" {
		opts = append(opts, mosaiq.WithChunking(m.ChunkOverlap))
	}
	if cfg.Taxonomy.File != "" {
		opts = append(opts, mosaiq.WithTaxonomyFile(cfg.Taxonomy.File))
	}
	if cfg.Taxonomy.CacheDir != "" {
		opts = append(opts, mosaiq.WithEmbeddingCache(cfg.Taxonomy.CacheDir))
	}
	if cfg.Store.Path != "" {
		opts = append(opts, mosaiq.WithStorePath(cfg.Store.Path))
	}
	return opts
}

// buildSink assembles the configured progress outputs. It returns nil when
// no sink is configured.
func buildSink(cfg config.OutputConfig, logger *slog.Logger) (output.Output, error) {
	verbosity, err := output.ParseVerbosity(cfg.Verbosity)
	if err != nil {
		return nil, err
	}

	var outs []output.Output
	closeAll := func() {
		for _, o := range outs {
			o.Close()
		}
	}
	for _, name := range cfg.Sinks {
		switch name {
		case "stdout":
			outs = append(outs, stdout.New(verbosity, cfg.Pretty))
		case "file":
			var fileOpts []file.Option
			if cfg.FileMaxSize > 0 {
				fileOpts = append(fileOpts, file.WithMaxSize(cfg.FileMaxSize))
			}
			f, err := file.New(cfg.FilePath, verbosity, fileOpts...)
			if err != nil {
				closeAll()
				return nil, err
			}
			outs = append(outs, f)
		case "webhook":
			states := make([]model.JobState, len(cfg.WebhookStates))
			for i, s := range cfg.WebhookStates {
				states[i] = model.JobState(s)
			}
			outs = append(outs, webhook.New(cfg.WebhookURL,
				webhook.WithBatchSize(cfg.WebhookBatchSize),
				webhook.WithVerbosity(verbosity),
				webhook.WithSecret(cfg.WebhookSecret),
				webhook.WithStates(states...),
				webhook.WithOnError(func(err error) {
					logger.Warn("webhook delivery failed", "error", err)
				}),
			))
		default:
			closeAll()
			return nil, fmt.Errorf("unknown output sink %q", name)
		}
	}

	var out output.Output
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		out = outs[0]
	default:
		out = multi.New(outs...)
	}
	if cfg.Async {
		out = async.New(out,
			async.WithBufferSize(cfg.AsyncBuffer),
			async.WithOnError(func(err error) {
				logger.Warn("progress output write failed", "error", err)
			}),
		)
	}
	return out, nil
}
