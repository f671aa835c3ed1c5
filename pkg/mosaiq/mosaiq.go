package mosaiq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hejijunhao/mosaiq/internal/engine"
	"github.com/hejijunhao/mosaiq/internal/engine/classifier"
	"github.com/hejijunhao/mosaiq/internal/engine/embedder"
	"github.com/hejijunhao/mosaiq/internal/engine/taxonomy"
	"github.com/hejijunhao/mosaiq/internal/jobs"
	"github.com/hejijunhao/mosaiq/internal/store/badger"
	"github.com/hejijunhao/mosaiq/internal/store/sqlite"
)

// Service is the content classification engine. Safe for concurrent use.
type Service struct {
	model    *embedder.Model // nil when the embedder was injected
	modelErr error
	engine   *engine.Engine
	taxonomy *taxonomy.Index
	jobs     *jobs.Manager
	source   ContentSource
	cache    *badger.Cache
	store    *sqlite.Store
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New assembles a Service: it loads the vocabulary, the model and the
// taxonomy, embeds the taxonomy and starts the job manager. Vocabulary,
// taxonomy, cache and store failures are returned. A model that cannot be
// loaded is not an error: the Service starts with classification disabled.
func New(opts ...Option) (*Service, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	s := &Service{logger: o.logger}
	if err := s.init(o); err != nil {
		s.release()
		return nil, fmt.Errorf("mosaiq: %w", err)
	}
	return s, nil
}

func (s *Service) init(o options) error {
	modelPath, vocabPath, projPath := resolvePaths(o)

	tok, err := embedder.NewTokenizer(vocabPath, embedder.WithUnicodeWords(o.unicodeWords))
	if err != nil {
		return err
	}

	emb := o.embedder
	name := "injected"
	if emb == nil {
		s.model, s.modelErr = embedder.NewModel(embedder.ModelConfig{
			ModelPath:      modelPath,
			ProjectionPath: projPath,
			LibraryPath:    o.libraryPath,
			IntraOpThreads: o.intraOpThreads,
			Logger:         o.logger,
		})
		emb = s.model
		name = s.model.Name()
	}

	if o.cacheDir != "" {
		if s.cache, err = badger.Open(o.cacheDir, o.logger); err != nil {
			return err
		}
	}

	records := taxonomy.DefaultRecords()
	if o.taxonomyFile != "" {
		if records, err = taxonomy.LoadFile(o.taxonomyFile); err != nil {
			return err
		}
	}
	taxOpts := []taxonomy.Option{
		taxonomy.WithEmbedder(embedder.NewEncoder(tok, emb, o.maxLength, name)),
		taxonomy.WithLogger(o.logger),
	}
	if s.cache != nil {
		taxOpts = append(taxOpts, taxonomy.WithCache(s.cache))
	}
	if s.taxonomy, err = taxonomy.Build(context.Background(), records, taxOpts...); err != nil {
		return err
	}

	s.engine = engine.New(tok, emb, s.taxonomy, classifier.New(o.topK, o.minConfidence), engine.Config{
		MaxLength:    o.maxLength,
		LongText:     o.longText,
		ChunkOverlap: o.chunkOverlap,
	})

	if o.storePath != "" {
		if s.store, err = sqlite.Open(context.Background(), o.storePath); err != nil {
			return err
		}
	}
	s.source = o.source
	recorder := o.recorder
	if s.store != nil {
		if s.source == nil {
			s.source = s.store
		}
		if recorder == nil {
			recorder = s.store
		}
	}

	jobOpts := []jobs.Option{
		jobs.WithWorkers(o.workers),
		jobs.WithQueueSize(o.queueSize),
		jobs.WithBatchRate(o.batchRate, o.batchBurst),
		jobs.WithLogger(o.logger),
	}
	if s.source != nil {
		jobOpts = append(jobOpts, jobs.WithContentSource(s.source))
	}
	if recorder != nil {
		jobOpts = append(jobOpts, jobs.WithRecorder(recorder))
	}
	if o.sink != nil {
		jobOpts = append(jobOpts, jobs.WithSink(o.sink))
	}
	s.jobs, err = jobs.NewManager(s.engine, jobOpts...)
	return err
}

// ClassificationAvailable reports whether the model loaded. It never
// changes during the life of the Service.
func (s *Service) ClassificationAvailable() bool {
	return s.engine != nil && s.engine.Available()
}

// ModelError returns why the model could not be loaded, or nil.
func (s *Service) ModelError() error {
	return s.modelErr
}

// ClassifyContent classifies a title and text without creating a job.
func (s *Service) ClassifyContent(ctx context.Context, req ClassifyContentRequest) ([]Classification, error) {
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: title and text are both empty", ErrInvalidRequest)
	}
	if !s.ClassificationAvailable() {
		return nil, ErrServiceUnavailable
	}
	return s.engine.Classify(ctx, req.Title, req.Text, func(engine.Stage) error {
		return ctx.Err()
	})
}

// StartClassification queues classification of one item and returns the
// job's status at once. An active job for the same id is returned unless
// req.Force is set.
func (s *Service) StartClassification(ctx context.Context, req ClassifyItemRequest) (JobStatus, error) {
	j, err := s.startJob(ctx, req)
	if err != nil {
		return JobStatus{}, err
	}
	return j.Status(), nil
}

// ClassifyContentItem classifies one item and waits for the job to finish
// or ctx to end. A failed job returns its status with an error wrapping
// ErrJobFailed; a cancelled job is returned without error.
func (s *Service) ClassifyContentItem(ctx context.Context, req ClassifyItemRequest) (JobStatus, error) {
	j, err := s.startJob(ctx, req)
	if err != nil {
		return JobStatus{}, err
	}
	return j.Wait(ctx)
}

func (s *Service) startJob(ctx context.Context, req ClassifyItemRequest) (*jobs.Job, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	if !s.ClassificationAvailable() {
		return nil, ErrServiceUnavailable
	}

	title, text := req.Title, req.Text
	if title == "" && text == "" {
		if s.source == nil {
			return nil, ErrNoContentSource
		}
		c, err := s.source.Content(ctx, id)
		if err != nil {
			return nil, err
		}
		title, text = c.Title, c.Text
	}
	return s.jobs.Classify(id, title, text, jobs.ClassifyOptions{Force: req.Force})
}

// BatchReclassify reclassifies several items in the background. Progress
// arrives on Batch.Events, and Batch.Wait returns the summary.
func (s *Service) BatchReclassify(ctx context.Context, req BatchRequest) (*Batch, error) {
	ids := req.IDs
	switch {
	case req.All && len(ids) > 0:
		return nil, fmt.Errorf("%w: all and ids are exclusive", ErrInvalidRequest)
	case req.All:
		if s.store == nil {
			return nil, ErrNoStore
		}
		var err error
		if ids, err = s.store.ListContentIDs(ctx); err != nil {
			return nil, err
		}
	case len(ids) == 0:
		return nil, fmt.Errorf("%w: no ids", ErrInvalidRequest)
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: empty id in batch", ErrInvalidRequest)
		}
	}
	return s.jobs.BatchReclassify(ctx, ids, jobs.BatchOptions{Force: req.Force})
}

// CancelClassification cancels the active job for id, if any.
func (s *Service) CancelClassification(id string) CancelResponse {
	return CancelResponse{ID: id, Cancelled: s.jobs.Cancel(id)}
}

// ClassificationStatus returns the latest job status for id.
func (s *Service) ClassificationStatus(id string) (JobStatus, bool) {
	return s.jobs.Status(id)
}

// ClearClassificationStatus forgets a finished job for id.
func (s *Service) ClearClassificationStatus(id string) bool {
	return s.jobs.ClearStatus(id)
}

// IsClassifying reports whether id has a queued or running job.
func (s *Service) IsClassifying(id string) bool {
	return s.jobs.IsClassifying(id)
}

// SetAutoClassification turns classification on AddContent on or off.
func (s *Service) SetAutoClassification(enabled bool) {
	s.jobs.SetAutoClassification(enabled)
}

// AutoClassificationEnabled returns the auto-classification flag.
func (s *Service) AutoClassificationEnabled() bool {
	return s.jobs.AutoClassificationEnabled()
}

// Close cancels running jobs and releases the model, cache and store.
func (s *Service) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.release() })
	return s.closeErr
}

func (s *Service) release() error {
	var errs []error
	if s.jobs != nil {
		errs = append(errs, s.jobs.Close())
	}
	if s.model != nil {
		errs = append(errs, s.model.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
