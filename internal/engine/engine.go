package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hejijunhao/mosaiq/internal/engine/classifier"
	"github.com/hejijunhao/mosaiq/internal/engine/embedder"
	"github.com/hejijunhao/mosaiq/internal/engine/taxonomy"
	"github.com/hejijunhao/mosaiq/internal/model"
)

// Stage names a step of the classification pipeline.
type Stage string

const (
	StageTokenize Stage = "tokenize"
	StageEmbed    Stage = "embed"
	StageMatch    Stage = "match"
)

// Checkpoint is called before every stage. A non-nil error aborts the run
// without a partial result and is returned unchanged.
type Checkpoint func(Stage) error

// LongTextMode selects how input longer than the model window is handled.
type LongTextMode string

const (
	// Truncate keeps the leading window only.
	Truncate LongTextMode = "truncate"
	// Chunk embeds overlapping windows and averages them.
	Chunk LongTextMode = "chunk"
)

// DefaultChunkOverlap is the token overlap between consecutive windows.
const DefaultChunkOverlap = 32

// Config tunes input handling.
type Config struct {
	MaxLength int
	LongText  LongTextMode
	// ChunkOverlap is the token overlap between chunk windows. Zero gives
	// disjoint windows; negative selects DefaultChunkOverlap.
	ChunkOverlap int
}

// Engine orchestrates the tokenize → embed → match pipeline.
type Engine struct {
	tok        *embedder.Tokenizer
	emb        embedder.Embedder
	taxonomy   *taxonomy.Index
	classifier *classifier.Classifier
	cfg        Config
	now        func() time.Time
}

// New creates an Engine with the provided components.
func New(tok *embedder.Tokenizer, emb embedder.Embedder, tax *taxonomy.Index, cls *classifier.Classifier, cfg Config) *Engine {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = embedder.DefaultMaxLength
	}
	if cfg.LongText == "" {
		cfg.LongText = Truncate
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	return &Engine{
		tok:        tok,
		emb:        emb,
		taxonomy:   tax,
		classifier: cls,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Available reports whether the embedding model can serve requests.
func (e *Engine) Available() bool {
	return e.emb.Available()
}

// Taxonomy returns the concept index the engine matches against.
func (e *Engine) Taxonomy() *taxonomy.Index {
	return e.taxonomy
}

// ComposeInput builds the model input for a content item. The title is
// repeated to weight it against the body; empty parts are dropped and parts
// are joined by single spaces.
func ComposeInput(title, text string) string {
	title = strings.TrimSpace(title)
	text = strings.TrimSpace(text)
	parts := make([]string, 0, 3)
	if title != "" {
		parts = append(parts, title, title)
	}
	if text != "" {
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// Classify runs the pipeline for one content item. check may be nil.
func (e *Engine) Classify(ctx context.Context, title, text string, check Checkpoint) ([]model.ConceptClassification, error) {
	if check == nil {
		check = func(Stage) error { return nil }
	}

	if err := check(StageTokenize); err != nil {
		return nil, err
	}
	input := ComposeInput(title, text)
	var inputs []embedder.TokenizedInput
	if e.cfg.LongText == Chunk {
		inputs = e.tok.TokenizeWindows(input, e.cfg.MaxLength, e.cfg.ChunkOverlap)
	} else {
		inputs = []embedder.TokenizedInput{e.tok.Tokenize(input, e.cfg.MaxLength)}
	}

	vecs := make([][]float32, 0, len(inputs))
	for _, in := range inputs {
		if err := check(StageEmbed); err != nil {
			return nil, err
		}
		vec, err := e.emb.Embed(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("engine: embed: %w", err)
		}
		vecs = append(vecs, vec)
	}
	vec := vecs[0]
	if len(vecs) > 1 {
		vec = embedder.Average(vecs)
	}

	if err := check(StageMatch); err != nil {
		return nil, err
	}
	return e.classifier.Classify(vec, e.taxonomy, e.now()), nil
}
