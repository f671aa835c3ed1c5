package taxonomy

import (
	"cmp"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/go-crypt/x/blake2b"

	"github.com/hejijunhao/mosaiq/internal/engine/embedder"
	"github.com/hejijunhao/mosaiq/internal/model"
)

var (
	// ErrTaxonomyLoad is returned when a taxonomy resource is malformed. It is
	// fatal at index construction.
	ErrTaxonomyLoad = errors.New("taxonomy load failed")

	// ErrNotFound is returned when a concept id is not in the index.
	ErrNotFound = errors.New("concept not found")
)

// searchFallbackLimit caps embedding-similarity search results.
const searchFallbackLimit = 10

// TextEmbedder embeds raw text. *embedder.Encoder satisfies it.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Available() bool
	ModelName() string
}

// EmbeddingCache persists concept embeddings across runs.
type EmbeddingCache interface {
	Get(key string) ([]float32, bool, error)
	Put(key string, vec []float32) error
}

// Match is a concept scored against a query vector.
type Match struct {
	Concept model.Concept
	Score   float64
}

// Index holds the concept forest and its embeddings. It is immutable after
// Build and safe for concurrent reads. Returned concepts share embedding
// storage with the index and must not be modified.
type Index struct {
	concepts []model.Concept // insertion order
	byID     map[string]int
	children map[string][]int
	roots    []int
	dim      int

	embedder TextEmbedder
	logger   *slog.Logger
}

type options struct {
	embedder TextEmbedder
	cache    EmbeddingCache
	logger   *slog.Logger
}

// Option configures Build.
type Option func(*options)

// WithEmbedder embeds concepts that carry no precomputed embedding and
// enables the similarity fallback in Search.
func WithEmbedder(e TextEmbedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithCache looks up and stores computed concept embeddings.
func WithCache(c EmbeddingCache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Build validates records and constructs the index. Structural problems wrap
// ErrTaxonomyLoad. Concepts without an embedding are embedded through the
// configured embedder when it is available; otherwise they are only
// reachable through lexical search.
func Build(ctx context.Context, records []Record, opts ...Option) (*Index, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	idx := &Index{
		concepts: make([]model.Concept, 0, len(records)),
		byID:     make(map[string]int, len(records)),
		children: make(map[string][]int),
		embedder: o.embedder,
		logger:   o.logger.With("component", "taxonomy"),
	}

	for i, r := range records {
		id := strings.TrimSpace(r.ID)
		label := strings.TrimSpace(r.Label)
		if id == "" {
			return nil, fmt.Errorf("%w: record %d has no id", ErrTaxonomyLoad, i)
		}
		if label == "" {
			return nil, fmt.Errorf("%w: concept %q has no label", ErrTaxonomyLoad, id)
		}
		if _, dup := idx.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate concept id %q", ErrTaxonomyLoad, id)
		}
		c := model.Concept{
			ID:         id,
			Label:      label,
			Definition: strings.TrimSpace(r.Definition),
			Synonyms:   slices.Clone(r.Synonyms),
			ParentID:   strings.TrimSpace(r.Parent),
		}
		if len(r.Embedding) > 0 {
			c.Embedding = embedder.Normalize(slices.Clone(r.Embedding))
		}
		idx.byID[id] = len(idx.concepts)
		idx.concepts = append(idx.concepts, c)
	}

	if err := idx.link(); err != nil {
		return nil, err
	}
	if err := idx.embedMissing(ctx, o.cache); err != nil {
		return nil, err
	}
	return idx, nil
}

// link builds the parent→children index and rejects dangling parents and
// cycles.
func (idx *Index) link() error {
	for i, c := range idx.concepts {
		if c.ParentID == "" {
			idx.roots = append(idx.roots, i)
			continue
		}
		if _, ok := idx.byID[c.ParentID]; !ok {
			return fmt.Errorf("%w: concept %q has unknown parent %q", ErrTaxonomyLoad, c.ID, c.ParentID)
		}
		idx.children[c.ParentID] = append(idx.children[c.ParentID], i)
	}

	for _, c := range idx.concepts {
		steps := 0
		for p := c.ParentID; p != ""; p = idx.concepts[idx.byID[p]].ParentID {
			if p == c.ID || steps > len(idx.concepts) {
				return fmt.Errorf("%w: parent cycle through concept %q", ErrTaxonomyLoad, c.ID)
			}
			steps++
		}
	}
	return nil
}

func (idx *Index) embedMissing(ctx context.Context, cache EmbeddingCache) error {
	for _, c := range idx.concepts {
		if c.Embedding == nil {
			continue
		}
		if idx.dim == 0 {
			idx.dim = len(c.Embedding)
		} else if len(c.Embedding) != idx.dim {
			return fmt.Errorf("%w: concept %q embedding has dimension %d, want %d",
				ErrTaxonomyLoad, c.ID, len(c.Embedding), idx.dim)
		}
	}

	if idx.embedder == nil || !idx.embedder.Available() {
		return nil
	}

	var computed, cached int
	for i := range idx.concepts {
		c := &idx.concepts[i]
		if c.Embedding != nil {
			continue
		}
		text := ConceptText(*c)
		key := cacheKey(idx.embedder.ModelName(), c.ID, text)

		var vec []float32
		if cache != nil {
			v, ok, err := cache.Get(key)
			if err != nil {
				idx.logger.Warn("embedding cache read failed", "concept", c.ID, "error", err)
			} else if ok {
				vec = v
				cached++
			}
		}
		if vec == nil {
			v, err := idx.embedder.EmbedText(ctx, text)
			if err != nil {
				return fmt.Errorf("taxonomy: embed concept %q: %w", c.ID, err)
			}
			vec = v
			computed++
			if cache != nil {
				if err := cache.Put(key, vec); err != nil {
					idx.logger.Warn("embedding cache write failed", "concept", c.ID, "error", err)
				}
			}
		}

		if idx.dim == 0 {
			idx.dim = len(vec)
		} else if len(vec) != idx.dim {
			return fmt.Errorf("%w: concept %q embedding has dimension %d, want %d",
				ErrTaxonomyLoad, c.ID, len(vec), idx.dim)
		}
		c.Embedding = vec
	}

	idx.logger.Info("taxonomy embedded", "concepts", len(idx.concepts), "computed", computed, "cached", cached)
	return nil
}

// ConceptText is the text embedded for a concept: the label, its definition
// and its synonyms.
func ConceptText(c model.Concept) string {
	var b strings.Builder
	b.WriteString(c.Label)
	if c.Definition != "" {
		b.WriteString(": ")
		b.WriteString(c.Definition)
	}
	if len(c.Synonyms) > 0 {
		b.WriteString(". Also known as ")
		b.WriteString(strings.Join(c.Synonyms, ", "))
	}
	return b.String()
}

// cacheKey changes whenever the embedded text changes, so edited labels are
// re-embedded.
func cacheKey(modelName, conceptID, text string) string {
	h, _ := blake2b.New(8, nil) // 64-bit digest
	h.Write([]byte(text))
	return "concept/" + modelName + "/" + conceptID + "/" + hex.EncodeToString(h.Sum(nil))
}

// Len returns the number of concepts.
func (idx *Index) Len() int { return len(idx.concepts) }

// Dim returns the embedding dimension, 0 when no concept is embedded.
func (idx *Index) Dim() int { return idx.dim }

// All returns every concept in insertion order.
func (idx *Index) All() []model.Concept {
	return slices.Clone(idx.concepts)
}

// Get returns the concept with the given id.
func (idx *Index) Get(id string) (model.Concept, error) {
	i, ok := idx.byID[id]
	if !ok {
		return model.Concept{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return idx.concepts[i], nil
}

// Children returns the direct children of id in insertion order.
func (idx *Index) Children(id string) []model.Concept {
	return idx.pick(idx.children[id])
}

// Roots returns the top-level concepts.
func (idx *Index) Roots() []model.Concept {
	return idx.pick(idx.roots)
}

// Parent returns the parent of id. ok is false for unknown ids and roots.
func (idx *Index) Parent(id string) (parent model.Concept, ok bool) {
	i, found := idx.byID[id]
	if !found || idx.concepts[i].ParentID == "" {
		return model.Concept{}, false
	}
	return idx.concepts[idx.byID[idx.concepts[i].ParentID]], true
}

// Ancestors returns the chain of parents of id, nearest first.
func (idx *Index) Ancestors(id string) []model.Concept {
	var out []model.Concept
	for p, ok := idx.Parent(id); ok; p, ok = idx.Parent(p.ID) {
		out = append(out, p)
	}
	return out
}

func (idx *Index) pick(is []int) []model.Concept {
	if len(is) == 0 {
		return nil
	}
	out := make([]model.Concept, len(is))
	for j, i := range is {
		out[j] = idx.concepts[i]
	}
	return out
}

// TopMatches scores vec against every embedded concept by dot product, drops
// scores below minScore and returns the best k, highest first. Equal scores
// keep insertion order. k <= 0 returns all passing concepts.
func (idx *Index) TopMatches(vec []float32, k int, minScore float64) []Match {
	var matches []Match
	for _, c := range idx.concepts {
		if len(c.Embedding) == 0 || len(c.Embedding) != len(vec) {
			continue
		}
		score := embedder.Dot(vec, c.Embedding)
		if score < minScore {
			continue
		}
		matches = append(matches, Match{Concept: c, Score: score})
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Lexical match ranks, best first.
const (
	rankExactLabel = iota
	rankLabelPrefix
	rankLabelOrSynonym
	rankDefinition
	noMatch
)

// Search finds concepts by case-insensitive lexical match over labels,
// synonyms and definitions, ranked exact label, label prefix, label or
// synonym substring, then definition substring. When nothing matches
// lexically and an embedder is available, the query is embedded and the
// closest concepts are returned instead.
func (idx *Index) Search(ctx context.Context, query string) []model.Concept {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	type hit struct {
		rank int
		i    int
	}
	var hits []hit
	for i, c := range idx.concepts {
		if r := lexicalRank(c, q); r != noMatch {
			hits = append(hits, hit{r, i})
		}
	}
	if len(hits) > 0 {
		slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(a.rank, b.rank) })
		out := make([]model.Concept, len(hits))
		for j, h := range hits {
			out[j] = idx.concepts[h.i]
		}
		return out
	}

	if idx.embedder == nil || !idx.embedder.Available() || idx.dim == 0 {
		return nil
	}
	vec, err := idx.embedder.EmbedText(ctx, query)
	if err != nil {
		idx.logger.Debug("similarity search skipped", "query", query, "error", err)
		return nil
	}
	matches := idx.TopMatches(vec, searchFallbackLimit, 0)
	out := make([]model.Concept, len(matches))
	for j, m := range matches {
		out[j] = m.Concept
	}
	return out
}

func lexicalRank(c model.Concept, q string) int {
	label := strings.ToLower(c.Label)
	switch {
	case label == q:
		return rankExactLabel
	case strings.HasPrefix(label, q):
		return rankLabelPrefix
	case strings.Contains(label, q):
		return rankLabelOrSynonym
	}
	for _, s := range c.Synonyms {
		if strings.Contains(strings.ToLower(s), q) {
			return rankLabelOrSynonym
		}
	}
	if strings.Contains(strings.ToLower(c.Definition), q) {
		return rankDefinition
	}
	return noMatch
}
