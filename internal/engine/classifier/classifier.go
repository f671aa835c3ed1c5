package classifier

import (
	"time"

	"github.com/hejijunhao/mosaiq/internal/engine/taxonomy"
	"github.com/hejijunhao/mosaiq/internal/model"
)

// Defaults applied by New for non-positive arguments.
const (
	DefaultTopK          = 5
	DefaultMinConfidence = 0.25
)

// Matcher scores a vector against taxonomy concepts. *taxonomy.Index
// satisfies it.
type Matcher interface {
	TopMatches(vec []float32, k int, minScore float64) []taxonomy.Match
}

// Classifier turns a content embedding into ranked concept classifications.
type Classifier struct {
	TopK          int
	MinConfidence float64
}

// New creates a Classifier keeping at most topK concepts scoring at least
// minConfidence.
func New(topK int, minConfidence float64) *Classifier {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minConfidence < 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Classifier{TopK: topK, MinConfidence: minConfidence}
}

// Classify returns the best matching concepts for vector, highest confidence
// first. Confidence is the cosine similarity clamped to [0,1]; every entry
// shares the classifiedAt timestamp.
func (c *Classifier) Classify(vector []float32, m Matcher, classifiedAt time.Time) []model.ConceptClassification {
	matches := m.TopMatches(vector, c.TopK, c.MinConfidence)
	out := make([]model.ConceptClassification, 0, len(matches))
	for _, match := range matches {
		out = append(out, model.ConceptClassification{
			ConceptID:    match.Concept.ID,
			Confidence:   clamp(match.Score),
			ClassifiedAt: classifiedAt,
		})
	}
	return out
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
