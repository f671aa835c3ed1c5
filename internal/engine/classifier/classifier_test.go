package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hejijunhao/mosaiq/internal/engine/taxonomy"
	"github.com/hejijunhao/mosaiq/internal/model"
)

type stubMatcher struct {
	matches []taxonomy.Match
	k       int
	min     float64
}

func (s *stubMatcher) TopMatches(_ []float32, k int, minScore float64) []taxonomy.Match {
	s.k, s.min = k, minScore
	return s.matches
}

func match(id string, score float64) taxonomy.Match {
	return taxonomy.Match{Concept: model.Concept{ID: id}, Score: score}
}

func TestNewDefaults(t *testing.T) {
	c := New(0, -1)
	assert.Equal(t, DefaultTopK, c.TopK)
	assert.Equal(t, DefaultMinConfidence, c.MinConfidence)

	c = New(3, 0)
	assert.Equal(t, 3, c.TopK)
	assert.Zero(t, c.MinConfidence)
}

func TestClassify(t *testing.T) {
	m := &stubMatcher{matches: []taxonomy.Match{match("b", 1.0000001), match("a", 0.7), match("c", 0.3)}}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := New(4, 0.2).Classify([]float32{1}, m, at)

	assert.Equal(t, 4, m.k)
	assert.Equal(t, 0.2, m.min)
	assert.Equal(t, []model.ConceptClassification{
		{ConceptID: "b", Confidence: 1, ClassifiedAt: at},
		{ConceptID: "a", Confidence: 0.7, ClassifiedAt: at},
		{ConceptID: "c", Confidence: 0.3, ClassifiedAt: at},
	}, got)
}

func TestClassifyNoMatches(t *testing.T) {
	got := New(5, 0.5).Classify([]float32{1}, &stubMatcher{}, time.Now())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestClamp(t *testing.T) {
	assert.Zero(t, clamp(-0.2))
	assert.Equal(t, 1.0, clamp(1.3))
	assert.Equal(t, 0.42, clamp(0.42))
}
