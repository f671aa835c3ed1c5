package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/mosaiq/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "mosaiq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	added := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.PutContent(ctx, model.Content{ID: "a", Title: "Black holes", Text: "Event horizons.", URL: "https://example.org/a", AddedAt: added}))
	require.NoError(t, s.PutContent(ctx, model.Content{ID: "b", Title: "Tax policy", AddedAt: added.Add(time.Hour)}))

	c, err := s.Content(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Black holes", c.Title)
	assert.Equal(t, "Event horizons.", c.Text)
	assert.True(t, added.Equal(c.AddedAt))

	require.NoError(t, s.PutContent(ctx, model.Content{ID: "a", Title: "Black holes, revised"}))
	c, err = s.Content(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Black holes, revised", c.Title)
	assert.True(t, added.Equal(c.AddedAt), "replacing keeps the original added time")

	ids, err := s.ListContentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	_, err = s.Content(ctx, "missing")
	assert.ErrorIs(t, err, ErrContentNotFound)

	assert.Error(t, s.PutContent(ctx, model.Content{}))
}

func TestSaveClassificationsKeepsUserVerified(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.PutContent(ctx, model.Content{ID: "a", Title: "t"}))

	now := time.Now().UTC()
	require.NoError(t, s.SaveClassifications(ctx, "a", []model.ConceptClassification{
		{ConceptID: "physics", Confidence: 0.8, ClassifiedAt: now},
		{ConceptID: "astronomy", Confidence: 0.6, ClassifiedAt: now},
	}))
	require.NoError(t, s.VerifyClassification(ctx, "a", "astronomy"))
	require.NoError(t, s.VerifyClassification(ctx, "a", "history"))

	// Reclassification replaces machine results only.
	require.NoError(t, s.SaveClassifications(ctx, "a", []model.ConceptClassification{
		{ConceptID: "chemistry", Confidence: 0.7, ClassifiedAt: now},
		{ConceptID: "astronomy", Confidence: 0.3, ClassifiedAt: now},
	}))

	got, err := s.Classifications(ctx, "a")
	require.NoError(t, err)
	byID := map[string]model.ConceptClassification{}
	for _, c := range got {
		byID[c.ConceptID] = c
	}
	require.Len(t, byID, 3)
	assert.NotContains(t, byID, "physics")
	assert.False(t, byID["chemistry"].UserVerified)
	assert.True(t, byID["astronomy"].UserVerified)
	assert.InDelta(t, 0.6, byID["astronomy"].Confidence, 1e-9)
	assert.True(t, byID["history"].UserVerified)

	assert.Equal(t, "history", got[0].ConceptID, "ordered by confidence")

	ids, err := s.ContentByConcept(ctx, "chemistry")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestDeleteContentCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.PutContent(ctx, model.Content{ID: "a"}))
	require.NoError(t, s.SaveClassifications(ctx, "a", []model.ConceptClassification{{ConceptID: "physics", Confidence: 0.5}}))

	require.NoError(t, s.DeleteContent(ctx, "a"))
	got, err := s.Classifications(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveClassificationsRequiresContent(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveClassifications(context.Background(), "ghost", []model.ConceptClassification{{ConceptID: "physics"}})
	assert.Error(t, err, "foreign key enforced")
}

func TestOpenInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutContent(ctx, model.Content{ID: "x", Title: "in memory"}))
	c, err := s.Content(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "in memory", c.Title)
}
