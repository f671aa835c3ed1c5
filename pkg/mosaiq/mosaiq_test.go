package mosaiq

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/mosaiq/internal/engine/embedder"
	"github.com/hejijunhao/mosaiq/internal/model"
)

var fixtureWords = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"astronomy", "stars", "galaxy", "telescope",
	"cooking", "recipe", "bread", "oven",
	"music", "guitar", "melody", "concert",
}

const fixtureTaxonomy = `
concepts:
  - id: science
    label: Science
  - id: astronomy
    label: Astronomy
    definition: stars galaxy telescope
    parent: science
  - id: cooking
    label: Cooking
    definition: recipe bread oven
  - id: music
    label: Music
    definition: melody guitar concert
`

// bagEmbedder embeds the bag of non-special token ids as a one-hot sum.
type bagEmbedder struct {
	unavailable bool
	calls       atomic.Int64
	gate        chan struct{} // when non-nil, Embed blocks until closed or ctx ends
}

func (b *bagEmbedder) Available() bool { return !b.unavailable }

func (b *bagEmbedder) Embed(ctx context.Context, in embedder.TokenizedInput) ([]float32, error) {
	b.calls.Add(1)
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	vec := make([]float32, len(fixtureWords))
	for _, id := range in.InputIDs {
		if id >= 4 {
			vec[id]++
		}
	}
	return embedder.Normalize(vec), nil
}

func writeFixtures(t *testing.T) (dir string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte(strings.Join(fixtureWords, "\n")+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taxonomy.yaml"), []byte(fixtureTaxonomy), 0o644))
	return dir
}

func withEmbedder(e embedder.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

func newTestService(t *testing.T, emb *bagEmbedder, opts ...Option) *Service {
	t.Helper()
	dir := writeFixtures(t)
	base := []Option{
		WithModelDir(dir),
		WithTaxonomyFile(filepath.Join(dir, "taxonomy.yaml")),
		withEmbedder(emb),
	}
	svc, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestNewWithoutModelDegrades(t *testing.T) {
	dir := writeFixtures(t)
	svc, err := New(WithModelDir(dir))
	require.NoError(t, err)
	defer svc.Close()

	assert.False(t, svc.ClassificationAvailable())
	assert.ErrorIs(t, svc.ModelError(), ErrModelUnavailable)

	start := time.Now()
	_, err = svc.ClassifyContent(context.Background(), ClassifyContentRequest{Title: "stars"})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	_, err = svc.StartClassification(context.Background(), ClassifyItemRequest{ID: "a", Title: "stars"})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	_, err = svc.BatchReclassify(context.Background(), BatchRequest{IDs: []string{"a"}})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Less(t, time.Since(start), time.Second)

	// Taxonomy reads keep working.
	assert.NotEmpty(t, svc.TaxonomyConcepts())
	got := svc.SearchTaxonomyConcepts(context.Background(), "machine learning")
	require.NotEmpty(t, got)
	assert.Equal(t, "machine_learning", got[0].ID)
}

func TestNewVocabularyErrors(t *testing.T) {
	_, err := New(WithModelDir(t.TempDir()))
	assert.ErrorIs(t, err, ErrVocabularyLoad)
}

func TestNewTaxonomyErrors(t *testing.T) {
	dir := writeFixtures(t)
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- id: a\n  label: A\n  parent: ghost\n"), 0o644))

	_, err := New(WithModelDir(dir), WithTaxonomyFile(bad), withEmbedder(&bagEmbedder{}))
	assert.ErrorIs(t, err, ErrTaxonomyLoad)
}

func TestClassifyContent(t *testing.T) {
	svc := newTestService(t, &bagEmbedder{})

	cs, err := svc.ClassifyContent(context.Background(), ClassifyContentRequest{
		Title: "Telescope",
		Text:  "A new galaxy survey maps distant stars.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, cs)
	assert.Equal(t, "astronomy", cs[0].ConceptID)
	for i := 1; i < len(cs); i++ {
		assert.GreaterOrEqual(t, cs[i-1].Confidence, cs[i].Confidence)
	}
	for _, c := range cs {
		assert.GreaterOrEqual(t, c.Confidence, 0.25)
		assert.LessOrEqual(t, c.Confidence, 1.0)
		assert.False(t, c.UserVerified)
	}

	_, err = svc.ClassifyContent(context.Background(), ClassifyContentRequest{Title: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestClassifyContentDeterministic(t *testing.T) {
	svc := newTestService(t, &bagEmbedder{})
	req := ClassifyContentRequest{Title: "Bread", Text: "An oven recipe."}

	first, err := svc.ClassifyContent(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.ClassifyContent(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ConceptID, second[i].ConceptID)
		assert.Equal(t, first[i].Confidence, second[i].Confidence)
	}
}

func TestClassifyContentItemWithText(t *testing.T) {
	svc := newTestService(t, &bagEmbedder{})

	st, err := svc.ClassifyContentItem(context.Background(), ClassifyItemRequest{ID: "n1", Title: "Guitar", Text: "melody"})
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, st.State)
	require.NotEmpty(t, st.Result)
	assert.Equal(t, "music", st.Result[0].ConceptID)

	got, ok := svc.ClassificationStatus("n1")
	require.True(t, ok)
	assert.Equal(t, st.JobID, got.JobID)
	assert.False(t, svc.IsClassifying("n1"))
	assert.True(t, svc.ClearClassificationStatus("n1"))

	_, err = svc.ClassifyContentItem(context.Background(), ClassifyItemRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.ClassifyContentItem(context.Background(), ClassifyItemRequest{ID: "n2"})
	assert.ErrorIs(t, err, ErrNoContentSource)
}

func TestStartAndCancelClassification(t *testing.T) {
	emb := &bagEmbedder{}
	svc := newTestService(t, emb)
	// Armed after New so the taxonomy embeds freely.
	emb.gate = make(chan struct{})

	st, err := svc.StartClassification(context.Background(), ClassifyItemRequest{ID: "a", Title: "stars"})
	require.NoError(t, err)
	assert.True(t, st.State.Active())

	// A second request joins the active job.
	again, err := svc.StartClassification(context.Background(), ClassifyItemRequest{ID: "a", Title: "stars"})
	require.NoError(t, err)
	assert.Equal(t, st.JobID, again.JobID)
	assert.True(t, svc.IsClassifying("a"))

	resp := svc.CancelClassification("a")
	assert.Equal(t, CancelResponse{ID: "a", Cancelled: true}, resp)
	got, _ := svc.ClassificationStatus("a")
	assert.Equal(t, JobCancelled, got.State)
	assert.False(t, svc.CancelClassification("a").Cancelled)
	close(emb.gate)
}

func TestStoreBackedBatch(t *testing.T) {
	emb := &bagEmbedder{}
	dbPath := filepath.Join(t.TempDir(), "mosaiq.db")
	svc := newTestService(t, emb, WithStorePath(dbPath), WithWorkers(2))
	ctx := context.Background()

	items := []Content{
		{ID: "a", Title: "Galaxy", Text: "telescope images of stars"},
		{ID: "b", Title: "Bread", Text: "oven recipe"},
		{ID: "c", Title: "Concert", Text: "guitar melody"},
	}
	for _, c := range items {
		require.NoError(t, svc.AddContent(ctx, c))
	}
	ids, err := svc.ContentIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)

	b, err := svc.BatchReclassify(ctx, BatchRequest{All: true})
	require.NoError(t, err)
	var events []ProgressEvent
	for ev := range b.Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, 3, events[2].Processed)
	assert.Equal(t, BatchSummary{BatchID: b.ID(), Total: 3, Completed: 3}, b.Wait())

	want := map[string]string{"a": "astronomy", "b": "cooking", "c": "music"}
	for id, concept := range want {
		cs, err := svc.StoredClassifications(ctx, id)
		require.NoError(t, err)
		require.NotEmpty(t, cs, id)
		assert.Equal(t, concept, cs[0].ConceptID, id)
	}

	// Loaded from the store when no text is given.
	st, err := svc.ClassifyContentItem(ctx, ClassifyItemRequest{ID: "b", Force: true})
	require.NoError(t, err)
	assert.Equal(t, "cooking", st.Result[0].ConceptID)

	_, err = svc.ClassifyContentItem(ctx, ClassifyItemRequest{ID: "missing"})
	assert.ErrorIs(t, err, ErrContentNotFound)
}

func TestBatchRequestValidation(t *testing.T) {
	svc := newTestService(t, &bagEmbedder{})
	ctx := context.Background()

	_, err := svc.BatchReclassify(ctx, BatchRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.BatchReclassify(ctx, BatchRequest{IDs: []string{"a", ""}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.BatchReclassify(ctx, BatchRequest{IDs: []string{"a"}, All: true})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.BatchReclassify(ctx, BatchRequest{All: true})
	assert.ErrorIs(t, err, ErrNoStore)
	_, err = svc.BatchReclassify(ctx, BatchRequest{IDs: []string{"a"}})
	assert.ErrorIs(t, err, ErrNoContentSource)
}

func TestAutoClassificationOnAdd(t *testing.T) {
	svc := newTestService(t, &bagEmbedder{}, WithStorePath(filepath.Join(t.TempDir(), "db")))
	ctx := context.Background()

	require.NoError(t, svc.AddContent(ctx, Content{ID: "quiet", Title: "stars"}))
	_, ok := svc.ClassificationStatus("quiet")
	assert.False(t, ok)

	svc.SetAutoClassification(true)
	assert.True(t, svc.AutoClassificationEnabled())
	require.NoError(t, svc.AddContent(ctx, Content{ID: "auto", Title: "stars", Text: "galaxy"}))

	require.Eventually(t, func() bool {
		st, ok := svc.ClassificationStatus("auto")
		return ok && st.State == JobCompleted
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		cs, err := svc.StoredClassifications(ctx, "auto")
		return err == nil && len(cs) > 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestVerifyClassificationSurvivesReclassification(t *testing.T) {
	svc := newTestService(t, &bagEmbedder{}, WithStorePath(filepath.Join(t.TempDir(), "db")))
	ctx := context.Background()

	require.NoError(t, svc.AddContent(ctx, Content{ID: "a", Title: "stars"}))
	require.NoError(t, svc.VerifyClassification(ctx, "a", "music"))
	assert.ErrorIs(t, svc.VerifyClassification(ctx, "a", "ghost"), ErrNotFound)

	_, err := svc.ClassifyContentItem(ctx, ClassifyItemRequest{ID: "a"})
	require.NoError(t, err)

	cs, err := svc.StoredClassifications(ctx, "a")
	require.NoError(t, err)
	var verified []string
	for _, c := range cs {
		if c.UserVerified {
			verified = append(verified, c.ConceptID)
		}
	}
	assert.Equal(t, []string{"music"}, verified)
}

func TestProgressSinkReceivesTransitions(t *testing.T) {
	sink := &collectSink{}
	svc := newTestService(t, &bagEmbedder{}, WithProgressSink(sink))

	st, err := svc.ClassifyContentItem(context.Background(), ClassifyItemRequest{ID: "a", Title: "stars"})
	require.NoError(t, err)

	var states []JobState
	for _, ev := range sink.snapshot() {
		if ev.JobID == st.JobID {
			states = append(states, ev.State)
		}
	}
	assert.Equal(t, []JobState{JobQueued, JobRunning, JobCompleted}, states)
}

type collectSink struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (c *collectSink) Write(_ context.Context, ev model.ProgressEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collectSink) snapshot() []model.ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ProgressEvent(nil), c.events...)
}

func TestTaxonomyProxies(t *testing.T) {
	svc := newTestService(t, &bagEmbedder{})

	assert.Len(t, svc.TaxonomyConcepts(), 4)
	c, err := svc.TaxonomyConcept("astronomy")
	require.NoError(t, err)
	assert.Equal(t, "Astronomy", c.Label)
	_, err = svc.TaxonomyConcept("ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	children := svc.ChildConcepts("science")
	require.Len(t, children, 1)
	assert.Equal(t, "astronomy", children[0].ID)

	parent, ok := svc.ParentConcept("astronomy")
	require.True(t, ok)
	assert.Equal(t, "science", parent.ID)
	assert.Len(t, svc.AncestorConcepts("astronomy"), 1)
	assert.Len(t, svc.RootConcepts(), 3)

	got := svc.SearchTaxonomyConcepts(context.Background(), "cook")
	require.NotEmpty(t, got)
	assert.Equal(t, "cooking", got[0].ID)
}

func TestCloseIdempotent(t *testing.T) {
	svc := newTestService(t, &bagEmbedder{}, WithEmbeddingCache(filepath.Join(t.TempDir(), "cache")))
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	_, err := svc.StartClassification(context.Background(), ClassifyItemRequest{ID: "a", Title: "stars"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestResolvePaths(t *testing.T) {
	dir := t.TempDir()
	m, v, p := resolvePaths(options{modelDir: dir})
	assert.Equal(t, filepath.Join(dir, "model.onnx"), m)
	assert.Equal(t, filepath.Join(dir, "vocab.txt"), v)
	assert.Empty(t, p)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_quantized.onnx"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2_Dense"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2_Dense", "model.safetensors"), nil, 0o644))
	m, _, p = resolvePaths(options{modelDir: dir})
	assert.Equal(t, filepath.Join(dir, "model_quantized.onnx"), m)
	assert.Equal(t, filepath.Join(dir, "2_Dense", "model.safetensors"), p)

	m, v, p = resolvePaths(options{modelPath: "/m/x.onnx"})
	assert.Equal(t, "/m/x.onnx", m)
	assert.Equal(t, "/m/vocab.txt", v)
	assert.Empty(t, p)
}

func TestContentForConceptAndRemove(t *testing.T) {
	svc := newTestService(t, &bagEmbedder{}, WithStorePath(filepath.Join(t.TempDir(), "db")))
	ctx := context.Background()

	require.NoError(t, svc.AddContent(ctx, Content{ID: "a", Title: "Galaxy", Text: "stars"}))
	require.NoError(t, svc.AddContent(ctx, Content{ID: "b", Title: "Bread", Text: "oven"}))
	for _, id := range []string{"a", "b"} {
		_, err := svc.ClassifyContentItem(ctx, ClassifyItemRequest{ID: id})
		require.NoError(t, err)
	}

	ids, err := svc.ContentForConcept(ctx, "astronomy")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	require.NoError(t, svc.RemoveContent(ctx, "a"))
	ids, err = svc.ContentForConcept(ctx, "astronomy")
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, err = svc.StoredContent(ctx, "a")
	assert.ErrorIs(t, err, ErrContentNotFound)

	_, err = svc.ContentIDs(ctx)
	require.NoError(t, err)
	noStore := newTestService(t, &bagEmbedder{})
	assert.ErrorIs(t, noStore.AddContent(ctx, Content{ID: "x"}), ErrNoStore)
}
