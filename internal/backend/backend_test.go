package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

type fixture struct {
	store    *storage.SQLiteStorage
	embedder embedding.Embedder
	kw       map[string]keyword.KeywordIndex
	vec      map[string]vector.VectorIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:    store,
		embedder: embedding.NewHashEmbedder(64),
		kw:       map[string]keyword.KeywordIndex{},
		vec:      map[string]vector.VectorIndex{},
	}
	ki, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { ki.Close() })
	vi, err := vector.NewMemoryIndex(64)
	require.NoError(t, err)
	f.kw[config.CollectionDocument] = ki
	f.vec[config.CollectionDocument] = vi

	records := []*models.Record{
		{ID: "d1", Collection: "document", DocID: "d1", Content: "time measurement with atomic clocks"},
		{ID: "d2", Collection: "document", DocID: "d2", Content: "gardening tips for spring"},
	}
	require.NoError(t, store.PutRecords(ctx, records))
	for _, r := range records {
		require.NoError(t, ki.Index(ctx, r))
		emb, err := f.embedder.Embed(ctx, r.Content)
		require.NoError(t, err)
		require.NoError(t, vi.Add(ctx, []string{r.ID}, [][]float32{emb}))
	}
	return f
}

func TestVectorAdapter_Search(t *testing.T) {
	f := newFixture(t)
	a := NewVectorAdapter(f.embedder, f.vec, f.store)
	assert.Equal(t, models.SourceVector, a.Source())

	cands, err := a.Search(context.Background(), Query{Collection: "document", Text: "time measurement", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, "d1", cands[0].DocID)
	assert.Equal(t, models.SourceVector, cands[0].Source)
	assert.Equal(t, "time measurement with atomic clocks", cands[0].Content)
	for _, c := range cands {
		assert.GreaterOrEqual(t, c.RawScore, 0.0)
		assert.LessOrEqual(t, c.RawScore, 1.0)
	}
}

func TestVectorAdapter_UnloadedModelIsUnavailable(t *testing.T) {
	f := newFixture(t)
	a := NewVectorAdapter(embedding.NewUnavailableEmbedder(64, errors.New("model file missing")), f.vec, f.store)

	cands, err := a.Search(context.Background(), Query{Collection: "document", Text: "time measurement", Limit: 5})
	require.Error(t, err)
	assert.Empty(t, cands)
	assert.True(t, errors.Is(err, models.ErrBackendUnavailable))
	assert.True(t, errors.Is(err, embedding.ErrModelUnavailable))
}

func TestKeywordAdapter_Search(t *testing.T) {
	f := newFixture(t)
	a := NewKeywordAdapter(f.kw, f.store, 2)

	cands, err := a.Search(context.Background(), Query{Collection: "document", Text: "measurement", Limit: 5})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "d1", cands[0].DocID)
	assert.Greater(t, cands[0].RawScore, 0.0)

	cands, err = a.Search(context.Background(), Query{Collection: "document", Text: "measurment", Limit: 5, Fuzzy: true})
	require.NoError(t, err)
	require.Len(t, cands, 1, "fuzzy should tolerate one missing letter")

	cands, err = a.Search(context.Background(), Query{Collection: "document", Text: "volcano", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, cands, "no matches is empty, not an error")
}

func TestKeywordAdapter_TitleBoost(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ki, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { ki.Close() })

	records := []*models.Record{
		{ID: "w1", Collection: "web", DocID: "w1", Content: "clocks clocks clocks and more clocks on display"},
		{ID: "w2", Collection: "web", DocID: "w2", Content: "a short history of timekeeping and clocks",
			Metadata: map[string]interface{}{"title": "Clocks"}},
	}
	require.NoError(t, store.PutRecords(ctx, records))
	for _, r := range records {
		require.NoError(t, ki.Index(ctx, r))
	}

	a := NewKeywordAdapter(map[string]keyword.KeywordIndex{"web": ki}, store, 2)
	cands, err := a.Search(ctx, Query{Collection: "web", Text: "clocks", Limit: 5, TitleBoost: 10})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "w2", cands[0].DocID, "title match should outrank repeated content")
	assert.Greater(t, cands[0].RawScore, cands[1].RawScore)
}

func TestAdapters_MissingCollectionIsUnavailable(t *testing.T) {
	f := newFixture(t)
	for _, a := range []Adapter{
		NewVectorAdapter(f.embedder, f.vec, f.store),
		NewKeywordAdapter(f.kw, f.store, 2),
	} {
		_, err := a.Search(context.Background(), Query{Collection: "email", Text: "x", Limit: 5})
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrBackendUnavailable))
		var be *models.BackendError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "email", be.Collection)
		assert.Equal(t, a.Source(), be.Source)
	}
}

func TestHydrateSkipsStaleIDs(t *testing.T) {
	f := newFixture(t)
	cands, err := hydrate(context.Background(), f.store, "document", models.SourceKeyword,
		[]hit{{id: "gone", score: 3}, {id: "d2", score: 1}})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "d2", cands[0].DocID)
	assert.Equal(t, 1.0, cands[0].RawScore)
}

type failingAdapter struct {
	calls int
	err   error
}

func (f *failingAdapter) Source() models.Source { return models.SourceKeyword }

func (f *failingAdapter) Search(context.Context, Query) ([]models.Candidate, error) {
	f.calls++
	return nil, f.err
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingAdapter{err: errors.New("index closed")}
	a := WithBreaker(inner, config.BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, zap.NewNop())
	b, ok := a.(*Breaker)
	require.True(t, ok)

	q := Query{Collection: "web", Text: "x", Limit: 1}
	for i := 0; i < 2; i++ {
		_, err := a.Search(context.Background(), q)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State("web"))
	assert.Equal(t, gobreaker.StateClosed, b.State("email"))

	_, err := a.Search(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls, "open breaker should short-circuit")
	assert.True(t, IsCircuitOpen(err))
	assert.True(t, errors.Is(err, models.ErrBackendUnavailable))
}

func TestBreaker_IgnoresCallerCancellation(t *testing.T) {
	inner := &failingAdapter{err: context.Canceled}
	a := WithBreaker(inner, config.BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, _ = a.Search(context.Background(), Query{Collection: "web"})
	}
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, gobreaker.StateClosed, a.(*Breaker).State("web"))
}

func TestWithBreaker_ZeroDisables(t *testing.T) {
	inner := &failingAdapter{}
	assert.Same(t, inner, WithBreaker(inner, config.BreakerConfig{}, nil))
}

func TestOpen_BuildsAdaptersPerCollection(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.IndexDir = dir
	cfg.Collections = []string{"document"}
	cfg.Embedding.Dimensions = 16

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	defer store.Close()

	set := Open(cfg, embedding.NewHashEmbedder(16), store, zap.NewNop())
	defer set.Close()
	assert.Len(t, set.Keyword, 1)
	assert.Len(t, set.Vector, 1)
	require.NotNil(t, set.Adapter(models.SourceVector))
	require.NotNil(t, set.Adapter(models.SourceKeyword))

	cands, err := set.Adapter(models.SourceKeyword).Search(context.Background(), Query{Collection: "document", Text: "x", Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, cands)

	require.NoError(t, set.SaveVectors())
	assert.FileExists(t, cfg.Storage.VectorPath("document"))
}
