package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedHNSW(t *testing.T, n int) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(4, Options{})
	require.NoError(t, err)
	ids := make([]string, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("doc-%02d", i)
		vecs[i] = []float32{float32(i + 1), 1, 0, 0}
	}
	require.NoError(t, idx.Add(context.Background(), ids, vecs))
	return idx
}

func TestHNSWIndex_AddSearch(t *testing.T) {
	idx := seedHNSW(t, 20)
	ctx := context.Background()

	results, err := idx.Search(ctx, []float32{0, 0, 1, 0}, 3)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	results, err = idx.Search(ctx, []float32{1, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-00", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestHNSWIndex_ReplaceAndRemove(t *testing.T) {
	idx := seedHNSW(t, 5)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []string{"doc-00"}, [][]float32{{0, 0, 0, 1}}))
	assert.Equal(t, 5, idx.Size())

	results, err := idx.Search(ctx, []float32{0, 0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-00", results[0].ID)

	require.NoError(t, idx.Remove(ctx, []string{"doc-00", "unknown"}))
	assert.Equal(t, 4, idx.Size())

	results, err = idx.Search(ctx, []float32{0, 0, 0, 1}, 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "doc-00", r.ID)
	}
}

func TestHNSWIndex_EmptySearch(t *testing.T) {
	idx, err := NewHNSWIndex(4, Options{})
	require.NoError(t, err)
	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = idx.Search(context.Background(), []float32{1, 0}, 5)
	assert.Error(t, err)
}

func TestHNSWIndex_SaveLoad(t *testing.T) {
	idx := seedHNSW(t, 10)
	ctx := context.Background()
	require.NoError(t, idx.Remove(ctx, []string{"doc-03"}))

	path := filepath.Join(t.TempDir(), "vector", "document.idx")
	require.NoError(t, idx.Save(path))

	loaded, err := NewHNSWIndex(4, Options{})
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 9, loaded.Size())

	results, err := loaded.Search(ctx, []float32{1, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-00", results[0].ID)

	other, err := NewHNSWIndex(8, Options{})
	require.NoError(t, err)
	assert.Error(t, other.Load(path))
}

func TestHNSWIndex_LoadMissing(t *testing.T) {
	idx, err := NewHNSWIndex(4, Options{})
	require.NoError(t, err)
	assert.NoError(t, idx.Load(filepath.Join(t.TempDir(), "none.idx")))
	assert.Equal(t, 0, idx.Size())
}
