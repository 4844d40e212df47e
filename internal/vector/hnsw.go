package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

const (
	defaultHNSWM        = 16
	defaultHNSWEfSearch = 64
)

// HNSWIndex is an approximate nearest-neighbour index backed by coder/hnsw.
// Replaced and removed vectors are orphaned in the graph rather than deleted;
// the graph is compacted on Save.
type HNSWIndex struct {
	dimensions int
	opts       Options
	graph      *hnsw.Graph[uint64]
	idMap      map[string]uint64
	keyMap     map[uint64]string
	vecs       map[string][]float32
	nextKey    uint64
	mu         sync.RWMutex
}

type hnswMeta struct {
	Dimensions int
	IDMap      map[string]uint64
	Vectors    map[string][]float32
	NextKey    uint64
}

// NewHNSWIndex creates an empty HNSW index using cosine distance.
func NewHNSWIndex(dimensions int, opts Options) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if opts.M <= 0 {
		opts.M = defaultHNSWM
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = defaultHNSWEfSearch
	}
	return &HNSWIndex{
		dimensions: dimensions,
		opts:       opts,
		graph:      newGraph(opts),
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
		vecs:       make(map[string][]float32),
	}, nil
}

func newGraph(opts Options) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = opts.M
	g.EfSearch = opts.EfSearch
	g.Ml = 0.25
	return g
}

// Add inserts vectors. An existing ID gets a fresh graph key and its old node is orphaned.
func (h *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != h.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), h.dimensions)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, id := range ids {
		if old, ok := h.idMap[id]; ok {
			delete(h.keyMap, old)
			delete(h.idMap, id)
		}
		vec := make([]float32, h.dimensions)
		copy(vec, vectors[i])
		key := h.nextKey
		h.nextKey++
		h.graph.Add(hnsw.MakeNode(key, vec))
		h.idMap[id] = key
		h.keyMap[key] = id
		h.vecs[id] = vec
	}
	return nil
}

// Search returns up to k live vectors nearest to query.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != h.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), h.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 || len(h.idMap) == 0 || L2Norm(query) == 0 {
		return []*VectorResult{}, nil
	}
	// Orphans can occupy result slots, so ask for enough extra to cover them.
	want := k + (h.graph.Len() - len(h.idMap))
	if want > h.graph.Len() {
		want = h.graph.Len()
	}
	nodes := h.graph.Search(query, want)
	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, ok := h.keyMap[node.Key]
		if !ok {
			continue
		}
		results = append(results, &VectorResult{ID: id, Score: CosineSimilarity(query, node.Value)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Remove orphans the given IDs. Unknown IDs are ignored.
func (h *HNSWIndex) Remove(ctx context.Context, ids []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if key, ok := h.idMap[id]; ok {
			delete(h.keyMap, key)
			delete(h.idMap, id)
			delete(h.vecs, id)
		}
	}
	return nil
}

// Save writes the graph to path and the ID mapping plus raw vectors to path+".meta".
// Orphaned nodes are dropped by rebuilding the graph from live vectors first.
func (h *HNSWIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.graph.Len() != len(h.idMap) {
		h.compact()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := h.graph.Export(w); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush graph: %w", err)
	}

	mf, err := os.Create(path + ".meta")
	if err != nil {
		return fmt.Errorf("create meta file: %w", err)
	}
	defer mf.Close()
	meta := hnswMeta{Dimensions: h.dimensions, IDMap: h.idMap, Vectors: h.vecs, NextKey: h.nextKey}
	if err := gob.NewEncoder(mf).Encode(&meta); err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	return nil
}

func (h *HNSWIndex) compact() {
	g := newGraph(h.opts)
	idMap := make(map[string]uint64, len(h.idMap))
	keyMap := make(map[uint64]string, len(h.idMap))
	ids := make([]string, 0, len(h.idMap))
	for id := range h.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var next uint64
	for _, id := range ids {
		g.Add(hnsw.MakeNode(next, h.vecs[id]))
		idMap[id] = next
		keyMap[next] = id
		next++
	}
	h.graph, h.idMap, h.keyMap, h.nextKey = g, idMap, keyMap, next
}

// Load replaces the index with the graph at path. A missing file leaves the index unchanged.
func (h *HNSWIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	mf, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open meta file: %w", err)
	}
	defer mf.Close()
	var meta hnswMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("decode meta: %w", err)
	}
	if meta.Dimensions != h.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", meta.Dimensions, h.dimensions)
	}

	g := newGraph(h.opts)
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	keyMap := make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		keyMap[key] = id
	}
	vecs := meta.Vectors
	if vecs == nil {
		vecs = make(map[string][]float32)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.idMap = meta.IDMap
	h.keyMap = keyMap
	h.vecs = vecs
	h.nextKey = meta.NextKey
	return nil
}

// Size returns the number of live vectors.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idMap)
}

// Close is a no-op; the graph lives in memory.
func (h *HNSWIndex) Close() error {
	return nil
}
