package vector

import (
	"context"
	"testing"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex("memory", 3, Options{})
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	err = idx.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
}

func TestNewVectorIndex_Empty(t *testing.T) {
	// Empty string should default to memory
	idx, err := NewVectorIndex("", 3, Options{})
	if err != nil {
		t.Fatalf("NewVectorIndex(''): %v", err)
	}
	defer idx.Close()

	if _, ok := idx.(*MemoryIndex); !ok {
		t.Errorf("expected *MemoryIndex, got %T", idx)
	}
}

func TestNewVectorIndex_HNSW(t *testing.T) {
	idx, err := NewVectorIndex("hnsw", 3, Options{M: 8, EfSearch: 32})
	if err != nil {
		t.Fatalf("NewVectorIndex(hnsw): %v", err)
	}
	defer idx.Close()
	if _, ok := idx.(*HNSWIndex); !ok {
		t.Errorf("expected *HNSWIndex, got %T", idx)
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	_, err := NewVectorIndex("faiss", 3, Options{})
	if err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	for _, typ := range []string{"memory", "hnsw"} {
		if _, err := NewVectorIndex(typ, 0, Options{}); err == nil {
			t.Errorf("%s: expected error for zero dimension", typ)
		}
	}
}
