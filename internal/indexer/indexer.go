// Package indexer loads pre-chunked records into storage, keyword, and vector indices.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/ranking"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

const defaultBatchSize = 64

// RecordInput is one line of a JSONL import file.
type RecordInput struct {
	Collection  string                 `json:"collection"`
	DocID       string                 `json:"doc_id"`
	ChunkID     *string                `json:"chunk_id,omitempty"`
	ChunkNumber *int                   `json:"chunk_number,omitempty"`
	TotalChunks *int                   `json:"total_chunks,omitempty"`
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
}

// Stats summarizes one import.
type Stats struct {
	Records   int `json:"records"`
	Documents int `json:"documents"`
	Skipped   int `json:"skipped"`
}

// Indexer writes records to storage and to the per-collection keyword and vector indices.
type Indexer struct {
	storage   storage.Storage
	embedder  embedding.Embedder
	keywords  map[string]keyword.KeywordIndex
	vectors   map[string]vector.VectorIndex
	batchSize int
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output and skipped-record warnings.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithBatchSize sets how many records are embedded and written together.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// NewIndexer creates an indexer over the given per-collection indices. A
// collection is accepted only when it has both a keyword and a vector index.
func NewIndexer(
	storage storage.Storage,
	embedder embedding.Embedder,
	keywords map[string]keyword.KeywordIndex,
	vectors map[string]vector.VectorIndex,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:   storage,
		embedder:  embedder,
		keywords:  keywords,
		vectors:   vectors,
		batchSize: defaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexFile reads JSONL records from path and indexes them. See IndexReader.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()
	return idx.IndexReader(ctx, f)
}

// IndexReader decodes a stream of JSON records and indexes them in batches. Every
// document named in the stream is replaced: its previously indexed chunks are
// removed before the first new chunk is written. Records without a known
// collection or without content are skipped; malformed JSON stops the import.
func (idx *Indexer) IndexReader(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	dec := json.NewDecoder(r)
	replaced := make(map[models.DedupeKey]bool)
	batch := make([]*models.Record, 0, idx.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := idx.indexBatch(ctx, batch, replaced, &stats); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		var in RecordInput
		if err := dec.Decode(&in); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return stats, fmt.Errorf("decode record near offset %d: %w", dec.InputOffset(), err)
		}
		rec, err := idx.toRecord(&in)
		if err != nil {
			stats.Skipped++
			idx.logger.Warn("skipping record", zap.String("doc_id", in.DocID), zap.Error(err))
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= idx.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (idx *Indexer) toRecord(in *RecordInput) (*models.Record, error) {
	if _, ok := idx.keywords[in.Collection]; !ok {
		return nil, models.InvalidField("collection", "unknown or unavailable collection %q", in.Collection)
	}
	if _, ok := idx.vectors[in.Collection]; !ok {
		return nil, models.InvalidField("collection", "no vector index for %q", in.Collection)
	}
	content := Preprocess(in.Content)
	if content == "" {
		return nil, models.InvalidField("content", "must not be empty")
	}
	rec := &models.Record{
		Collection:  in.Collection,
		DocID:       in.DocID,
		ChunkID:     in.ChunkID,
		ChunkNumber: in.ChunkNumber,
		TotalChunks: in.TotalChunks,
		Content:     content,
		Metadata:    in.Metadata,
	}
	if rec.DocID == "" {
		rec.DocID = uuid.NewString()
	}
	rec.ID = models.RecordID(rec.DocID, rec.ChunkID)
	if in.Timestamp != "" {
		ts, ok := ranking.ParseTimestamp(in.Timestamp)
		if !ok {
			return nil, models.InvalidField("timestamp", "unrecognized format %q", in.Timestamp)
		}
		rec.Timestamp = &ts
	} else {
		rec.Timestamp = ranking.TimestampFor(rec)
	}
	return rec, nil
}

// IndexRecords indexes records as a single import, replacing the documents they belong to.
func (idx *Indexer) IndexRecords(ctx context.Context, records []*models.Record) (Stats, error) {
	var stats Stats
	replaced := make(map[models.DedupeKey]bool)
	for start := 0; start < len(records); start += idx.batchSize {
		end := min(start+idx.batchSize, len(records))
		if err := idx.indexBatch(ctx, records[start:end], replaced, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (idx *Indexer) indexBatch(ctx context.Context, batch []*models.Record, replaced map[models.DedupeKey]bool, stats *Stats) error {
	for _, rec := range batch {
		doc := models.DedupeKey{Collection: rec.Collection, DocID: rec.DocID}
		if replaced[doc] {
			continue
		}
		if err := idx.DeleteDocument(ctx, rec.Collection, rec.DocID); err != nil {
			return err
		}
		replaced[doc] = true
		stats.Documents++
	}

	if err := idx.storage.PutRecords(ctx, batch); err != nil {
		return fmt.Errorf("failed to store records: %w", err)
	}

	texts := make([]string, len(batch))
	for i, rec := range batch {
		texts[i] = rec.Content
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	ids := make(map[string][]string)
	vecs := make(map[string][][]float32)
	for i, rec := range batch {
		if err := idx.keywords[rec.Collection].Index(ctx, rec); err != nil {
			return fmt.Errorf("failed to index keywords for %s: %w", rec.ID, err)
		}
		ids[rec.Collection] = append(ids[rec.Collection], rec.ID)
		vecs[rec.Collection] = append(vecs[rec.Collection], embeddings[i])
	}
	for c := range ids {
		if err := idx.vectors[c].Add(ctx, ids[c], vecs[c]); err != nil {
			return fmt.Errorf("failed to index %s vectors: %w", c, err)
		}
	}
	stats.Records += len(batch)
	idx.logger.Debug("indexer batch written", zap.Int("records", len(batch)))
	return nil
}

// DeleteDocument removes every chunk of a document from all indices and storage.
func (idx *Indexer) DeleteDocument(ctx context.Context, collection, docID string) error {
	ids, err := idx.storage.DeleteDocument(ctx, collection, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if ki, ok := idx.keywords[collection]; ok {
		for _, id := range ids {
			if err := ki.Delete(ctx, id); err != nil {
				return fmt.Errorf("failed to delete from keyword index: %w", err)
			}
		}
	}
	if vi, ok := idx.vectors[collection]; ok {
		if err := vi.Remove(ctx, ids); err != nil {
			return fmt.Errorf("failed to delete from vector index: %w", err)
		}
	}
	idx.logger.Debug("indexer document deleted",
		zap.String("collection", collection),
		zap.String("doc_id", docID),
		zap.Int("chunks", len(ids)))
	return nil
}
