// Package storage defines the persistence interface for indexed records.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kensaku/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Storage holds the content, metadata and chunk fields of every indexed record.
// Backends keep only IDs and scores; adapters hydrate hits from here.
type Storage interface {
	PutRecords(ctx context.Context, records []*models.Record) error
	GetRecord(ctx context.Context, collection, id string) (*models.Record, error)
	// GetRecords returns the records found among ids, keyed by ID. Missing IDs are skipped.
	GetRecords(ctx context.Context, collection string, ids []string) (map[string]*models.Record, error)
	// ScanCollection calls fn for each record in collection until fn returns an error.
	ScanCollection(ctx context.Context, collection string, fn func(*models.Record) error) error
	// DeleteDocument removes every record of docID and returns the removed record IDs.
	DeleteDocument(ctx context.Context, collection, docID string) ([]string, error)
	CountRecords(ctx context.Context, collection string) (int64, error)

	Close() error
}
