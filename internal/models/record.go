// Package models defines core data structures for records, queries, and search results.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// Record is one indexed unit: a whole document or one chunk of it, stored in a collection.
type Record struct {
	ID          string                 `json:"id"`
	Collection  string                 `json:"collection"`
	DocID       string                 `json:"doc_id"`
	ChunkID     *string                `json:"chunk_id,omitempty"`
	ChunkNumber *int                   `json:"chunk_number,omitempty"`
	TotalChunks *int                   `json:"total_chunks,omitempty"`
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   *time.Time             `json:"timestamp,omitempty"`
}

// RecordID returns the store key of a record within its collection.
func RecordID(docID string, chunkID *string) string {
	if chunkID == nil || *chunkID == "" {
		return docID
	}
	return docID + "#" + *chunkID
}

// Key returns the deduplication identity of the record.
func (r *Record) Key() DedupeKey {
	k := DedupeKey{Collection: r.Collection, DocID: r.DocID}
	if r.ChunkID != nil {
		k.ChunkID = *r.ChunkID
	}
	return k
}

// MetadataString returns the metadata value for key as a string, or "" if absent.
func (r *Record) MetadataString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	v, ok := r.Metadata[key]
	if !ok {
		return ""
	}
	return ValueString(v)
}

// DedupeKey identifies a logical unit across backends.
type DedupeKey struct {
	Collection string
	DocID      string
	ChunkID    string
}

// ValueString converts a JSON-decoded metadata value to its string form.
func ValueString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
