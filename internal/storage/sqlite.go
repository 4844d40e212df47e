package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kensaku/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		chunk_id TEXT,
		chunk_number INTEGER,
		total_chunks INTEGER,
		content TEXT NOT NULL,
		metadata TEXT,
		timestamp TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_doc ON records(collection, doc_id);
	`
	_, err := db.Exec(schema)
	return err
}

const recordColumns = `id, collection, doc_id, chunk_id, chunk_number, total_chunks, content, metadata, timestamp`

// PutRecords inserts or replaces records in a single transaction.
func (s *SQLiteStorage) PutRecords(ctx context.Context, records []*models.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records (`+recordColumns+`, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range records {
		metadataJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", r.ID, err)
		}
		var ts interface{}
		if r.Timestamp != nil {
			ts = r.Timestamp.UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Collection, r.DocID, nullString(r.ChunkID), nullInt(r.ChunkNumber), nullInt(r.TotalChunks),
			r.Content, string(metadataJSON), ts, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRecord returns one record by collection and ID.
func (s *SQLiteStorage) GetRecord(ctx context.Context, collection, id string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE collection = ? AND id = ?`, collection, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return r, err
}

// GetRecords returns the records with the given IDs in one query.
func (s *SQLiteStorage) GetRecords(ctx context.Context, collection string, ids []string) (map[string]*models.Record, error) {
	out := make(map[string]*models.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE collection = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

// ScanCollection streams every record of a collection to fn.
func (s *SQLiteStorage) ScanCollection(ctx context.Context, collection string, fn func(*models.Record) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE collection = ? ORDER BY doc_id, chunk_number`, collection)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteDocument removes all records of a document.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, collection, docID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM records WHERE collection = ? AND doc_id = ?`, collection, docID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND doc_id = ?`, collection, docID); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

// CountRecords returns the number of records in a collection, or in all collections
// when collection is empty.
func (s *SQLiteStorage) CountRecords(ctx context.Context, collection string) (int64, error) {
	var count int64
	var err error
	if collection == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&count)
	}
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r            models.Record
		chunkID      sql.NullString
		chunkNumber  sql.NullInt64
		totalChunks  sql.NullInt64
		metadataJSON sql.NullString
		ts           sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Collection, &r.DocID, &chunkID, &chunkNumber, &totalChunks,
		&r.Content, &metadataJSON, &ts); err != nil {
		return nil, err
	}
	if chunkID.Valid {
		v := chunkID.String
		r.ChunkID = &v
	}
	if chunkNumber.Valid {
		v := int(chunkNumber.Int64)
		r.ChunkNumber = &v
	}
	if totalChunks.Valid {
		v := int(totalChunks.Int64)
		r.TotalChunks = &v
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", r.ID, err)
		}
	}
	if ts.Valid {
		v := ts.Time
		r.Timestamp = &v
	}
	return &r, nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
