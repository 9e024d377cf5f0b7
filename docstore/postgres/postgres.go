// Package postgres implements docstore.DocStore on top of PostgreSQL,
// storing each document as a JSONB column alongside a version counter used
// for optimistic concurrency.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/docstore"
)

// Store implements docstore.DocStore backed by a single table holding every
// collection, keyed by (collection, id).
type Store struct {
	db        *sql.DB
	tableName string
}

// New opens a PostgreSQL connection and ensures the backing table exists.
func New(ctx context.Context, connectionString, tableName string) (*Store, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("postgres: connection_string is required")
	}
	if tableName == "" {
		tableName = "battle_records"
	}
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping: %w", err)
	}

	store := &Store{db: db, tableName: tableName}
	if err := store.ensureTableExists(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ensure table exists: %w", err)
	}
	return store, nil
}

func (s *Store) ensureTableExists(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		doc JSONB NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (collection, id)
	);
	`, s.tableName)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Create inserts doc under (collection, id).
func (s *Store) Create(ctx context.Context, collection, id string, doc docstore.Doc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return apperrors.Internal("postgres.Create", err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (collection, id, doc, version) VALUES ($1, $2, $3, 1)", s.tableName),
		collection, id, data,
	)
	if err != nil {
		return apperrors.AlreadyExists("postgres.Create", fmt.Sprintf("%s/%s: %v", collection, id, err))
	}
	return nil
}

// Get retrieves the document and its current version.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Doc, int, error) {
	var data []byte
	var version int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT doc, version FROM %s WHERE collection = $1 AND id = $2", s.tableName),
		collection, id,
	).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return nil, 0, apperrors.NotFound("postgres.Get", fmt.Sprintf("%s/%s not found", collection, id))
	}
	if err != nil {
		return nil, 0, apperrors.Internal("postgres.Get", err)
	}

	var doc docstore.Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, apperrors.Internal("postgres.Get", err)
	}
	return doc, version, nil
}

// Update applies patch atomically if the stored version equals
// expectedVersion, merging patch into the existing document. On a version
// mismatch it still applies the patch (last-writer-wins) and returns
// apperrors.Conflict as a warning.
func (s *Store) Update(ctx context.Context, collection, id string, patch docstore.Doc, expectedVersion int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Internal("postgres.Update", err)
	}
	defer tx.Rollback()

	var data []byte
	var version int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT doc, version FROM %s WHERE collection = $1 AND id = $2 FOR UPDATE", s.tableName),
		collection, id,
	).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("postgres.Update", fmt.Sprintf("%s/%s not found", collection, id))
	}
	if err != nil {
		return apperrors.Internal("postgres.Update", err)
	}

	var doc docstore.Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperrors.Internal("postgres.Update", err)
	}
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return apperrors.Internal("postgres.Update", err)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET doc = $1, version = version + 1 WHERE collection = $2 AND id = $3", s.tableName),
		merged, collection, id,
	)
	if err != nil {
		return apperrors.Internal("postgres.Update", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Internal("postgres.Update", err)
	}

	if version != expectedVersion {
		return apperrors.Conflict("postgres.Update", "version mismatch resolved by last-writer-wins")
	}
	return nil
}

var _ docstore.DocStore = (*Store)(nil)
