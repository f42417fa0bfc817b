package refstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"folio/api/internal/reference"
)

// PostgresStore keeps references in the bib_references table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, id reference.ID, md reference.Metadata) (Record, error) {
	rec := NewRecord(id, md)
	args, err := recordArgs(rec)
	if err != nil {
		return Record{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO bib_references (`+recordColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (storage_id) DO UPDATE SET
			citation_key = EXCLUDED.citation_key,
			authors = EXCLUDED.authors,
			title = EXCLUDED.title,
			journal = EXCLUDED.journal,
			year = EXCLUDED.year,
			volume = EXCLUDED.volume,
			issue = EXCLUDED.issue,
			pages = EXCLUDED.pages,
			doi = EXCLUDED.doi,
			updated_at = NOW()
		RETURNING updated_at
	`, args...)
	if err := row.Scan(&rec.UpdatedAt); err != nil {
		return Record{}, fmt.Errorf("upsert reference %s: %w", rec.StorageID, err)
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, storageID string) (Record, error) {
	var updatedAt time.Time
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`, updated_at
		FROM bib_references
		WHERE storage_id = $1
	`, storageID), &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("reference %s: %w", storageID, reference.ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get reference %s: %w", storageID, err)
	}
	rec.UpdatedAt = updatedAt
	return rec, nil
}

func (s *PostgresStore) GetMetadata(ctx context.Context, key string) (reference.Metadata, error) {
	return metadataFor(ctx, s.Get, key)
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`, updated_at
		FROM bib_references
		ORDER BY citation_key ASC
		LIMIT $1
	`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return collect(rows)
}

// Search ranks references with PostgreSQL full-text search.
func (s *PostgresStore) Search(ctx context.Context, text string, limit int) ([]Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`, updated_at
		FROM bib_references
		WHERE fts @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC, citation_key ASC
		LIMIT $2
	`, text, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func collect(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	records := make([]Record, 0)
	for rows.Next() {
		var updatedAt time.Time
		rec, err := scanRecord(rows, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		rec.UpdatedAt = updatedAt
		records = append(records, rec)
	}
	return records, rows.Err()
}
