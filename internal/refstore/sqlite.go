package refstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite"

	"folio/api/internal/reference"
)

// SQLiteStore keeps references in a local SQLite file, for the CLI and for
// single-user deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath. ":memory:" opens a
// private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := "file::memory:?_pragma=foreign_keys(on)"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS bib_references (
			storage_id   TEXT PRIMARY KEY,
			source       TEXT NOT NULL,
			source_id    TEXT NOT NULL,
			citation_key TEXT NOT NULL,
			authors      TEXT NOT NULL DEFAULT '[]',
			title        TEXT NOT NULL DEFAULT '',
			journal      TEXT NOT NULL DEFAULT '',
			year         TEXT NOT NULL DEFAULT '',
			volume       TEXT NOT NULL DEFAULT '',
			issue        TEXT NOT NULL DEFAULT '',
			pages        TEXT NOT NULL DEFAULT '',
			doi          TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			UNIQUE (source, source_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bib_references_citation_key ON bib_references(citation_key)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS bib_references_fts USING fts5(
			title, journal, authors, year, citation_key,
			content=bib_references,
			content_rowid=rowid
		)`,
		`CREATE TRIGGER IF NOT EXISTS bib_references_ai AFTER INSERT ON bib_references BEGIN
			INSERT INTO bib_references_fts(rowid, title, journal, authors, year, citation_key)
			VALUES (new.rowid, new.title, new.journal, new.authors, new.year, new.citation_key);
		END`,
		`CREATE TRIGGER IF NOT EXISTS bib_references_ad AFTER DELETE ON bib_references BEGIN
			INSERT INTO bib_references_fts(bib_references_fts, rowid, title, journal, authors, year, citation_key)
			VALUES ('delete', old.rowid, old.title, old.journal, old.authors, old.year, old.citation_key);
		END`,
		`CREATE TRIGGER IF NOT EXISTS bib_references_au AFTER UPDATE ON bib_references BEGIN
			INSERT INTO bib_references_fts(bib_references_fts, rowid, title, journal, authors, year, citation_key)
			VALUES ('delete', old.rowid, old.title, old.journal, old.authors, old.year, old.citation_key);
			INSERT INTO bib_references_fts(rowid, title, journal, authors, year, citation_key)
			VALUES (new.rowid, new.title, new.journal, new.authors, new.year, new.citation_key);
		END`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, id reference.ID, md reference.Metadata) (Record, error) {
	rec := NewRecord(id, md)
	args, err := recordArgs(rec)
	if err != nil {
		return Record{}, err
	}
	now := rec.UpdatedAt.Format(time.RFC3339Nano)
	args = append(args, now, now)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bib_references (`+recordColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (storage_id) DO UPDATE SET
			citation_key = excluded.citation_key,
			authors = excluded.authors,
			title = excluded.title,
			journal = excluded.journal,
			year = excluded.year,
			volume = excluded.volume,
			issue = excluded.issue,
			pages = excluded.pages,
			doi = excluded.doi,
			updated_at = excluded.updated_at
	`, args...)
	if err != nil {
		return Record{}, fmt.Errorf("upsert reference %s: %w", rec.StorageID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, storageID string) (Record, error) {
	rec, err := scanSQLite(s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`, updated_at
		FROM bib_references
		WHERE storage_id = ?
	`, storageID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("reference %s: %w", storageID, reference.ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get reference %s: %w", storageID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, key string) (reference.Metadata, error) {
	return metadataFor(ctx, s.Get, key)
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`, updated_at
		FROM bib_references
		ORDER BY citation_key ASC
		LIMIT ?
	`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return collectSQLite(rows)
}

// Search matches every term as a prefix against the FTS5 index.
func (s *SQLiteStore) Search(ctx context.Context, text string, limit int) ([]Record, error) {
	query := ftsQuery(text)
	if query == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.storage_id, r.source, r.source_id, r.citation_key, r.authors, r.title, r.journal,
		       r.year, r.volume, r.issue, r.pages, r.doi, r.updated_at
		FROM bib_references_fts f
		JOIN bib_references r ON r.rowid = f.rowid
		WHERE bib_references_fts MATCH ?
		ORDER BY f.rank, r.citation_key
		LIMIT ?
	`, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}
	return collectSQLite(rows)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ftsQuery quotes every term so user input cannot inject FTS5 syntax.
func ftsQuery(text string) string {
	var terms []string
	for _, term := range strings.Fields(text) {
		if strings.IndexFunc(term, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
			continue
		}
		term = strings.ReplaceAll(term, `"`, `""`)
		terms = append(terms, `"`+term+`"*`)
	}
	return strings.Join(terms, " ")
}

func scanSQLite(row rowScanner) (Record, error) {
	var updatedAt string
	rec, err := scanRecord(row, &updatedAt)
	if err != nil {
		return Record{}, err
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Record{}, fmt.Errorf("parse updated_at of %s: %w", rec.StorageID, err)
	}
	return rec, nil
}

func collectSQLite(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
