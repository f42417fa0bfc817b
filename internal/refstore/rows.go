package refstore

import (
	"encoding/json"
	"fmt"

	"folio/api/internal/reference"
)

const recordColumns = `storage_id, source, source_id, citation_key, authors, title, journal, year, volume, issue, pages, doi`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads recordColumns followed by updated_at into a Record.
func scanRecord(row rowScanner, updatedAt any) (Record, error) {
	var rec Record
	var source, authors string
	md := &rec.Metadata
	if err := row.Scan(&rec.StorageID, &source, &rec.SourceID, &rec.CitationKey, &authors,
		&md.Title, &md.Journal, &md.Year, &md.Volume, &md.Issue, &md.Pages, &md.DOI, updatedAt); err != nil {
		return Record{}, err
	}
	rec.Source = reference.Source(source)
	if err := json.Unmarshal([]byte(authors), &md.Authors); err != nil {
		return Record{}, fmt.Errorf("decode authors of %s: %w", rec.StorageID, err)
	}
	return rec, nil
}

// recordArgs returns the values for recordColumns.
func recordArgs(rec Record) ([]any, error) {
	authors := rec.Metadata.Authors
	if authors == nil {
		authors = []string{}
	}
	encoded, err := json.Marshal(authors)
	if err != nil {
		return nil, fmt.Errorf("encode authors: %w", err)
	}
	md := rec.Metadata
	return []any{
		rec.StorageID, string(rec.Source), rec.SourceID, rec.CitationKey, string(encoded),
		md.Title, md.Journal, md.Year, md.Volume, md.Issue, md.Pages, md.DOI,
	}, nil
}
