package search

import (
	"context"

	"folio/api/internal/refstore"
)

// Result is a single reference hit returned to the caller.
type Result struct {
	StorageID   string `json:"storageId"`
	CitationKey string `json:"citationKey"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Journal     string `json:"journal,omitempty"`
	Year        string `json:"year,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Year   string // empty = any year
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Index is a Searcher that can also be written to.
type Index interface {
	Searcher
	IndexReferences(records []ReferenceRecord) error
	DeleteReference(storageID string) error
}

// ReferenceRecord is the data we index for a reference.
type ReferenceRecord struct {
	ID          string   `json:"id"`
	CitationKey string   `json:"citationKey"`
	Source      string   `json:"source"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Journal     string   `json:"journal"`
	Year        string   `json:"year"`
	DOI         string   `json:"doi,omitempty"`
}

// RecordFrom converts a stored reference into its index document.
func RecordFrom(rec refstore.Record) ReferenceRecord {
	authors := rec.Metadata.Authors
	if authors == nil {
		authors = []string{}
	}
	return ReferenceRecord{
		ID:          rec.StorageID,
		CitationKey: rec.CitationKey,
		Source:      string(rec.Source),
		Title:       rec.Metadata.Title,
		Authors:     authors,
		Journal:     rec.Metadata.Journal,
		Year:        rec.Metadata.Year,
		DOI:         rec.Metadata.DOI,
	}
}
