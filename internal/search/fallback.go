package search

import (
	"context"
	"strings"

	"folio/api/internal/refstore"
)

// TextSearcher is the text search a reference store offers.
type TextSearcher interface {
	Search(ctx context.Context, text string, limit int) ([]refstore.Record, error)
}

// StoreSearcher implements Searcher on top of the reference store's own
// text search (Postgres FTS or SQLite FTS5).
type StoreSearcher struct {
	store TextSearcher
}

func NewStoreSearcher(store TextSearcher) *StoreSearcher {
	return &StoreSearcher{store: store}
}

// Healthy always returns true; if the store is down the whole app is down.
func (s *StoreSearcher) Healthy() bool {
	return true
}

func (s *StoreSearcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	records, err := s.store.Search(ctx, q.Text, offset+limit)
	if err != nil {
		return nil, 0, err
	}
	var results []Result
	for _, rec := range records {
		if q.Year != "" && rec.Metadata.Year != q.Year {
			continue
		}
		results = append(results, Result{
			StorageID:   rec.StorageID,
			CitationKey: rec.CitationKey,
			Title:       rec.Metadata.Title,
			Snippet:     strings.Join(rec.Metadata.Authors, ", "),
			Journal:     rec.Metadata.Journal,
			Year:        rec.Metadata.Year,
		})
	}
	total := len(results)
	if offset >= len(results) {
		return nil, total, nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, total, nil
}
