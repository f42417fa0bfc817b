package search

import (
	"context"
	"log/slog"
	"sync"

	"folio/api/internal/refstore"
)

const reindexBatch = 500

// Service is the facade that tries the index first and falls back to the
// reference store's own text search.
type Service struct {
	index    Index
	fallback Searcher
	logger   *slog.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. index may be nil if Meilisearch is
// not configured.
func NewService(index Index, fallback Searcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{index: index, fallback: fallback, logger: logger.With("component", "search")}
}

// Search tries the index if healthy, otherwise falls back to the store.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "index"}
		}
		s.logger.Warn("index search failed, falling back to store", "error", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("store search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "store"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "store"}
}

// IndexReference indexes a reference in the background.
func (s *Service) IndexReference(rec refstore.Record) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	doc := RecordFrom(rec)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.index.IndexReferences([]ReferenceRecord{doc}); err != nil {
			s.logger.Warn("index reference", "id", doc.ID, "error", err)
		}
	}()
}

// DeleteReference removes a reference from the index in the background.
func (s *Service) DeleteReference(storageID string) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.index.DeleteReference(storageID); err != nil {
			s.logger.Warn("delete reference", "id", storageID, "error", err)
		}
	}()
}

// Flush waits for background index writes to finish.
func (s *Service) Flush() {
	s.pending.Wait()
}

// Lister lists stored references.
type Lister interface {
	List(ctx context.Context, limit int) ([]refstore.Record, error)
}

// ReindexAll pushes every stored reference to the index. Called at startup
// when the index is healthy.
func (s *Service) ReindexAll(ctx context.Context, store Lister) {
	if s.index == nil || !s.index.Healthy() || store == nil {
		return
	}
	records, err := store.List(ctx, 1<<20)
	if err != nil {
		s.logger.Error("reindex load failed", "error", err)
		return
	}
	for start := 0; start < len(records); start += reindexBatch {
		end := min(start+reindexBatch, len(records))
		docs := make([]ReferenceRecord, 0, end-start)
		for _, rec := range records[start:end] {
			docs = append(docs, RecordFrom(rec))
		}
		if err := s.index.IndexReferences(docs); err != nil {
			s.logger.Error("reindex references", "error", err)
			return
		}
	}
	s.logger.Info("reindexed references", "count", len(records))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
