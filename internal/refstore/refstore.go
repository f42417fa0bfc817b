// Package refstore persists reference metadata and serves it to the draft
// renderer.
package refstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"folio/api/internal/reference"
)

// Record is one stored reference.
type Record struct {
	StorageID   string             `json:"storageId"`
	Source      reference.Source   `json:"source"`
	SourceID    string             `json:"sourceId"`
	CitationKey string             `json:"citationKey"`
	Metadata    reference.Metadata `json:"metadata"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// NewRecord builds the record stored for id.
func NewRecord(id reference.ID, md reference.Metadata) Record {
	return Record{
		StorageID:   id.StorageID(),
		Source:      id.Source(),
		SourceID:    id.SourceID(),
		CitationKey: id.CitationKey(),
		Metadata:    md,
		UpdatedAt:   time.Now().UTC(),
	}
}

// MetadataSource resolves a citation key to its metadata. Unknown keys yield
// an error wrapping reference.ErrNotFound.
type MetadataSource interface {
	GetMetadata(ctx context.Context, key string) (reference.Metadata, error)
}

// Store is a persistent reference store.
type Store interface {
	MetadataSource
	Put(ctx context.Context, id reference.ID, md reference.Metadata) (Record, error)
	Get(ctx context.Context, storageID string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Search(ctx context.Context, text string, limit int) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}

const defaultLimit = 50

// StorageIDForKey maps a citation key to the storage id it is filed under.
func StorageIDForKey(key string) (string, error) {
	storageID, ok := reference.KeyStorageID(reference.CanonicalKey(key))
	if !ok {
		return "", fmt.Errorf("key %q: %w", key, reference.ErrNotFound)
	}
	return storageID, nil
}

func metadataFor(ctx context.Context, get func(context.Context, string) (Record, error), key string) (reference.Metadata, error) {
	storageID, err := StorageIDForKey(key)
	if err != nil {
		return reference.Metadata{}, err
	}
	rec, err := get(ctx, storageID)
	if err != nil {
		return reference.Metadata{}, err
	}
	return rec.Metadata, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

// matches is the substring search used by stores without a text index.
func matches(rec Record, text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return false
	}
	haystack := strings.ToLower(strings.Join([]string{
		rec.CitationKey,
		rec.Metadata.Title,
		rec.Metadata.Journal,
		rec.Metadata.Year,
		strings.Join(rec.Metadata.Authors, " "),
	}, " "))
	for _, term := range strings.Fields(needle) {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}
