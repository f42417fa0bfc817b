// Package snapshot keeps a copy of a draft's rendered text before it is
// overwritten.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"folio/api/internal/objectstore"
)

const prefix = "snapshots"

var ErrNotFound = errors.New("snapshot not found")

type Snapshot struct {
	ID        string    `json:"id"`
	Draft     string    `json:"draft"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service writes snapshots to an object store. IDs are ULIDs, so listing
// by key yields creation order.
type Service struct {
	store objectstore.Store

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func New(store objectstore.Store) *Service {
	return &Service{
		store:   store,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:     time.Now,
	}
}

func (s *Service) newID(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

// Take stores text as a new snapshot of draft. Empty text is not stored and
// yields a zero Snapshot.
func (s *Service) Take(ctx context.Context, draft, text string) (Snapshot, error) {
	if text == "" {
		return Snapshot{}, nil
	}
	at := s.now().UTC()
	snap := Snapshot{
		ID:        s.newID(at),
		Draft:     draft,
		Size:      int64(len(text)),
		CreatedAt: at,
	}
	if err := s.store.Put(ctx, key(draft, snap.ID), []byte(text), "text/markdown; charset=utf-8"); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", draft, err)
	}
	return snap, nil
}

// List returns the snapshots of draft, newest first.
func (s *Service) List(ctx context.Context, draft string) ([]Snapshot, error) {
	objects, err := s.store.List(ctx, path.Join(prefix, draft)+"/")
	if err != nil {
		return nil, err
	}
	snapshots := make([]Snapshot, 0, len(objects))
	for i := len(objects) - 1; i >= 0; i-- {
		id := strings.TrimSuffix(path.Base(objects[i].Key), ".md")
		parsed, err := ulid.ParseStrict(id)
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			ID:        id,
			Draft:     draft,
			Size:      objects[i].Size,
			CreatedAt: ulid.Time(parsed.Time()).UTC(),
		})
	}
	return snapshots, nil
}

// Get returns the text of one snapshot.
func (s *Service) Get(ctx context.Context, draft, id string) (string, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	data, err := s.store.Get(ctx, key(draft, id))
	if errors.Is(err, objectstore.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func key(draft, id string) string {
	return path.Join(prefix, draft, id+".md")
}
