// Package objectstore stores opaque blobs (snapshots, exports) either in an
// S3-compatible bucket or in a local directory.
package objectstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotExist   = errors.New("object does not exist")
	ErrInvalidKey = errors.New("invalid object key")
)

type Object struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns the objects under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// cleanKey rejects keys that could escape the store root.
func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrInvalidKey
		}
	}
	return key, nil
}
