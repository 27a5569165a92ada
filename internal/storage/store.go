package storage

import (
	"context"
	"time"
)

// Object describes one stored object.
type Object struct {
	URL     string
	Size    int64
	Updated time.Time
}

// ObjectStore is the minimal object storage surface the pipeline needs.
// All addresses are full URLs.
type ObjectStore interface {
	// List returns every object below prefix, recursively.
	List(ctx context.Context, prefix string) ([]Object, error)
	Exists(ctx context.Context, url string) (bool, error)
	// Copy duplicates src at dst, overwriting any existing object.
	Copy(ctx context.Context, src, dst string) error
	Download(ctx context.Context, url, localPath string) error
	Upload(ctx context.Context, localPath, url string) error
}
