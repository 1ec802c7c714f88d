package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ObjectStorage defines the interface for object storage operations
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// FeedKey builds the object key under which a submitted feed is archived.
// Keys are date-partitioned so retention policies can prune by prefix.
func FeedKey(storeID, jobID, ext string) string {
	return fmt.Sprintf("feeds/%s/%s/%s%s", storeID, time.Now().UTC().Format("2006/01/02"), jobID, ext)
}
