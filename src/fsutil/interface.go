package fsutil

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a named file does not exist in the store.
var ErrNotFound = errors.New("file not found")

// FileStore keeps the uploaded source documents, addressed by file name
type FileStore interface {
	// Save writes data under name, replacing an existing file
	Save(ctx context.Context, name string, data []byte) error

	// ReadFile reads a file and returns its contents
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// Delete removes a file; ErrNotFound if it does not exist
	Delete(ctx context.Context, name string) error

	// List returns the files in the store sorted by name
	List(ctx context.Context) ([]FileInfo, error)
}

// FileInfo describes a stored file
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}
