// Package storage keeps source media reachable by the generation providers.
// TempStore holds images received inline over the API until they are uploaded;
// ObjectStore turns bytes into durable public URLs.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectStoreNotConfigured is returned when an object upload is attempted
// without a configured bucket.
var ErrObjectStoreNotConfigured = errors.New("storage: object store is not configured")

// TempStore stores short-lived local files.
type TempStore interface {
	// SaveTemp writes data to a new temporary file and returns its path.
	// The name is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// OpenTemp opens a temporary file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	OpenTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the given files, continuing past failures.
	CleanupTemp(ctx context.Context, paths []string) error
}

// ObjectStore uploads objects and returns their public URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
