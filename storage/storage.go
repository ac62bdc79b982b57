package storage

import (
	"context"

	"github.com/kbukum/pipekit/errors"
)

// ErrNotFound is returned, wrapped in an AppError, when a path holds no object.
var ErrNotFound = errors.ErrNotFound

// Storage is a byte-oriented object store addressed by slash-separated paths.
type Storage interface {
	// Read returns the full contents stored at path.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write stores data at path, replacing any previous object.
	Write(ctx context.Context, path string, data []byte) error
	// Exists reports whether path holds an object.
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}

// NotFound builds the error backends return for a missing path.
func NotFound(path string) error {
	return errors.NotFound("object", path)
}
