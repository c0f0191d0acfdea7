package job

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record cannot be found by ID.
var ErrNotFound = errors.New("generation not found")

// Repository defines the interface for generation record persistence.
type Repository interface {
	// Save persists a record, replacing any previous version.
	Save(ctx context.Context, g *Generation) error

	// FindByID retrieves a record by its unique identifier.
	// Returns ErrNotFound if the record does not exist.
	FindByID(ctx context.Context, id string) (*Generation, error)

	// ListByOwner returns the records of ownerID, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Generation, error)

	// Delete removes a record.
	// Returns ErrNotFound if the record does not exist.
	Delete(ctx context.Context, id string) error
}
