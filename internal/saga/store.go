package saga

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Store persists saga instances keyed by correlation id. Writers never
// lock: concurrent deliveries for the same order serialize through
// version conflicts.
type Store interface {
	// Load returns the instance for the correlation id or ErrNotFound.
	Load(ctx context.Context, id uuid.UUID) (*Instance, error)
	// CreateIfAbsent inserts a new instance at version 1. It returns
	// ErrAlreadyExists if the correlation id is already present, which
	// guards against a redelivered triggering event.
	CreateIfAbsent(ctx context.Context, inst *Instance) error
	// CompareAndSwap persists the instance if the stored version still
	// equals expectedVersion, bumping the version by one. It returns
	// ErrVersionConflict when another delivery won the write.
	CompareAndSwap(ctx context.Context, inst *Instance, expectedVersion int64) error
}

var (
	ErrNotFound        = errors.New("saga instance not found")
	ErrAlreadyExists   = errors.New("saga instance already exists")
	ErrVersionConflict = errors.New("saga instance version conflict")
)
