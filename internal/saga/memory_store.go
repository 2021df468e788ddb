package saga

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// NewMemoryStore constructs an in-memory instance store. It backs tests
// and the no-database development mode.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[uuid.UUID]*Instance)}
}

// MemoryStore keeps saga instances in a mutex-guarded map with the same
// versioning contract as the durable store.
type MemoryStore struct {
	mu        sync.Mutex
	instances map[uuid.UUID]*Instance
}

func (s *MemoryStore) Load(ctx context.Context, id uuid.UUID) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inst.Clone(), nil
}

func (s *MemoryStore) CreateIfAbsent(ctx context.Context, inst *Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.CorrelationID]; ok {
		return ErrAlreadyExists
	}
	stored := inst.Clone()
	stored.Version = 1
	s.instances[inst.CorrelationID] = stored
	inst.Version = 1
	return nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, inst *Instance, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instances[inst.CorrelationID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	stored := inst.Clone()
	stored.Version = expectedVersion + 1
	s.instances[inst.CorrelationID] = stored
	inst.Version = stored.Version
	return nil
}

// Count returns the number of stored instances (for testing/inspection).
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}
