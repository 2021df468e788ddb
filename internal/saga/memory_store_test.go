package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryStore_CreateAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	inst := startedInstance(t, uuid.New())

	if err := store.CreateIfAbsent(ctx, inst); err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	if inst.Version != 1 {
		t.Fatalf("expected version 1, got %d", inst.Version)
	}

	if err := store.CreateIfAbsent(ctx, inst); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	loaded, err := store.Load(ctx, inst.CorrelationID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.State != StateProcessingPayment {
		t.Fatalf("unexpected state: %s", loaded.State)
	}

	// Loads return copies, not the stored record.
	loaded.State = StateCancelled
	again, err := store.Load(ctx, inst.CorrelationID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if again.State != StateProcessingPayment {
		t.Fatalf("load aliases stored instance")
	}
}

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	inst := startedInstance(t, uuid.New())

	if err := store.CreateIfAbsent(ctx, inst); err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}

	updated := inst.Clone()
	updated.State = StateReservingInventory
	if err := store.CompareAndSwap(ctx, updated, 1); err != nil {
		t.Fatalf("CompareAndSwap: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	stale := inst.Clone()
	stale.State = StateCancelled
	if err := store.CompareAndSwap(ctx, stale, 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	missing := startedInstance(t, uuid.New())
	if err := store.CompareAndSwap(ctx, missing, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
