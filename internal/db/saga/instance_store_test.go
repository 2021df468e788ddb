package sagadb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"orchard/internal/saga"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

func testInstance(id uuid.UUID) *saga.Instance {
	return &saga.Instance{
		CorrelationID: id,
		State:         saga.StateProcessingPayment,
		CustomerID:    "C1",
		TotalAmount:   199.99,
		ItemsJSON:     []byte(`[{"product_id":"P1","quantity":2,"price":99.99}]`),
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestInstanceStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS saga_instances").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewInstanceStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func TestInstanceStore_CreateIfAbsent_New(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	id := uuid.New()
	mock.ExpectExec("INSERT INTO saga_instances").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewInstanceStore(db)
	inst := testInstance(id)
	if err := store.CreateIfAbsent(context.Background(), inst); err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	if inst.Version != 1 {
		t.Fatalf("expected version 1, got %d", inst.Version)
	}
}

func TestInstanceStore_CreateIfAbsent_Duplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO saga_instances").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewInstanceStore(db)
	err := store.CreateIfAbsent(context.Background(), testInstance(uuid.New()))
	if !errors.Is(err, saga.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestInstanceStore_Load(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	id := uuid.New()
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"correlation_id", "current_state", "customer_id", "total_amount", "order_items",
		"transaction_id", "reservation_id", "failure_reason", "created_at", "completed_at", "version",
	}).AddRow(
		id.String(), "reserving_inventory", "C1", 199.99, []byte(`[]`),
		"TXN1", nil, nil, createdAt, nil, int64(2),
	)

	mock.ExpectQuery("SELECT correlation_id, current_state, customer_id").
		WithArgs(id).
		WillReturnRows(rows)
	mock.ExpectClose()

	store := NewInstanceStore(db)
	inst, err := store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if inst.State != saga.StateReservingInventory {
		t.Fatalf("unexpected state: %s", inst.State)
	}
	if inst.TransactionID != "TXN1" {
		t.Fatalf("unexpected transaction id: %q", inst.TransactionID)
	}
	if inst.ReservationID != "" || inst.FailureReason != "" {
		t.Fatalf("null columns not mapped to empty strings: %+v", inst)
	}
	if !inst.CompletedAt.IsZero() {
		t.Fatalf("null completed_at not mapped to zero time")
	}
	if inst.Version != 2 {
		t.Fatalf("unexpected version: %d", inst.Version)
	}
}

func TestInstanceStore_Load_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	id := uuid.New()
	mock.ExpectQuery("SELECT correlation_id, current_state, customer_id").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectClose()

	store := NewInstanceStore(db)
	if _, err := store.Load(context.Background(), id); !errors.Is(err, saga.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInstanceStore_CompareAndSwap(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_instances").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewInstanceStore(db)
	inst := testInstance(uuid.New())
	inst.State = saga.StateReservingInventory
	inst.TransactionID = "TXN1"
	if err := store.CompareAndSwap(context.Background(), inst, 1); err != nil {
		t.Fatalf("CompareAndSwap: %v", err)
	}
	if inst.Version != 2 {
		t.Fatalf("expected version 2, got %d", inst.Version)
	}
}

func TestInstanceStore_CompareAndSwap_Conflict(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_instances").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewInstanceStore(db)
	err := store.CompareAndSwap(context.Background(), testInstance(uuid.New()), 1)
	if !errors.Is(err, saga.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}
