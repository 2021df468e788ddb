package sagadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orchard/internal/saga"

	"github.com/google/uuid"
)

// InstanceStore persists saga instances in Postgres with an explicit
// version column for optimistic concurrency.
type InstanceStore struct {
	db *sql.DB
}

// NewInstanceStore constructs an InstanceStore backed by Postgres.
func NewInstanceStore(db *sql.DB) *InstanceStore {
	return &InstanceStore{db: db}
}

// NewInstanceStoreWithSchema initializes the schema then returns the store.
func NewInstanceStoreWithSchema(ctx context.Context, db *sql.DB) (*InstanceStore, error) {
	store := NewInstanceStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the saga table if it does not exist.
func (s *InstanceStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS saga_instances (
			correlation_id UUID PRIMARY KEY,
			current_state TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			order_items JSONB NOT NULL,
			transaction_id TEXT,
			reservation_id TEXT,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			version BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// Load returns the instance for the correlation id or saga.ErrNotFound.
func (s *InstanceStore) Load(ctx context.Context, id uuid.UUID) (*saga.Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT correlation_id, current_state, customer_id, total_amount, order_items,
			transaction_id, reservation_id, failure_reason, created_at, completed_at, version
		FROM saga_instances
		WHERE correlation_id = $1`,
		id,
	)

	var (
		inst          saga.Instance
		state         string
		transactionID sql.NullString
		reservationID sql.NullString
		failureReason sql.NullString
		completedAt   sql.NullTime
	)
	err := row.Scan(
		&inst.CorrelationID,
		&state,
		&inst.CustomerID,
		&inst.TotalAmount,
		&inst.ItemsJSON,
		&transactionID,
		&reservationID,
		&failureReason,
		&inst.CreatedAt,
		&completedAt,
		&inst.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, saga.ErrNotFound
		}
		return nil, err
	}

	inst.State = saga.State(state)
	inst.TransactionID = transactionID.String
	inst.ReservationID = reservationID.String
	inst.FailureReason = failureReason.String
	if completedAt.Valid {
		inst.CompletedAt = completedAt.Time
	}
	return &inst, nil
}

// CreateIfAbsent inserts a new instance at version 1. A redelivered
// triggering event hits the primary-key conflict and comes back as
// saga.ErrAlreadyExists.
func (s *InstanceStore) CreateIfAbsent(ctx context.Context, inst *saga.Instance) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_instances
			(correlation_id, current_state, customer_id, total_amount, order_items,
			 transaction_id, reservation_id, failure_reason, created_at, completed_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		ON CONFLICT (correlation_id) DO NOTHING`,
		inst.CorrelationID,
		string(inst.State),
		inst.CustomerID,
		inst.TotalAmount,
		inst.ItemsJSON,
		nullIfEmpty(inst.TransactionID),
		nullIfEmpty(inst.ReservationID),
		nullIfEmpty(inst.FailureReason),
		inst.CreatedAt,
		nullIfZeroTime(inst),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return saga.ErrAlreadyExists
	}
	inst.Version = 1
	return nil
}

// CompareAndSwap persists the mutable fields if the stored version still
// matches, bumping the version by one. Creation-time fields are never
// rewritten.
func (s *InstanceStore) CompareAndSwap(ctx context.Context, inst *saga.Instance, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE saga_instances
		SET current_state = $2,
			transaction_id = $3,
			reservation_id = $4,
			failure_reason = $5,
			completed_at = $6,
			version = version + 1,
			updated_at = NOW()
		WHERE correlation_id = $1 AND version = $7`,
		inst.CorrelationID,
		string(inst.State),
		nullIfEmpty(inst.TransactionID),
		nullIfEmpty(inst.ReservationID),
		nullIfEmpty(inst.FailureReason),
		nullIfZeroTime(inst),
		expectedVersion,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("instance %s at version %d: %w", inst.CorrelationID, expectedVersion, saga.ErrVersionConflict)
	}
	inst.Version = expectedVersion + 1
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIfZeroTime(inst *saga.Instance) sql.NullTime {
	return sql.NullTime{Time: inst.CompletedAt, Valid: !inst.CompletedAt.IsZero()}
}
