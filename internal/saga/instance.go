package saga

import (
	"time"

	"github.com/google/uuid"
)

// State is the saga's position in the fulfillment workflow.
type State string

const (
	StateInitial            State = "initial"
	StateProcessingPayment  State = "processing_payment"
	StateReservingInventory State = "reserving_inventory"
	StateCompensating       State = "compensating"
	StateCompleted          State = "completed"
	StateCancelled          State = "cancelled"
)

// Terminal reports whether no further event may mutate an instance in
// this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Instance is the durable saga record, one per order, keyed by the
// correlation id. CustomerID, TotalAmount and ItemsJSON are captured at
// creation and never mutated. ItemsJSON is opaque to the orchestrator
// until it is handed to the inventory step.
type Instance struct {
	CorrelationID uuid.UUID
	State         State
	CustomerID    string
	TotalAmount   float64
	ItemsJSON     []byte
	TransactionID string
	ReservationID string
	FailureReason string
	CreatedAt     time.Time
	CompletedAt   time.Time
	Version       int64
}

// Clone returns a deep copy of the instance.
func (i *Instance) Clone() *Instance {
	dup := *i
	if i.ItemsJSON != nil {
		dup.ItemsJSON = append([]byte(nil), i.ItemsJSON...)
	}
	return &dup
}
