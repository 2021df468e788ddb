package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Message is implemented by every command and event on the bus.
// Correlation returns the order id the message belongs to.
type Message interface {
	Kind() string
	Correlation() uuid.UUID
	OccurredAt() time.Time
}

// Command is addressed to exactly one step service.
type Command interface {
	Message
	Destination() string
}

// Event is broadcast to every interested consumer.
type Event interface {
	Message
}

// Message kinds. The set is closed; the orchestrator's transition table
// is total over it.
const (
	KindOrderSubmitted    = "order.submitted"
	KindPaymentApproved   = "payment.approved"
	KindPaymentFailed     = "payment.failed"
	KindInventoryReserved = "inventory.reserved"
	KindStockUnavailable  = "stock.unavailable"
	KindPaymentRefunded   = "payment.refunded"
	KindOrderCompleted    = "order.completed"
	KindOrderCancelled    = "order.cancelled"

	KindProcessPayment   = "payment.process"
	KindReserveInventory = "inventory.reserve"
	KindRefundPayment    = "payment.refund"
)

// Command destinations (one step service each).
const (
	DestinationPayments  = "payments"
	DestinationInventory = "inventory"
)

// OrderItem is one line of an order. The orchestrator never inspects
// items beyond passing them to the inventory step.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// OrderSubmitted starts a saga for a new order.
type OrderSubmitted struct {
	OrderID     uuid.UUID   `json:"order_id"`
	CustomerID  string      `json:"customer_id"`
	TotalAmount float64     `json:"total_amount"`
	Items       []OrderItem `json:"items"`
	Timestamp   time.Time   `json:"timestamp"`
}

func (m OrderSubmitted) Kind() string           { return KindOrderSubmitted }
func (m OrderSubmitted) Correlation() uuid.UUID { return m.OrderID }
func (m OrderSubmitted) OccurredAt() time.Time  { return m.Timestamp }

// PaymentApproved reports a captured payment.
type PaymentApproved struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        float64   `json:"amount"`
	ApprovedAt    time.Time `json:"approved_at"`
}

func (m PaymentApproved) Kind() string           { return KindPaymentApproved }
func (m PaymentApproved) Correlation() uuid.UUID { return m.OrderID }
func (m PaymentApproved) OccurredAt() time.Time  { return m.ApprovedAt }

// PaymentFailed reports a declined payment.
type PaymentFailed struct {
	OrderID  uuid.UUID `json:"order_id"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func (m PaymentFailed) Kind() string           { return KindPaymentFailed }
func (m PaymentFailed) Correlation() uuid.UUID { return m.OrderID }
func (m PaymentFailed) OccurredAt() time.Time  { return m.FailedAt }

// InventoryReserved reports a successful stock reservation.
type InventoryReserved struct {
	OrderID       uuid.UUID `json:"order_id"`
	ReservationID string    `json:"reservation_id"`
	ReservedAt    time.Time `json:"reserved_at"`
}

func (m InventoryReserved) Kind() string           { return KindInventoryReserved }
func (m InventoryReserved) Correlation() uuid.UUID { return m.OrderID }
func (m InventoryReserved) OccurredAt() time.Time  { return m.ReservedAt }

// StockUnavailable reports a failed stock reservation.
type StockUnavailable struct {
	OrderID             uuid.UUID `json:"order_id"`
	UnavailableProducts []string  `json:"unavailable_products"`
	CheckedAt           time.Time `json:"checked_at"`
}

func (m StockUnavailable) Kind() string           { return KindStockUnavailable }
func (m StockUnavailable) Correlation() uuid.UUID { return m.OrderID }
func (m StockUnavailable) OccurredAt() time.Time  { return m.CheckedAt }

// PaymentRefunded reports a completed refund.
type PaymentRefunded struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        float64   `json:"amount"`
	RefundedAt    time.Time `json:"refunded_at"`
}

func (m PaymentRefunded) Kind() string           { return KindPaymentRefunded }
func (m PaymentRefunded) Correlation() uuid.UUID { return m.OrderID }
func (m PaymentRefunded) OccurredAt() time.Time  { return m.RefundedAt }

// OrderCompleted is the successful terminal event of a saga.
type OrderCompleted struct {
	OrderID     uuid.UUID `json:"order_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (m OrderCompleted) Kind() string           { return KindOrderCompleted }
func (m OrderCompleted) Correlation() uuid.UUID { return m.OrderID }
func (m OrderCompleted) OccurredAt() time.Time  { return m.CompletedAt }

// OrderCancelled is the failed terminal event of a saga.
type OrderCancelled struct {
	OrderID     uuid.UUID `json:"order_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

func (m OrderCancelled) Kind() string           { return KindOrderCancelled }
func (m OrderCancelled) Correlation() uuid.UUID { return m.OrderID }
func (m OrderCancelled) OccurredAt() time.Time  { return m.CancelledAt }

// ProcessPayment asks the payment service to capture the order amount.
type ProcessPayment struct {
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	Amount      float64   `json:"amount"`
	RequestedAt time.Time `json:"requested_at"`
}

func (m ProcessPayment) Kind() string           { return KindProcessPayment }
func (m ProcessPayment) Correlation() uuid.UUID { return m.OrderID }
func (m ProcessPayment) OccurredAt() time.Time  { return m.RequestedAt }
func (m ProcessPayment) Destination() string    { return DestinationPayments }

// ReserveInventory asks the inventory service to reserve the order items.
type ReserveInventory struct {
	OrderID     uuid.UUID   `json:"order_id"`
	Items       []OrderItem `json:"items"`
	RequestedAt time.Time   `json:"requested_at"`
}

func (m ReserveInventory) Kind() string           { return KindReserveInventory }
func (m ReserveInventory) Correlation() uuid.UUID { return m.OrderID }
func (m ReserveInventory) OccurredAt() time.Time  { return m.RequestedAt }
func (m ReserveInventory) Destination() string    { return DestinationInventory }

// RefundPayment asks the payment service to undo a captured payment.
type RefundPayment struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        float64   `json:"amount"`
	Reason        string    `json:"reason"`
	RequestedAt   time.Time `json:"requested_at"`
}

func (m RefundPayment) Kind() string           { return KindRefundPayment }
func (m RefundPayment) Correlation() uuid.UUID { return m.OrderID }
func (m RefundPayment) OccurredAt() time.Time  { return m.RequestedAt }
func (m RefundPayment) Destination() string    { return DestinationPayments }
