package saga

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"orchard/internal/contracts"
)

// Outcome classifies what applying an event to an instance did.
type Outcome string

const (
	// OutcomeApplied means the event advanced the instance.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the event did not match any transition for the
	// current state: a duplicate or stale delivery, absorbed without
	// touching the instance.
	OutcomeIgnored Outcome = "ignored"
)

// Decision is the result of the pure transition function: the updated
// instance (untouched when ignored) and the messages to dispatch after it
// has been persisted.
type Decision struct {
	Instance *Instance
	Outbound []contracts.Message
	Outcome  Outcome
}

// Start builds a fresh instance for an order submission together with the
// first outbound command. The instance is created directly in
// ProcessingPayment; Version is assigned by the store on create.
func Start(msg contracts.OrderSubmitted, now time.Time) (*Instance, []contracts.Message, error) {
	items, err := json.Marshal(msg.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("encode order items: %w", err)
	}

	inst := &Instance{
		CorrelationID: msg.OrderID,
		State:         StateProcessingPayment,
		CustomerID:    msg.CustomerID,
		TotalAmount:   msg.TotalAmount,
		ItemsJSON:     items,
		CreatedAt:     msg.Timestamp,
	}
	outbound := []contracts.Message{contracts.ProcessPayment{
		OrderID:     msg.OrderID,
		CustomerID:  msg.CustomerID,
		Amount:      msg.TotalAmount,
		RequestedAt: now,
	}}
	return inst, outbound, nil
}

// Decide applies one event to an existing instance. It never mutates its
// input: applied decisions carry a modified clone. Events that have no
// transition for the current state, including anything arriving after a
// terminal state, come back as OutcomeIgnored.
func Decide(inst *Instance, evt contracts.Event, now time.Time) (Decision, error) {
	ignored := Decision{Instance: inst, Outcome: OutcomeIgnored}

	switch inst.State {
	case StateProcessingPayment:
		switch msg := evt.(type) {
		case contracts.PaymentApproved:
			next := inst.Clone()
			next.TransactionID = msg.TransactionID
			next.State = StateReservingInventory

			var items []contracts.OrderItem
			if len(inst.ItemsJSON) > 0 {
				if err := json.Unmarshal(inst.ItemsJSON, &items); err != nil {
					return Decision{}, fmt.Errorf("decode order items for %s: %w", inst.CorrelationID, err)
				}
			}
			return Decision{
				Instance: next,
				Outcome:  OutcomeApplied,
				Outbound: []contracts.Message{contracts.ReserveInventory{
					OrderID:     msg.OrderID,
					Items:       items,
					RequestedAt: now,
				}},
			}, nil
		case contracts.PaymentFailed:
			next := inst.Clone()
			next.FailureReason = msg.Reason
			next.State = StateCancelled
			next.CompletedAt = now
			return Decision{
				Instance: next,
				Outcome:  OutcomeApplied,
				Outbound: []contracts.Message{contracts.OrderCancelled{
					OrderID:     msg.OrderID,
					Reason:      "Payment failed: " + msg.Reason,
					CancelledAt: now,
				}},
			}, nil
		}
		return ignored, nil

	case StateReservingInventory:
		switch msg := evt.(type) {
		case contracts.InventoryReserved:
			next := inst.Clone()
			next.ReservationID = msg.ReservationID
			next.State = StateCompleted
			next.CompletedAt = now
			return Decision{
				Instance: next,
				Outcome:  OutcomeApplied,
				Outbound: []contracts.Message{contracts.OrderCompleted{
					OrderID:     msg.OrderID,
					CompletedAt: now,
				}},
			}, nil
		case contracts.StockUnavailable:
			next := inst.Clone()
			next.FailureReason = "Stock unavailable for products: " + strings.Join(msg.UnavailableProducts, ", ")

			// Refund only if money was actually captured.
			if inst.TransactionID != "" {
				next.State = StateCompensating
				return Decision{
					Instance: next,
					Outcome:  OutcomeApplied,
					Outbound: []contracts.Message{contracts.RefundPayment{
						OrderID:       msg.OrderID,
						TransactionID: inst.TransactionID,
						Amount:        inst.TotalAmount,
						Reason:        "Stock unavailable - refunding payment",
						RequestedAt:   now,
					}},
				}, nil
			}
			next.State = StateCancelled
			next.CompletedAt = now
			return Decision{
				Instance: next,
				Outcome:  OutcomeApplied,
				Outbound: []contracts.Message{contracts.OrderCancelled{
					OrderID:     msg.OrderID,
					Reason:      next.FailureReason,
					CancelledAt: now,
				}},
			}, nil
		}
		return ignored, nil

	case StateCompensating:
		if msg, ok := evt.(contracts.PaymentRefunded); ok {
			next := inst.Clone()
			next.State = StateCancelled
			next.CompletedAt = now
			reason := inst.FailureReason
			if reason == "" {
				reason = "Order cancelled due to compensating transaction"
			}
			return Decision{
				Instance: next,
				Outcome:  OutcomeApplied,
				Outbound: []contracts.Message{contracts.OrderCancelled{
					OrderID:     msg.OrderID,
					Reason:      reason,
					CancelledAt: now,
				}},
			}, nil
		}
		return ignored, nil
	}

	// Terminal states and anything unexpected: absorb.
	return ignored, nil
}
