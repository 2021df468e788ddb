package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of a message: the routing fields every
// consumer needs without decoding the payload, plus the payload itself.
type Envelope struct {
	Kind          string          `json:"kind"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

var ErrUnknownKind = errors.New("unknown message kind")

// Wrap serializes a message into its envelope.
func Wrap(msg Message) (Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return Envelope{
		Kind:          msg.Kind(),
		CorrelationID: msg.Correlation(),
		OccurredAt:    msg.OccurredAt(),
		Payload:       payload,
	}, nil
}

// Unwrap decodes the envelope payload into its concrete message type.
func Unwrap(env Envelope) (Message, error) {
	decode := func(dst any) error {
		if err := json.Unmarshal(env.Payload, dst); err != nil {
			return fmt.Errorf("decode %s: %w", env.Kind, err)
		}
		return nil
	}

	var (
		msg Message
		err error
	)
	switch env.Kind {
	case KindOrderSubmitted:
		var m OrderSubmitted
		err = decode(&m)
		msg = m
	case KindPaymentApproved:
		var m PaymentApproved
		err = decode(&m)
		msg = m
	case KindPaymentFailed:
		var m PaymentFailed
		err = decode(&m)
		msg = m
	case KindInventoryReserved:
		var m InventoryReserved
		err = decode(&m)
		msg = m
	case KindStockUnavailable:
		var m StockUnavailable
		err = decode(&m)
		msg = m
	case KindPaymentRefunded:
		var m PaymentRefunded
		err = decode(&m)
		msg = m
	case KindOrderCompleted:
		var m OrderCompleted
		err = decode(&m)
		msg = m
	case KindOrderCancelled:
		var m OrderCancelled
		err = decode(&m)
		msg = m
	case KindProcessPayment:
		var m ProcessPayment
		err = decode(&m)
		msg = m
	case KindReserveInventory:
		var m ReserveInventory
		err = decode(&m)
		msg = m
	case KindRefundPayment:
		var m RefundPayment
		err = decode(&m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}
