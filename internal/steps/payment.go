// Package steps hosts the simulated payment and inventory services. Each
// service consumes its command stream and publishes result events; the
// orchestrator never calls them directly.
package steps

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"orchard/internal/bus"
	"orchard/internal/contracts"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Chance reports success for a percent in [0,100].
type Chance func(percent int) bool

func defaultChance(percent int) bool {
	return rand.Intn(100) < percent
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const paymentApprovalRate = 90

// PaymentService simulates a payment provider. Charges succeed at a
// fixed rate; refunds always succeed.
type PaymentService struct {
	publisher    bus.Publisher
	logger       *zap.Logger
	chance       Chance
	processDelay time.Duration
	refundDelay  time.Duration
	now          func() time.Time
}

// PaymentOption customizes a PaymentService.
type PaymentOption func(*PaymentService)

// WithPaymentChance overrides the success roll.
func WithPaymentChance(c Chance) PaymentOption {
	return func(s *PaymentService) { s.chance = c }
}

// WithPaymentDelays overrides the simulated processing delays.
func WithPaymentDelays(process, refund time.Duration) PaymentOption {
	return func(s *PaymentService) {
		s.processDelay = process
		s.refundDelay = refund
	}
}

// WithPaymentClock overrides the clock.
func WithPaymentClock(now func() time.Time) PaymentOption {
	return func(s *PaymentService) { s.now = now }
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(publisher bus.Publisher, logger *zap.Logger, opts ...PaymentOption) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PaymentService{
		publisher:    publisher,
		logger:       logger,
		chance:       defaultChance,
		processDelay: 2 * time.Second,
		refundDelay:  time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle consumes one delivery from the payments command stream.
func (s *PaymentService) Handle(ctx context.Context, env contracts.Envelope) error {
	msg, err := contracts.Unwrap(env)
	if err != nil {
		s.logger.Warn("dropping undecodable payment command",
			zap.String("kind", env.Kind),
			zap.Error(err))
		return nil
	}

	switch cmd := msg.(type) {
	case contracts.ProcessPayment:
		return s.processPayment(ctx, cmd)
	case contracts.RefundPayment:
		return s.refundPayment(ctx, cmd)
	default:
		s.logger.Debug("ignoring unexpected payment command",
			zap.String("kind", env.Kind))
		return nil
	}
}

func (s *PaymentService) processPayment(ctx context.Context, cmd contracts.ProcessPayment) error {
	s.logger.Info("processing payment",
		zap.String("order_id", cmd.OrderID.String()),
		zap.Float64("amount", cmd.Amount))

	if err := sleepFor(ctx, s.processDelay); err != nil {
		return err
	}

	if s.chance(paymentApprovalRate) {
		transactionID := fmt.Sprintf("TXN-%x", uuid.New())
		s.logger.Info("payment approved",
			zap.String("order_id", cmd.OrderID.String()),
			zap.String("transaction_id", transactionID))
		return s.publisher.PublishEvent(ctx, contracts.PaymentApproved{
			OrderID:       cmd.OrderID,
			TransactionID: transactionID,
			Amount:        cmd.Amount,
			ApprovedAt:    s.now().UTC(),
		})
	}

	s.logger.Warn("payment failed",
		zap.String("order_id", cmd.OrderID.String()))
	return s.publisher.PublishEvent(ctx, contracts.PaymentFailed{
		OrderID:  cmd.OrderID,
		Reason:   "Insufficient funds or payment declined",
		FailedAt: s.now().UTC(),
	})
}

func (s *PaymentService) refundPayment(ctx context.Context, cmd contracts.RefundPayment) error {
	s.logger.Info("processing refund",
		zap.String("order_id", cmd.OrderID.String()),
		zap.String("transaction_id", cmd.TransactionID),
		zap.Float64("amount", cmd.Amount))

	if err := sleepFor(ctx, s.refundDelay); err != nil {
		return err
	}

	s.logger.Info("refund completed",
		zap.String("order_id", cmd.OrderID.String()),
		zap.String("transaction_id", cmd.TransactionID))
	return s.publisher.PublishEvent(ctx, contracts.PaymentRefunded{
		OrderID:       cmd.OrderID,
		TransactionID: cmd.TransactionID,
		Amount:        cmd.Amount,
		RefundedAt:    s.now().UTC(),
	})
}
