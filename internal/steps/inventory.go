package steps

import (
	"context"
	"fmt"
	"time"

	"orchard/internal/bus"
	"orchard/internal/contracts"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	stockAvailableRate    = 80
	productSampleRate     = 50
	unknownProductDefault = "PRODUCT-UNKNOWN"
)

// InventoryService simulates a warehouse. Reservations succeed at a
// fixed rate; failures report a sampled subset of the order's products
// as unavailable.
type InventoryService struct {
	publisher    bus.Publisher
	logger       *zap.Logger
	chance       Chance
	reserveDelay time.Duration
	now          func() time.Time
}

// InventoryOption customizes an InventoryService.
type InventoryOption func(*InventoryService)

// WithInventoryChance overrides the success roll.
func WithInventoryChance(c Chance) InventoryOption {
	return func(s *InventoryService) { s.chance = c }
}

// WithInventoryDelay overrides the simulated reservation delay.
func WithInventoryDelay(d time.Duration) InventoryOption {
	return func(s *InventoryService) { s.reserveDelay = d }
}

// WithInventoryClock overrides the clock.
func WithInventoryClock(now func() time.Time) InventoryOption {
	return func(s *InventoryService) { s.now = now }
}

// NewInventoryService constructs an InventoryService.
func NewInventoryService(publisher bus.Publisher, logger *zap.Logger, opts ...InventoryOption) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InventoryService{
		publisher:    publisher,
		logger:       logger,
		chance:       defaultChance,
		reserveDelay: time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle consumes one delivery from the inventory command stream.
func (s *InventoryService) Handle(ctx context.Context, env contracts.Envelope) error {
	msg, err := contracts.Unwrap(env)
	if err != nil {
		s.logger.Warn("dropping undecodable inventory command",
			zap.String("kind", env.Kind),
			zap.Error(err))
		return nil
	}

	cmd, ok := msg.(contracts.ReserveInventory)
	if !ok {
		s.logger.Debug("ignoring unexpected inventory command",
			zap.String("kind", env.Kind))
		return nil
	}
	return s.reserve(ctx, cmd)
}

func (s *InventoryService) reserve(ctx context.Context, cmd contracts.ReserveInventory) error {
	s.logger.Info("reserving inventory",
		zap.String("order_id", cmd.OrderID.String()),
		zap.Int("items", len(cmd.Items)))

	if err := sleepFor(ctx, s.reserveDelay); err != nil {
		return err
	}

	if s.chance(stockAvailableRate) {
		reservationID := fmt.Sprintf("RES-%x", uuid.New())
		s.logger.Info("inventory reserved",
			zap.String("order_id", cmd.OrderID.String()),
			zap.String("reservation_id", reservationID))
		return s.publisher.PublishEvent(ctx, contracts.InventoryReserved{
			OrderID:       cmd.OrderID,
			ReservationID: reservationID,
			ReservedAt:    s.now().UTC(),
		})
	}

	s.logger.Warn("stock unavailable",
		zap.String("order_id", cmd.OrderID.String()))

	var unavailable []string
	for _, item := range cmd.Items {
		if s.chance(productSampleRate) {
			unavailable = append(unavailable, item.ProductID)
		}
	}
	if len(unavailable) == 0 {
		unavailable = []string{unknownProductDefault}
	}

	return s.publisher.PublishEvent(ctx, contracts.StockUnavailable{
		OrderID:             cmd.OrderID,
		UnavailableProducts: unavailable,
		CheckedAt:           s.now().UTC(),
	})
}
