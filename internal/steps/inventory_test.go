package steps

import (
	"context"
	"strings"
	"testing"
	"time"

	"orchard/internal/contracts"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

func newInventoryService(t *testing.T, pub *capturePublisher, chance Chance) *InventoryService {
	t.Helper()
	return NewInventoryService(pub, zaptest.NewLogger(t),
		WithInventoryChance(chance),
		WithInventoryDelay(0),
		WithInventoryClock(func() time.Time { return testNow }),
	)
}

func reserveFixture(id uuid.UUID) contracts.ReserveInventory {
	return contracts.ReserveInventory{
		OrderID: id,
		Items: []contracts.OrderItem{
			{ProductID: "P1", Quantity: 2, Price: 99.99},
			{ProductID: "P2", Quantity: 1, Price: 49.99},
		},
		RequestedAt: testNow,
	}
}

func TestInventoryService_ReservesStock(t *testing.T) {
	pub := &capturePublisher{}
	svc := newInventoryService(t, pub, alwaysChance(true))

	id := uuid.New()
	if err := svc.Handle(context.Background(), mustWrap(t, reserveFixture(id))); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	reserved, ok := pub.events[0].(contracts.InventoryReserved)
	if !ok {
		t.Fatalf("expected InventoryReserved, got %T", pub.events[0])
	}
	if reserved.OrderID != id {
		t.Fatalf("unexpected order id: %s", reserved.OrderID)
	}
	if !strings.HasPrefix(reserved.ReservationID, "RES-") {
		t.Fatalf("unexpected reservation id: %q", reserved.ReservationID)
	}
}

func TestInventoryService_ReportsSampledUnavailableProducts(t *testing.T) {
	pub := &capturePublisher{}
	// First roll fails availability, then P1 is sampled and P2 is not.
	svc := newInventoryService(t, pub, sequenceChance(false, true, false))

	id := uuid.New()
	if err := svc.Handle(context.Background(), mustWrap(t, reserveFixture(id))); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	unavailable, ok := pub.events[0].(contracts.StockUnavailable)
	if !ok {
		t.Fatalf("expected StockUnavailable, got %T", pub.events[0])
	}
	if len(unavailable.UnavailableProducts) != 1 || unavailable.UnavailableProducts[0] != "P1" {
		t.Fatalf("unexpected products: %v", unavailable.UnavailableProducts)
	}
}

func TestInventoryService_FallsBackToUnknownProduct(t *testing.T) {
	pub := &capturePublisher{}
	svc := newInventoryService(t, pub, alwaysChance(false))

	if err := svc.Handle(context.Background(), mustWrap(t, reserveFixture(uuid.New()))); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	unavailable, ok := pub.events[0].(contracts.StockUnavailable)
	if !ok {
		t.Fatalf("expected StockUnavailable, got %T", pub.events[0])
	}
	if len(unavailable.UnavailableProducts) != 1 || unavailable.UnavailableProducts[0] != "PRODUCT-UNKNOWN" {
		t.Fatalf("unexpected products: %v", unavailable.UnavailableProducts)
	}
}

func TestInventoryService_IgnoresUnexpectedKinds(t *testing.T) {
	pub := &capturePublisher{}
	svc := newInventoryService(t, pub, alwaysChance(true))

	err := svc.Handle(context.Background(), mustWrap(t, contracts.ProcessPayment{
		OrderID: uuid.New(),
		Amount:  1,
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected no outbound events")
	}
}
