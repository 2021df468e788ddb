package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orchard/internal/contracts"
	"orchard/internal/saga"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

type capturePublisher struct {
	events []contracts.Event
	err    error
}

func (p *capturePublisher) PublishEvent(ctx context.Context, evt contracts.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *capturePublisher) SendCommand(ctx context.Context, cmd contracts.Command) error {
	return errors.New("unexpected command")
}

func newTestRouter(t *testing.T, pub *capturePublisher, store saga.Store) http.Handler {
	t.Helper()
	return NewRouter(RouterConfig{
		Handler: NewHandler(pub, store, zaptest.NewLogger(t)),
		Logger:  zaptest.NewLogger(t),
	})
}

const validBody = `{
	"customer_id": "C1",
	"total_amount": 199.99,
	"items": [{"product_id": "P1", "quantity": 2, "price": 99.99}]
}`

func TestSubmitOrder_Accepted(t *testing.T) {
	pub := &capturePublisher{}
	router := newTestRouter(t, pub, saga.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp SubmitOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	orderID, err := uuid.Parse(resp.OrderID)
	if err != nil {
		t.Fatalf("order id is not a uuid: %q", resp.OrderID)
	}
	if resp.Message != "Order submitted successfully" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.events))
	}
	submitted, ok := pub.events[0].(contracts.OrderSubmitted)
	if !ok {
		t.Fatalf("expected OrderSubmitted, got %T", pub.events[0])
	}
	if submitted.OrderID != orderID {
		t.Fatalf("event order id %s does not match response %s", submitted.OrderID, orderID)
	}
	if submitted.CustomerID != "C1" || submitted.TotalAmount != 199.99 {
		t.Fatalf("unexpected event: %+v", submitted)
	}
	if len(submitted.Items) != 1 || submitted.Items[0].ProductID != "P1" {
		t.Fatalf("unexpected items: %+v", submitted.Items)
	}
}

func TestSubmitOrder_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "missing customer", body: `{"total_amount": 1, "items": [{"product_id": "P1", "quantity": 1, "price": 1}]}`},
		{name: "no items", body: `{"customer_id": "C1", "total_amount": 1, "items": []}`},
		{name: "zero total", body: `{"customer_id": "C1", "total_amount": 0, "items": [{"product_id": "P1", "quantity": 1, "price": 1}]}`},
		{name: "bad item quantity", body: `{"customer_id": "C1", "total_amount": 1, "items": [{"product_id": "P1", "quantity": 0, "price": 1}]}`},
		{name: "bad item product", body: `{"customer_id": "C1", "total_amount": 1, "items": [{"product_id": "", "quantity": 1, "price": 1}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &capturePublisher{}
			router := newTestRouter(t, pub, saga.NewMemoryStore())

			req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if len(pub.events) != 0 {
				t.Fatalf("rejected request must not publish")
			}
		})
	}
}

func TestSubmitOrder_PublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("bus down")}
	router := newTestRouter(t, pub, saga.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(validBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestGetOrder(t *testing.T) {
	store := saga.NewMemoryStore()
	id := uuid.New()
	completedAt := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	inst := &saga.Instance{
		CorrelationID: id,
		State:         saga.StateCompleted,
		CustomerID:    "C1",
		TotalAmount:   199.99,
		ItemsJSON:     []byte(`[{"product_id":"P1","quantity":2,"price":99.99}]`),
		TransactionID: "TXN-1",
		ReservationID: "RES-1",
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CompletedAt:   completedAt,
	}
	if err := store.CreateIfAbsent(context.Background(), inst); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	router := newTestRouter(t, &capturePublisher{}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp OrderStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != id.String() || resp.State != string(saga.StateCompleted) {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TransactionID != "TXN-1" || resp.ReservationID != "RES-1" {
		t.Fatalf("unexpected ids: %+v", resp)
	}
	if len(resp.Items) != 1 || resp.Items[0].ProductID != "P1" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
	if resp.CompletedAt == nil || !resp.CompletedAt.Equal(completedAt) {
		t.Fatalf("unexpected completed_at: %v", resp.CompletedAt)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	router := newTestRouter(t, &capturePublisher{}, saga.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetOrder_BadID(t *testing.T) {
	router := newTestRouter(t, &capturePublisher{}, saga.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/orders/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &capturePublisher{}, saga.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
