// Package api exposes the order submission and status endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"orchard/internal/bus"
	"orchard/internal/contracts"
	"orchard/internal/saga"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler handles order submissions and status lookups. Submissions go
// straight to the bus; the orchestrator picks them up like any other
// message.
type Handler struct {
	publisher bus.Publisher
	store     saga.Store
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(publisher bus.Publisher, store saga.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		publisher: publisher,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// SubmitOrder assigns an order id and publishes the submission event.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if req.CustomerID == "" || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id and items are required")
		return
	}
	if req.TotalAmount <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "total_amount must be positive")
		return
	}

	items := make([]contracts.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.Price <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_item", "product_id, quantity, and price must be valid")
			return
		}
		items = append(items, contracts.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	orderID := uuid.New()
	h.logger.Info("submitting order",
		zap.String("order_id", orderID.String()),
		zap.String("customer_id", req.CustomerID))

	err := h.publisher.PublishEvent(r.Context(), contracts.OrderSubmitted{
		OrderID:     orderID,
		CustomerID:  req.CustomerID,
		TotalAmount: req.TotalAmount,
		Items:       items,
		Timestamp:   h.now().UTC(),
	})
	if err != nil {
		h.logger.Error("order submission publish failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "publish_failed", "order could not be submitted")
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitOrderResponse{
		OrderID: orderID.String(),
		Message: "Order submitted successfully",
	})
}

// GetOrder reports the saga state for one order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		return
	}

	inst, err := h.store.Load(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, saga.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order_not_found", "")
			return
		}
		h.logger.Error("order lookup failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup_failed", "")
		return
	}

	writeJSON(w, http.StatusOK, mapInstanceToResponse(inst))
}

func mapInstanceToResponse(inst *saga.Instance) OrderStatusResponse {
	resp := OrderStatusResponse{
		OrderID:       inst.CorrelationID.String(),
		State:         string(inst.State),
		CustomerID:    inst.CustomerID,
		TotalAmount:   inst.TotalAmount,
		TransactionID: inst.TransactionID,
		ReservationID: inst.ReservationID,
		FailureReason: inst.FailureReason,
		CreatedAt:     inst.CreatedAt,
	}
	if !inst.CompletedAt.IsZero() {
		at := inst.CompletedAt
		resp.CompletedAt = &at
	}

	var items []OrderItemDTO
	if len(inst.ItemsJSON) > 0 {
		var raw []contracts.OrderItem
		if err := json.Unmarshal(inst.ItemsJSON, &raw); err == nil {
			items = make([]OrderItemDTO, 0, len(raw))
			for _, it := range raw {
				items = append(items, OrderItemDTO{
					ProductID: it.ProductID,
					Quantity:  it.Quantity,
					Price:     it.Price,
				})
			}
		}
	}
	resp.Items = items
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
