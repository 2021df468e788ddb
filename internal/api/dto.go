package api

import "time"

type SubmitOrderRequest struct {
	CustomerID  string         `json:"customer_id"`
	TotalAmount float64        `json:"total_amount"`
	Items       []OrderItemDTO `json:"items"`
}

type OrderItemDTO struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type SubmitOrderResponse struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

type OrderStatusResponse struct {
	OrderID       string         `json:"order_id"`
	State         string         `json:"state"`
	CustomerID    string         `json:"customer_id"`
	TotalAmount   float64        `json:"total_amount"`
	Items         []OrderItemDTO `json:"items"`
	TransactionID string         `json:"transaction_id,omitempty"`
	ReservationID string         `json:"reservation_id,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
