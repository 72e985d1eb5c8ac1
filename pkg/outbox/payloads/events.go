package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/pkg/enums"
)

// CheckoutConvertedEvent signals a session fanned out into vendor orders.
type CheckoutConvertedEvent struct {
	SessionID      uuid.UUID   `json:"session_id"`
	OrderID        uuid.UUID   `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	VendorOrderIDs []uuid.UUID `json:"vendor_order_ids"`
}

// VendorOrderCreatedEvent notifies a vendor of a freshly split order.
type VendorOrderCreatedEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	VendorOrderID     uuid.UUID `json:"vendor_order_id"`
	VendorID          uuid.UUID `json:"vendor_id"`
	VendorOrderNumber string    `json:"vendor_order_number"`
	TotalCents        int       `json:"total_cents"`
	ItemCount         int       `json:"item_count"`
}

// VendorOrderStatusUpdatedEvent reports a fulfillment pipeline transition.
type VendorOrderStatusUpdatedEvent struct {
	VendorOrderID uuid.UUID               `json:"vendor_order_id"`
	OrderID       uuid.UUID               `json:"order_id"`
	VendorID      uuid.UUID               `json:"vendor_id"`
	From          enums.VendorOrderStatus `json:"from"`
	To            enums.VendorOrderStatus `json:"to"`
	OccurredAt    time.Time               `json:"occurred_at"`
}

// PaymentResultEvent reports a payment attempt reaching a terminal state.
type PaymentResultEvent struct {
	VendorOrderID     uuid.UUID           `json:"vendor_order_id"`
	VendorID          uuid.UUID           `json:"vendor_id"`
	VendorOrderNumber string              `json:"vendor_order_number"`
	AttemptID         uuid.UUID           `json:"attempt_id"`
	AttemptNumber     int                 `json:"attempt_number"`
	GatewayID         string              `json:"gateway_id"`
	Status            enums.PaymentStatus `json:"status"`
	AmountCents       int                 `json:"amount_cents"`
	FailureReason     string              `json:"failure_reason,omitempty"`
}
