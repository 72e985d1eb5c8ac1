package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/pkg/enums"
)

// PaymentAttempt is one try at collecting payment for a vendor order. A
// vendor order may accumulate attempts across retries, but at most one is
// ever in a non-terminal (pending/processing) state.
type PaymentAttempt struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorOrderID   uuid.UUID           `gorm:"column:vendor_order_id;type:uuid;not null"`
	AttemptNumber   int                 `gorm:"column:attempt_number;not null;default:1"`
	Method          enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	AmountCents     int                 `gorm:"column:amount_cents;not null"`
	Currency        enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	GatewayID       string              `gorm:"column:gateway_id"`
	GatewayRef      *string             `gorm:"column:gateway_ref"`
	GatewayResponse json.RawMessage     `gorm:"column:gateway_response;type:jsonb"`
	FailureReason   *string             `gorm:"column:failure_reason"`
	CompletedAt     *time.Time          `gorm:"column:completed_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
