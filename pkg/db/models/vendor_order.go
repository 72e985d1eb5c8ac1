package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/pkg/enums"
)

// VendorOrder is the unit of fulfillment: exactly one vendor's slice of a
// master order. Status is mutated only by the vendor-facing fulfillment
// pipeline; each milestone timestamp is set exactly once.
type VendorOrder struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	VendorID            uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null"`
	VendorOrderNumber   string                  `gorm:"column:vendor_order_number;uniqueIndex;not null"`
	Status              enums.VendorOrderStatus `gorm:"column:status;type:text;not null;default:'confirmed'"`
	Currency            enums.Currency          `gorm:"column:currency;type:text;not null;default:'USD'"`
	SubtotalCents       int                     `gorm:"column:subtotal_cents;not null"`
	TaxCents            int                     `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents       int                     `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents       int                     `gorm:"column:discount_cents;not null;default:0"`
	TotalCents          int                     `gorm:"column:total_cents;not null"`
	IsCOD               bool                    `gorm:"column:is_cod;not null;default:false"`
	CODAmountCents      int                     `gorm:"column:cod_amount_cents;not null;default:0"`
	ConfirmedAt         *time.Time              `gorm:"column:confirmed_at"`
	ProcessingStartedAt *time.Time              `gorm:"column:processing_started_at"`
	PackedAt            *time.Time              `gorm:"column:packed_at"`
	ShippedAt           *time.Time              `gorm:"column:shipped_at"`
	OutForDeliveryAt    *time.Time              `gorm:"column:out_for_delivery_at"`
	DeliveredAt         *time.Time              `gorm:"column:delivered_at"`
	CancelledAt         *time.Time              `gorm:"column:cancelled_at"`
	Items               []OrderItem             `gorm:"foreignKey:VendorOrderID;constraint:OnDelete:CASCADE"`
	PaymentAttempts     []PaymentAttempt        `gorm:"foreignKey:VendorOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// FulfillmentDurationMinutes returns delivered_at - confirmed_at in minutes,
// or nil while either timestamp is missing.
func (v *VendorOrder) FulfillmentDurationMinutes() *int64 {
	if v.ConfirmedAt == nil || v.DeliveredAt == nil {
		return nil
	}
	minutes := int64(v.DeliveredAt.Sub(*v.ConfirmedAt) / time.Minute)
	return &minutes
}
