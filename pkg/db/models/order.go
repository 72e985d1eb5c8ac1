package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/pkg/enums"
	"github.com/mercatolabs/mercato-backend/pkg/types"
)

// Order is the customer-facing master record aggregating all vendor orders
// produced by one checkout confirmation.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string              `gorm:"column:order_number;uniqueIndex;not null"`
	SessionID       uuid.UUID           `gorm:"column:session_id;type:uuid;not null"`
	CustomerID      *uuid.UUID          `gorm:"column:customer_id;type:uuid"`
	ContactEmail    string              `gorm:"column:contact_email;not null"`
	ShippingAddress *types.Address      `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	ShippingMethod  enums.ShippingMethod `gorm:"column:shipping_method;type:text;not null"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Currency        enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	SubtotalCents   int                 `gorm:"column:subtotal_cents;not null"`
	TaxCents        int                 `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int                 `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents   int                 `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int                 `gorm:"column:total_cents;not null"`
	VendorOrders    []VendorOrder       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
