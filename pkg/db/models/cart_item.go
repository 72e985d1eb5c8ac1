package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CartItem is one product line inside a cart record.
type CartItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID            uuid.UUID       `gorm:"column:cart_id;type:uuid;not null"`
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VendorID          uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null"`
	ProductName       string          `gorm:"column:product_name;not null"`
	UnitPriceCents    int             `gorm:"column:unit_price_cents;not null"`
	Quantity          int             `gorm:"column:quantity;not null"`
	LineSubtotalCents int             `gorm:"column:line_subtotal_cents;not null"`
	Options           json.RawMessage `gorm:"column:options;type:jsonb"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
