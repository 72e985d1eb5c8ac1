package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OrderItem is the confirmation-time snapshot of one cart line. Name, price
// and options are copied so later product edits never change historical
// orders. Each item belongs to the master order and to one vendor order.
type OrderItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	VendorOrderID  uuid.UUID       `gorm:"column:vendor_order_id;type:uuid;not null"`
	ProductID      uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VendorID       uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null"`
	Name           string          `gorm:"column:name;not null"`
	UnitPriceCents int             `gorm:"column:unit_price_cents;not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	TotalCents     int             `gorm:"column:total_cents;not null"`
	Options        json.RawMessage `gorm:"column:options;type:jsonb"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
