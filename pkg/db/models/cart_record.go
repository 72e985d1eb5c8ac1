package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/pkg/enums"
)

// CartRecord is the accumulating cart a checkout session is started from.
// Either CustomerID (authenticated) or GuestKey (guest) is set, never both.
type CartRecord struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID    *uuid.UUID       `gorm:"column:customer_id;type:uuid"`
	GuestKey      *string          `gorm:"column:guest_key;uniqueIndex"`
	Status        enums.CartStatus `gorm:"column:status;type:text;not null;default:'active'"`
	Currency      enums.Currency   `gorm:"column:currency;type:text;not null;default:'USD'"`
	SubtotalCents int              `gorm:"column:subtotal_cents;not null;default:0"`
	ConvertedAt   *time.Time       `gorm:"column:converted_at"`
	Items         []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// Subtotal sums the line subtotals of all items.
func (c *CartRecord) Subtotal() int {
	total := 0
	for _, item := range c.Items {
		total += item.LineSubtotalCents
	}
	return total
}
