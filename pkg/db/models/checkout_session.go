package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/pkg/enums"
	"github.com/mercatolabs/mercato-backend/pkg/types"
)

// CheckoutSession tracks one customer's progress from cart to confirmed order.
// Sessions are addressed by the random SessionKey, never by the row id, so a
// guest can reference one without authenticating and without leaking ordinals.
type CheckoutSession struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionKey      string               `gorm:"column:session_key;uniqueIndex;not null"`
	CustomerID      *uuid.UUID           `gorm:"column:customer_id;type:uuid"`
	GuestCartKey    *string              `gorm:"column:guest_cart_key"`
	ContactEmail    string               `gorm:"column:contact_email;not null"`
	ContactPhone    string               `gorm:"column:contact_phone"`
	ShippingAddress *types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	ShippingMethod  *enums.ShippingMethod `gorm:"column:shipping_method;type:text"`
	PaymentMethod   *enums.PaymentMethod `gorm:"column:payment_method;type:text"`
	CouponCode      *string              `gorm:"column:coupon_code"`
	Currency        enums.Currency       `gorm:"column:currency;type:text;not null;default:'USD'"`
	SubtotalCents   int                  `gorm:"column:subtotal_cents;not null"`
	TaxCents        int                  `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int                  `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents   int                  `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int                  `gorm:"column:total_cents;not null"`
	Status          enums.CheckoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CartID          *uuid.UUID           `gorm:"column:cart_id;type:uuid"`
	OrderID         *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	ExpiresAt       time.Time            `gorm:"column:expires_at;not null"`
	CompletedAt     *time.Time           `gorm:"column:completed_at"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// IsExpired reports whether the session passed its TTL at the given instant.
// Expiry is a read-time check, never a stored transition.
func (s *CheckoutSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsCompleted reports whether the session reached its terminal state.
func (s *CheckoutSession) IsCompleted() bool {
	return s.Status == enums.CheckoutStatusCompleted
}

// RecomputeTotal applies the session total invariant:
// total = max(0, subtotal + tax + shipping - discount).
func (s *CheckoutSession) RecomputeTotal() {
	total := s.SubtotalCents + s.TaxCents + s.ShippingCents - s.DiscountCents
	if total < 0 {
		total = 0
	}
	s.TotalCents = total
}
