package models

import (
	"time"

	"github.com/google/uuid"
)

// AppliedCoupon is the audit record written when a coupon validates against a
// checkout session. It is immutable after creation and outlives the session;
// OrderID is filled in only at confirmation.
type AppliedCoupon struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CouponID      uuid.UUID  `gorm:"column:coupon_id;type:uuid;not null"`
	Code          string     `gorm:"column:code;not null"`
	SessionID     uuid.UUID  `gorm:"column:session_id;type:uuid;not null"`
	OrderID       *uuid.UUID `gorm:"column:order_id;type:uuid"`
	DiscountCents int        `gorm:"column:discount_cents;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}
