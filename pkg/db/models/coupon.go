package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mercatolabs/mercato-backend/pkg/enums"
)

// Coupon holds the rules a code is evaluated against. Rule storage is owned
// by the catalog/admin surface; checkout only reads it.
type Coupon struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code           string           `gorm:"column:code;uniqueIndex;not null"`
	Type           enums.CouponType `gorm:"column:type;type:text;not null"`
	ValueCents     int              `gorm:"column:value_cents;not null;default:0"`
	Percent        int              `gorm:"column:percent;not null;default:0"`
	MinOrderCents  int              `gorm:"column:min_order_cents;not null;default:0"`
	UsageLimit     int              `gorm:"column:usage_limit;not null;default:0"`
	UsedCount      int              `gorm:"column:used_count;not null;default:0"`
	AllowedMethods pq.StringArray   `gorm:"column:allowed_methods;type:text[]"`
	StartsAt       *time.Time       `gorm:"column:starts_at"`
	ExpiresAt      *time.Time       `gorm:"column:expires_at"`
	Active         bool             `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
