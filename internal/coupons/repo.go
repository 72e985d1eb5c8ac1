package coupons

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/pkg/db/models"
)

// CouponRepository exposes coupon persistence.
type CouponRepository interface {
	WithTx(tx *gorm.DB) CouponRepository
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	IncrementUsage(ctx context.Context, code string) error
	CreateApplied(ctx context.Context, applied *models.AppliedCoupon) error
	LinkOrder(ctx context.Context, sessionID, orderID uuid.UUID) error
}

// Repository persists coupons and applied-coupon audit rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a coupon repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CouponRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByCode loads a coupon by its normalized code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("code = ?", normalizeCode(code)).
		First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// IncrementUsage bumps the redemption counter at confirmation time.
func (r *Repository) IncrementUsage(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("code = ?", normalizeCode(code)).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error
}

// CreateApplied inserts the immutable application audit row.
func (r *Repository) CreateApplied(ctx context.Context, applied *models.AppliedCoupon) error {
	return r.db.WithContext(ctx).Create(applied).Error
}

// LinkOrder stamps the order id onto the latest application rows for the
// session at confirmation time.
func (r *Repository) LinkOrder(ctx context.Context, sessionID, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.AppliedCoupon{}).
		Where("session_id = ? AND order_id IS NULL", sessionID).
		UpdateColumn("order_id", orderID).Error
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
