package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
)

// AttemptRepository persists payment attempts.
type AttemptRepository interface {
	WithTx(tx *gorm.DB) AttemptRepository
	Create(ctx context.Context, attempt *models.PaymentAttempt) (*models.PaymentAttempt, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error)
	FindByGatewayRef(ctx context.Context, gatewayRef string) (*models.PaymentAttempt, error)
	FindOpenByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (*models.PaymentAttempt, error)
	CountByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (int64, error)
	Save(ctx context.Context, attempt *models.PaymentAttempt) error
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository builds an attempt repository bound to the provided DB.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) WithTx(tx *gorm.DB) AttemptRepository {
	if tx == nil {
		return r
	}
	return &attemptRepository{db: tx}
}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.PaymentAttempt) (*models.PaymentAttempt, error) {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *attemptRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) FindByGatewayRef(ctx context.Context, gatewayRef string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("gateway_ref = ?", gatewayRef).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FindOpenByVendorOrder returns the vendor order's non-terminal attempt, if
// any. gorm.ErrRecordNotFound means the order is clear to start a new one.
func (r *attemptRepository) FindOpenByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("vendor_order_id = ? AND status IN ?", vendorOrderID, []enums.PaymentStatus{
			enums.PaymentStatusPending,
			enums.PaymentStatusProcessing,
		}).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) CountByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("vendor_order_id = ?", vendorOrderID).
		Count(&count).Error
	return count, err
}

func (r *attemptRepository) Save(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Save(attempt).Error
}
