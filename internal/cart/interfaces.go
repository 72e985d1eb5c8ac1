package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
)

// CartRepository exposes persistence operations for cart staging data.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	Create(ctx context.Context, record *models.CartRecord) (*models.CartRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CartRecord, error)
	FindActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error)
	FindActiveByGuestKey(ctx context.Context, guestKey string) (*models.CartRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CartStatus) error
}
