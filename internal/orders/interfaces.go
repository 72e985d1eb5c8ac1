package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	"github.com/mercatolabs/mercato-backend/pkg/pagination"
)

// Repository exposes persistence for master orders, vendor orders, and items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateVendorOrder(ctx context.Context, order *models.VendorOrder) (*models.VendorOrder, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	FindVendorOrderByID(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error)
	FindVendorOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error)
	ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.VendorOrder, error)
	UpdateVendorOrderStatus(ctx context.Context, id uuid.UUID, status enums.VendorOrderStatus, updates map[string]any) error
	FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
}
