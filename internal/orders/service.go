package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/outbox"
	"github.com/mercatolabs/mercato-backend/pkg/outbox/payloads"
	"github.com/mercatolabs/mercato-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the vendor-facing fulfillment pipeline.
type Service interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetVendorOrder(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error)
	ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.VendorOrder, string, error)
	Transition(ctx context.Context, vendorOrderID uuid.UUID, target enums.VendorOrderStatus) (*models.VendorOrder, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds the fulfillment service.
func NewService(tx txRunner, repo Repository, publisher outboxPublisher) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{tx: tx, repo: repo, outbox: publisher, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) GetVendorOrder(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor order id required")
	}
	order, err := s.repo.FindVendorOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor order")
	}
	return order, nil
}

// ListVendorOrders returns one page of a vendor's orders plus the cursor for
// the next page ("" when exhausted).
func (s *service) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.VendorOrder, string, error) {
	if vendorID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	rows, err := s.repo.ListVendorOrders(ctx, vendorID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor orders")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// Transition advances a vendor order along the fulfillment pipeline. The row
// is locked for the duration; the milestone timestamp for the target status
// is written exactly once, and the status change is emitted through the
// outbox in the same transaction.
func (s *service) Transition(ctx context.Context, vendorOrderID uuid.UUID, target enums.VendorOrderStatus) (*models.VendorOrder, error) {
	if vendorOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor order id required")
	}
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown vendor order status").
			WithDetails(map[string]any{"status": string(target)})
	}

	var result *models.VendorOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindVendorOrderForUpdate(ctx, vendorOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock vendor order")
		}

		from := order.Status
		if !from.CanTransitionTo(target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "fulfillment transition disallowed").
				WithDetails(map[string]any{"from": from.String(), "to": target.String()})
		}

		now := s.now()
		updates := map[string]any{}
		if col, setAt := milestoneColumn(order, target); col != "" && setAt {
			updates[col] = now
		}

		if err := repo.UpdateVendorOrderStatus(ctx, order.ID, target, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor order status")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventVendorOrderStatusUpdated,
			AggregateType: enums.AggregateVendorOrder,
			AggregateID:   order.ID,
			Data: payloads.VendorOrderStatusUpdatedEvent{
				VendorOrderID: order.ID,
				OrderID:       order.OrderID,
				VendorID:      order.VendorID,
				From:          from,
				To:            target,
				OccurredAt:    now,
			},
			Version:    1,
			OccurredAt: now,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		result, err = repo.FindVendorOrderByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// milestoneColumn maps a target status to its set-once timestamp column. The
// bool is false when the milestone was already stamped by an earlier pass.
func milestoneColumn(order *models.VendorOrder, target enums.VendorOrderStatus) (string, bool) {
	switch target {
	case enums.VendorOrderStatusConfirmed:
		return "confirmed_at", order.ConfirmedAt == nil
	case enums.VendorOrderStatusProcessing:
		return "processing_started_at", order.ProcessingStartedAt == nil
	case enums.VendorOrderStatusPacked:
		return "packed_at", order.PackedAt == nil
	case enums.VendorOrderStatusShipped:
		return "shipped_at", order.ShippedAt == nil
	case enums.VendorOrderStatusOutForDelivery:
		return "out_for_delivery_at", order.OutForDeliveryAt == nil
	case enums.VendorOrderStatusDelivered:
		return "delivered_at", order.DeliveredAt == nil
	case enums.VendorOrderStatusCancelled:
		return "cancelled_at", order.CancelledAt == nil
	default:
		return "", false
	}
}
