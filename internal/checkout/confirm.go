package checkout

import (
	"context"
	stdErrors "errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/internal/checkout/helpers"
	"github.com/mercatolabs/mercato-backend/internal/orders"
	"github.com/mercatolabs/mercato-backend/pkg/db"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/outbox"
	"github.com/mercatolabs/mercato-backend/pkg/outbox/payloads"
)

// Confirm converts a complete session into one master order plus one vendor
// order per vendor in the cart, all in a single transaction. A duplicate
// confirm finds the session completed and fails SESSION_NOT_MUTABLE without
// creating anything. Number collisions retry the whole transaction, bounded
// by config.
func (s *service) Confirm(ctx context.Context, sessionKey string) (*models.Order, error) {
	attempts := s.cfg.OrderNumberAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		order, err := s.confirmOnce(ctx, sessionKey)
		if err == nil {
			return order, nil
		}
		if !db.IsUniqueViolation(err, "") || pkgerrors.As(err) != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "order number generation exhausted retries")
}

func (s *service) confirmOnce(ctx context.Context, sessionKey string) (*models.Order, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)
		cartRepo := s.cartRepo.WithTx(tx)
		couponRepo := s.couponRepo.WithTx(tx)

		session, err := s.loadMutable(ctx, sessions, sessionKey)
		if err != nil {
			return err
		}
		if err := helpers.ValidateSessionComplete(session); err != nil {
			return err
		}
		if session.CartID == nil {
			return pkgerrors.New(pkgerrors.CodeInvalidCart, "session has no cart")
		}

		record, err := cartRepo.FindByID(ctx, *session.CartID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeInvalidCart, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if record.Status != enums.CartStatusActive {
			return pkgerrors.New(pkgerrors.CodeInvalidCart, "cart already processed")
		}
		if err := helpers.ValidateCartForCheckout(record); err != nil {
			return err
		}

		grouped := helpers.GroupCartItemsByVendor(record.Items)
		vendorIDs := helpers.SortedVendorIDs(grouped)
		subtotals := helpers.VendorSubtotals(grouped)

		vendorCache := map[uuid.UUID]*models.Vendor{}
		for _, vendorID := range vendorIDs {
			if _, err := s.resolveVendor(ctx, ordersRepo, vendorID, vendorCache); err != nil {
				return err
			}
		}

		now := s.now()
		taxAlloc := helpers.AllocateProportionally(session.TaxCents, vendorIDs, subtotals)
		shipAlloc := helpers.AllocateProportionally(session.ShippingCents, vendorIDs, subtotals)
		discountAlloc := helpers.AllocateProportionally(session.DiscountCents, vendorIDs, subtotals)

		master := &models.Order{
			OrderNumber:     orders.NewOrderNumber(now),
			SessionID:       session.ID,
			CustomerID:      session.CustomerID,
			ContactEmail:    session.ContactEmail,
			ShippingAddress: session.ShippingAddress,
			ShippingMethod:  *session.ShippingMethod,
			PaymentMethod:   *session.PaymentMethod,
			Currency:        session.Currency,
			SubtotalCents:   session.SubtotalCents,
			TaxCents:        session.TaxCents,
			ShippingCents:   session.ShippingCents,
			DiscountCents:   session.DiscountCents,
			TotalCents:      session.TotalCents,
		}
		if _, err := ordersRepo.CreateOrder(ctx, master); err != nil {
			return err
		}

		isCOD := *session.PaymentMethod == enums.PaymentMethodCOD
		created := make([]*models.VendorOrder, 0, len(vendorIDs))
		for _, vendorID := range vendorIDs {
			items := grouped[vendorID]
			subtotal := subtotals[vendorID]
			total := subtotal + taxAlloc[vendorID] + shipAlloc[vendorID] - discountAlloc[vendorID]
			if total < 0 {
				total = 0
			}

			vendorOrder := &models.VendorOrder{
				OrderID:           master.ID,
				VendorID:          vendorID,
				VendorOrderNumber: orders.NewVendorOrderNumber(now),
				Status:            enums.VendorOrderStatusConfirmed,
				Currency:          session.Currency,
				SubtotalCents:     subtotal,
				TaxCents:          taxAlloc[vendorID],
				ShippingCents:     shipAlloc[vendorID],
				DiscountCents:     discountAlloc[vendorID],
				TotalCents:        total,
				IsCOD:             isCOD,
				ConfirmedAt:       &now,
			}
			if isCOD {
				vendorOrder.CODAmountCents = total
			}
			if _, err := ordersRepo.CreateVendorOrder(ctx, vendorOrder); err != nil {
				return err
			}

			orderItems := make([]models.OrderItem, 0, len(items))
			for _, item := range items {
				orderItems = append(orderItems, models.OrderItem{
					OrderID:        master.ID,
					VendorOrderID:  vendorOrder.ID,
					ProductID:      item.ProductID,
					VendorID:       item.VendorID,
					Name:           item.ProductName,
					UnitPriceCents: item.UnitPriceCents,
					Quantity:       item.Quantity,
					TotalCents:     item.LineSubtotalCents,
					Options:        item.Options,
				})
			}
			if err := ordersRepo.CreateOrderItems(ctx, orderItems); err != nil {
				return err
			}

			created = append(created, vendorOrder)
		}

		if session.CouponCode != nil {
			if err := couponRepo.LinkOrder(ctx, session.ID, master.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link applied coupon")
			}
			if err := couponRepo.IncrementUsage(ctx, *session.CouponCode); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon redemption")
			}
		}

		if err := cartRepo.UpdateStatus(ctx, record.ID, enums.CartStatusConverted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert cart")
		}

		session.Status = enums.CheckoutStatusCompleted
		session.OrderID = &master.ID
		session.CompletedAt = &now
		if err := sessions.Save(ctx, session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete checkout session")
		}

		vendorOrderIDs := make([]uuid.UUID, 0, len(created))
		for _, vendorOrder := range created {
			vendorOrderIDs = append(vendorOrderIDs, vendorOrder.ID)
			event := outbox.DomainEvent{
				EventType:     enums.EventVendorOrderCreated,
				AggregateType: enums.AggregateVendorOrder,
				AggregateID:   vendorOrder.ID,
				Data: payloads.VendorOrderCreatedEvent{
					OrderID:           master.ID,
					VendorOrderID:     vendorOrder.ID,
					VendorID:          vendorOrder.VendorID,
					VendorOrderNumber: vendorOrder.VendorOrderNumber,
					TotalCents:        vendorOrder.TotalCents,
					ItemCount:         len(grouped[vendorOrder.VendorID]),
				},
				Version:    1,
				OccurredAt: now,
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}

		converted := outbox.DomainEvent{
			EventType:     enums.EventCheckoutConverted,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   session.ID,
			Data: payloads.CheckoutConvertedEvent{
				SessionID:      session.ID,
				OrderID:        master.ID,
				OrderNumber:    master.OrderNumber,
				VendorOrderIDs: vendorOrderIDs,
			},
			Version:    1,
			OccurredAt: now,
		}
		if err := s.outbox.Emit(ctx, tx, converted); err != nil {
			return err
		}

		result, err = ordersRepo.FindOrderByID(ctx, master.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveVendor loads and validates the fulfillment party for a cart line.
// Unknown or inactive vendors abort the whole confirmation.
func (s *service) resolveVendor(ctx context.Context, repo orders.Repository, vendorID uuid.UUID, cache map[uuid.UUID]*models.Vendor) (*models.Vendor, error) {
	if vendor, ok := cache[vendorID]; ok {
		return vendor, nil
	}
	vendor, err := repo.FindVendor(ctx, vendorID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnresolvableVendor, "vendor cannot be resolved").
				WithDetails(map[string]any{"vendor_id": vendorID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	if !vendor.Active {
		return nil, pkgerrors.New(pkgerrors.CodeUnresolvableVendor, "vendor is inactive").
			WithDetails(map[string]any{"vendor_id": vendorID})
	}
	cache[vendorID] = vendor
	return vendor, nil
}
