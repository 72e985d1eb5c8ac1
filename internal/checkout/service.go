package checkout

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/internal/cart"
	"github.com/mercatolabs/mercato-backend/internal/checkout/helpers"
	"github.com/mercatolabs/mercato-backend/internal/coupons"
	"github.com/mercatolabs/mercato-backend/internal/orders"
	"github.com/mercatolabs/mercato-backend/internal/shipping"
	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/outbox"
	"github.com/mercatolabs/mercato-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type shippingQuoter interface {
	QuoteFor(method enums.ShippingMethod) (shipping.Quote, error)
}

// StartInput identifies the cart a session begins from and how to reach the
// customer. Exactly one of CustomerID / GuestCartToken must be provided.
type StartInput struct {
	CustomerID     *uuid.UUID
	GuestCartToken string
	ContactEmail   string
	ContactPhone   string
	Currency       enums.Currency
}

// Service drives the checkout session state machine.
type Service interface {
	Start(ctx context.Context, input StartInput) (*models.CheckoutSession, error)
	SelectAddress(ctx context.Context, sessionKey string, address types.Address) (*models.CheckoutSession, error)
	SelectShipping(ctx context.Context, sessionKey string, method enums.ShippingMethod) (*models.CheckoutSession, error)
	SelectPayment(ctx context.Context, sessionKey string, method enums.PaymentMethod) (*models.CheckoutSession, error)
	ApplyCoupon(ctx context.Context, sessionKey string, code string) (*models.CheckoutSession, error)
	GetSummary(ctx context.Context, sessionKey string) (*models.CheckoutSession, error)
	Confirm(ctx context.Context, sessionKey string) (*models.Order, error)
}

type service struct {
	tx          txRunner
	sessions    SessionRepository
	cartSvc     cart.Service
	cartRepo    cart.CartRepository
	couponRepo  coupons.CouponRepository
	evaluator   coupons.Evaluator
	ordersRepo  orders.Repository
	shippingSvc shippingQuoter
	outbox      outboxPublisher
	cfg         config.CheckoutConfig
	now         func() time.Time
}

// NewService builds the checkout session service.
func NewService(
	tx txRunner,
	sessions SessionRepository,
	cartSvc cart.Service,
	cartRepo cart.CartRepository,
	couponRepo coupons.CouponRepository,
	evaluator coupons.Evaluator,
	ordersRepo orders.Repository,
	shippingSvc shippingQuoter,
	publisher outboxPublisher,
	cfg config.CheckoutConfig,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if cartSvc == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if couponRepo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("coupon evaluator required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if shippingSvc == nil {
		return nil, fmt.Errorf("shipping service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:          tx,
		sessions:    sessions,
		cartSvc:     cartSvc,
		cartRepo:    cartRepo,
		couponRepo:  couponRepo,
		evaluator:   evaluator,
		ordersRepo:  ordersRepo,
		shippingSvc: shippingSvc,
		outbox:      publisher,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start resolves the cart, validates it, and opens a fresh session priced
// from the cart's lines.
func (s *service) Start(ctx context.Context, input StartInput) (*models.CheckoutSession, error) {
	if input.ContactEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact email required")
	}

	var record *models.CartRecord
	var err error
	switch {
	case input.CustomerID != nil && *input.CustomerID != uuid.Nil:
		record, err = s.cartSvc.GetOrCreateCart(ctx, *input.CustomerID)
	case input.GuestCartToken != "":
		record, err = s.cartSvc.GetGuestCart(ctx, input.GuestCartToken)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id or guest cart token required")
	}
	if err != nil {
		return nil, err
	}

	if err := helpers.ValidateCartForCheckout(record); err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = record.Currency
	}

	now := s.now()
	session := &models.CheckoutSession{
		SessionKey:    newSessionKey(),
		CustomerID:    record.CustomerID,
		GuestCartKey:  record.GuestKey,
		ContactEmail:  input.ContactEmail,
		ContactPhone:  input.ContactPhone,
		Currency:      currency,
		SubtotalCents: record.Subtotal(),
		Status:        enums.CheckoutStatusPending,
		CartID:        &record.ID,
		ExpiresAt:     now.Add(s.cfg.SessionTTL),
	}
	session.RecomputeTotal()

	created, err := s.sessions.Create(ctx, session)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return created, nil
}

// SelectAddress stores the shipping address and advances the state high-water
// mark. Replacing an address never regresses the status.
func (s *service) SelectAddress(ctx context.Context, sessionKey string, address types.Address) (*models.CheckoutSession, error) {
	if missing := address.MissingFields(); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}

	return s.mutate(ctx, sessionKey, func(session *models.CheckoutSession) error {
		session.ShippingAddress = &address
		session.Status = session.Status.Advance(enums.CheckoutStatusAddressSelected)
		return nil
	})
}

// SelectShipping prices the chosen method and stores both selection and cost.
func (s *service) SelectShipping(ctx context.Context, sessionKey string, method enums.ShippingMethod) (*models.CheckoutSession, error) {
	quote, err := s.shippingSvc.QuoteFor(method)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, sessionKey, func(session *models.CheckoutSession) error {
		session.ShippingMethod = &method
		session.ShippingCents = quote.CostCents
		session.Status = session.Status.Advance(enums.CheckoutStatusShippingSelect)
		return nil
	})
}

// SelectPayment stores the payment method. When a coupon is already applied,
// the coupon is re-evaluated against the new method and the selection is
// rejected if the coupon no longer qualifies.
func (s *service) SelectPayment(ctx context.Context, sessionKey string, method enums.PaymentMethod) (*models.CheckoutSession, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method").
			WithDetails(map[string]any{"method": string(method)})
	}

	return s.mutate(ctx, sessionKey, func(session *models.CheckoutSession) error {
		if session.CouponCode != nil {
			_, err := s.evaluator.Evaluate(ctx, coupons.EvaluationInput{
				Code:          *session.CouponCode,
				SubtotalCents: session.SubtotalCents,
				PaymentMethod: &method,
				Now:           s.now(),
			})
			if err != nil {
				return err
			}
		}
		session.PaymentMethod = &method
		session.Status = session.Status.Advance(enums.CheckoutStatusPaymentSelected)
		return nil
	})
}

// ApplyCoupon evaluates the code and, on success, stores it with its discount
// and writes the immutable application audit row. A rejected coupon leaves
// the session untouched.
func (s *service) ApplyCoupon(ctx context.Context, sessionKey string, code string) (*models.CheckoutSession, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}

	var result *models.CheckoutSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)

		session, err := s.loadMutable(ctx, sessions, sessionKey)
		if err != nil {
			return err
		}

		evaluation, err := s.evaluator.WithTx(tx).Evaluate(ctx, coupons.EvaluationInput{
			Code:          code,
			SubtotalCents: session.SubtotalCents,
			PaymentMethod: session.PaymentMethod,
			Now:           s.now(),
		})
		if err != nil {
			return err
		}

		applied := &models.AppliedCoupon{
			CouponID:      evaluation.Coupon.ID,
			Code:          evaluation.Coupon.Code,
			SessionID:     session.ID,
			DiscountCents: evaluation.DiscountCents,
		}
		if err := s.couponRepo.WithTx(tx).CreateApplied(ctx, applied); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon application")
		}

		session.CouponCode = &evaluation.Coupon.Code
		session.DiscountCents = evaluation.DiscountCents
		session.RecomputeTotal()

		if err := sessions.Save(ctx, session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
		}

		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetSummary returns the session read-only. Reading never mutates; an
// expired session is reported as such without being rewritten.
func (s *service) GetSummary(ctx context.Context, sessionKey string) (*models.CheckoutSession, error) {
	session, err := s.sessions.FindByKey(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	return session, nil
}

// mutate runs one guarded session mutation: lock row, expiry + completed
// checks, apply, recompute total, save.
func (s *service) mutate(ctx context.Context, sessionKey string, apply func(*models.CheckoutSession) error) (*models.CheckoutSession, error) {
	var result *models.CheckoutSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)

		session, err := s.loadMutable(ctx, sessions, sessionKey)
		if err != nil {
			return err
		}

		if err := apply(session); err != nil {
			return err
		}
		session.RecomputeTotal()

		if err := sessions.Save(ctx, session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
		}

		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadMutable locks the session and applies the mutability guards shared by
// every write path.
func (s *service) loadMutable(ctx context.Context, sessions SessionRepository, sessionKey string) (*models.CheckoutSession, error) {
	if sessionKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session key required")
	}

	session, err := sessions.FindByKeyForUpdate(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock checkout session")
	}

	if session.IsCompleted() {
		return nil, pkgerrors.New(pkgerrors.CodeSessionNotMutable, "checkout session already completed")
	}
	if session.IsExpired(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeSessionNotMutable, "checkout session expired")
	}
	return session, nil
}

// newSessionKey returns a 43-char url-safe random key (32 bytes, base64url
// without padding).
func newSessionKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
