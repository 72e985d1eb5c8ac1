package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/internal/orders"
	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/gateway"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
	"github.com/mercatolabs/mercato-backend/pkg/metrics"
	"github.com/mercatolabs/mercato-backend/pkg/outbox"
	"github.com/mercatolabs/mercato-backend/pkg/outbox/payloads"
	pkgredis "github.com/mercatolabs/mercato-backend/pkg/redis"
)

const attemptScope = "payment_attempts"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type gatewayRegistry interface {
	Get(id string) (gateway.Gateway, error)
	ForMethod(method enums.PaymentMethod) (gateway.Gateway, error)
}

// Service orchestrates payment attempts against gateways. It owns attempt
// state; gateways stay stateless.
type Service interface {
	InitiatePayment(ctx context.Context, vendorOrderID uuid.UUID) (*models.PaymentAttempt, error)
	InitiateForOrder(ctx context.Context, orderID uuid.UUID) ([]*models.PaymentAttempt, error)
	VerifyPayment(ctx context.Context, attemptID uuid.UUID) (*models.PaymentAttempt, error)
	HandleWebhook(ctx context.Context, gatewayID string, r *http.Request, body []byte) error
}

type service struct {
	tx       txRunner
	attempts AttemptRepository
	orders   orders.Repository
	gateways gatewayRegistry
	counter  pkgredis.AttemptCounter
	outbox   outboxPublisher
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	cfg      config.PaymentsConfig
	now      func() time.Time
}

// NewService builds the payment orchestrator.
func NewService(
	tx txRunner,
	attempts AttemptRepository,
	ordersRepo orders.Repository,
	gateways gatewayRegistry,
	counter pkgredis.AttemptCounter,
	publisher outboxPublisher,
	m *metrics.CheckoutMetrics,
	logg *logger.Logger,
	cfg config.PaymentsConfig,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if counter == nil {
		return nil, fmt.Errorf("attempt counter required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       tx,
		attempts: attempts,
		orders:   ordersRepo,
		gateways: gateways,
		counter:  counter,
		outbox:   publisher,
		metrics:  m,
		logg:     logg,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// InitiatePayment opens a payment attempt for one vendor order. COD orders
// short-circuit: a pending attempt is recorded and no gateway is contacted.
// Online methods create the attempt in a transaction (the one-open-attempt
// guard runs under the lock), then call the gateway after commit so a slow
// processor never holds a DB transaction open.
func (s *service) InitiatePayment(ctx context.Context, vendorOrderID uuid.UUID) (*models.PaymentAttempt, error) {
	if vendorOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor order id required")
	}

	var attempt *models.PaymentAttempt
	var vendorOrder *models.VendorOrder
	var master *models.Order

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		attemptsRepo := s.attempts.WithTx(tx)

		vo, err := ordersRepo.FindVendorOrderForUpdate(ctx, vendorOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock vendor order")
		}
		vendorOrder = vo

		if vo.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "vendor order can no longer be paid").
				WithDetails(map[string]any{"status": vo.Status.String()})
		}

		if _, err := attemptsRepo.FindOpenByVendorOrder(ctx, vo.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment attempt already in flight")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open attempts")
		}

		master, err = ordersRepo.FindOrderByID(ctx, vo.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load master order")
		}

		count, err := attemptsRepo.CountByVendorOrder(ctx, vo.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count attempts")
		}

		attempt = &models.PaymentAttempt{
			VendorOrderID: vo.ID,
			AttemptNumber: int(count) + 1,
			Method:        master.PaymentMethod,
			Status:        enums.PaymentStatusPending,
			AmountCents:   vo.TotalCents,
			Currency:      vo.Currency,
		}
		if _, err := attemptsRepo.Create(ctx, attempt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment attempt")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// COD settles at the door; the pending attempt is the whole story here.
	if !master.PaymentMethod.RequiresGateway() {
		s.observeAttempt("cod", "pending")
		return attempt, nil
	}

	retries, err := s.counter.IncrAttempts(ctx, attemptScope, vendorOrderID.String(), s.cfg.AttemptWindow)
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("attempt counter unavailable: %v", err))
	} else if s.cfg.MaxAttempts > 0 && retries > int64(s.cfg.MaxAttempts) {
		failed := s.failAttempt(ctx, attempt, "", "retry limit reached")
		s.observeAttempt("", "rejected")
		if failed != nil {
			return nil, failed
		}
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "payment retry limit reached").
			WithDetails(map[string]any{"max_attempts": s.cfg.MaxAttempts})
	}

	return s.callGateway(ctx, attempt, vendorOrder, master)
}

// callGateway runs the gateway initiation outside any DB transaction and
// persists the verdict.
func (s *service) callGateway(ctx context.Context, attempt *models.PaymentAttempt, vendorOrder *models.VendorOrder, master *models.Order) (*models.PaymentAttempt, error) {
	gw, err := s.gateways.ForMethod(master.PaymentMethod)
	if err != nil {
		if failErr := s.failAttempt(ctx, attempt, "", err.Error()); failErr != nil {
			return nil, failErr
		}
		return nil, err
	}

	gwCtx := ctx
	if s.cfg.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		gwCtx, cancel = context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		defer cancel()
	}

	result, err := gw.InitiatePayment(gwCtx, gateway.InitiateParams{
		AttemptID:      attempt.ID.String(),
		VendorOrderID:  vendorOrder.ID.String(),
		OrderNumber:    master.OrderNumber,
		Method:         master.PaymentMethod,
		AmountCents:    attempt.AmountCents,
		Currency:       attempt.Currency,
		ContactEmail:   master.ContactEmail,
		IdempotencyKey: fmt.Sprintf("attempt-%s", attempt.ID),
	})
	if err != nil {
		// unreachable gateway: attempt fails, vendor order stays payable
		s.observeAttempt(gw.ID(), "unreachable")
		if failErr := s.failAttempt(ctx, attempt, gw.ID(), err.Error()); failErr != nil {
			return nil, failErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentInitiation, err, "gateway initiation failed")
	}

	attempt.GatewayID = gw.ID()
	if result.GatewayRef != "" {
		attempt.GatewayRef = &result.GatewayRef
	}
	attempt.GatewayResponse = result.Raw

	switch {
	case result.Status == enums.PaymentStatusFailed || result.Status.IsFailure():
		attempt.Status = enums.PaymentStatusFailed
		if result.FailureReason != "" {
			attempt.FailureReason = &result.FailureReason
		}
		s.observeAttempt(gw.ID(), "rejected")
	case result.Status == enums.PaymentStatusCompleted:
		attempt.Status = enums.PaymentStatusCompleted
		completedAt := s.now()
		attempt.CompletedAt = &completedAt
		s.observeAttempt(gw.ID(), "completed")
	default:
		attempt.Status = enums.PaymentStatusProcessing
		s.observeAttempt(gw.ID(), "accepted")
	}

	if err := s.persistAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

// InitiateForOrder fans out initiation across every vendor order in the
// master order concurrently. One vendor's gateway failure never blocks the
// siblings; errors come back aggregated.
func (s *service) InitiateForOrder(ctx context.Context, orderID uuid.UUID) ([]*models.PaymentAttempt, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	master, err := s.orders.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		attempts []*models.PaymentAttempt
		combined error
	)

	for _, vendorOrder := range master.VendorOrders {
		wg.Add(1)
		go func(vendorOrderID uuid.UUID) {
			defer wg.Done()
			attempt, err := s.InitiatePayment(ctx, vendorOrderID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				combined = multierr.Append(combined, fmt.Errorf("vendor order %s: %w", vendorOrderID, err))
				return
			}
			attempts = append(attempts, attempt)
		}(vendorOrder.ID)
	}
	wg.Wait()

	return attempts, combined
}

// VerifyPayment asks the gateway for the authoritative status and applies it.
func (s *service) VerifyPayment(ctx context.Context, attemptID uuid.UUID) (*models.PaymentAttempt, error) {
	if attemptID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "attempt id required")
	}

	attempt, err := s.attempts.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
	}
	if attempt.GatewayRef == nil || attempt.GatewayID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "attempt has no gateway reference")
	}

	gw, err := s.gateways.Get(attempt.GatewayID)
	if err != nil {
		return nil, err
	}

	result, err := gw.VerifyPayment(ctx, *attempt.GatewayRef)
	if err != nil {
		return nil, err
	}

	return s.applyGatewayStatus(ctx, attempt.ID, result.Status, result.FailureReason, result.Raw)
}

// HandleWebhook validates the callback signature before anything else, then
// applies the reported status to the referenced attempt.
func (s *service) HandleWebhook(ctx context.Context, gatewayID string, r *http.Request, body []byte) error {
	gw, err := s.gateways.Get(gatewayID)
	if err != nil {
		return err
	}

	event, err := gw.ValidateWebhook(r, body)
	if err != nil {
		s.observeWebhook(gatewayID, "rejected")
		s.logg.Warn(ctx, fmt.Sprintf("webhook signature rejected for gateway %s", gatewayID))
		return err
	}

	if event.GatewayRef == "" {
		s.observeWebhook(gatewayID, "ignored")
		return nil
	}

	attempt, err := s.attempts.FindByGatewayRef(ctx, event.GatewayRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// webhook for a charge we never opened; acknowledged, not applied
			s.observeWebhook(gatewayID, "unmatched")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
	}

	if _, err := s.applyGatewayStatus(ctx, attempt.ID, event.Status, event.FailureReason, event.Raw); err != nil {
		return err
	}
	s.observeWebhook(gatewayID, "applied")
	return nil
}

// applyGatewayStatus moves an attempt to the gateway-reported status under
// lock, emitting the terminal outcome through the outbox in the same
// transaction. Terminal attempts are never overwritten.
func (s *service) applyGatewayStatus(ctx context.Context, attemptID uuid.UUID, status enums.PaymentStatus, failureReason string, raw json.RawMessage) (*models.PaymentAttempt, error) {
	var result *models.PaymentAttempt
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		attemptsRepo := s.attempts.WithTx(tx)

		attempt, err := attemptsRepo.FindByIDForUpdate(ctx, attemptID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment attempt")
		}

		if attempt.Status.IsTerminal() {
			result = attempt
			return nil
		}
		if attempt.Status == status {
			result = attempt
			return nil
		}

		attempt.Status = status
		if len(raw) > 0 {
			attempt.GatewayResponse = raw
		}
		if failureReason != "" {
			attempt.FailureReason = &failureReason
		}
		if status == enums.PaymentStatusCompleted {
			completedAt := s.now()
			attempt.CompletedAt = &completedAt
		}

		if err := attemptsRepo.Save(ctx, attempt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment attempt")
		}

		if status.IsTerminal() {
			if err := s.emitResult(ctx, tx, attempt); err != nil {
				return err
			}
			if status == enums.PaymentStatusCompleted {
				if err := s.counter.ResetAttempts(ctx, attemptScope, attempt.VendorOrderID.String()); err != nil {
					s.logg.Warn(ctx, fmt.Sprintf("reset attempt counter: %v", err))
				}
			}
		}

		result = attempt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// failAttempt marks an attempt failed outside a gateway's happy path.
func (s *service) failAttempt(ctx context.Context, attempt *models.PaymentAttempt, gatewayID, reason string) error {
	attempt.Status = enums.PaymentStatusFailed
	if gatewayID != "" {
		attempt.GatewayID = gatewayID
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}
	return s.persistAttempt(ctx, attempt)
}

func (s *service) persistAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		attemptsRepo := s.attempts.WithTx(tx)
		if err := attemptsRepo.Save(ctx, attempt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment attempt")
		}
		if attempt.Status.IsTerminal() {
			return s.emitResult(ctx, tx, attempt)
		}
		return nil
	})
}

func (s *service) emitResult(ctx context.Context, tx *gorm.DB, attempt *models.PaymentAttempt) error {
	eventType := enums.EventPaymentFailed
	switch attempt.Status {
	case enums.PaymentStatusCompleted:
		eventType = enums.EventPaymentSucceeded
	case enums.PaymentStatusRefunded, enums.PaymentStatusPartiallyRefunded:
		eventType = enums.EventPaymentRefunded
	}

	failureReason := ""
	if attempt.FailureReason != nil {
		failureReason = *attempt.FailureReason
	}

	vendorOrder, err := s.orders.WithTx(tx).FindVendorOrderByID(ctx, attempt.VendorOrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor order for payment event")
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentAttempt,
		AggregateID:   attempt.ID,
		Data: payloads.PaymentResultEvent{
			VendorOrderID:     attempt.VendorOrderID,
			VendorID:          vendorOrder.VendorID,
			VendorOrderNumber: vendorOrder.VendorOrderNumber,
			AttemptID:         attempt.ID,
			AttemptNumber:     attempt.AttemptNumber,
			GatewayID:         attempt.GatewayID,
			Status:            attempt.Status,
			AmountCents:       attempt.AmountCents,
			FailureReason:     failureReason,
		},
		Version:    1,
		OccurredAt: s.now(),
	})
}

func (s *service) observeAttempt(gatewayID, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncPaymentAttempt(gatewayID, outcome)
}

func (s *service) observeWebhook(gatewayID, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncWebhook(gatewayID, outcome)
}
