package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/internal/orders"
	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/gateway"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
	"github.com/mercatolabs/mercato-backend/pkg/outbox"
	"github.com/mercatolabs/mercato-backend/pkg/pagination"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeAttemptRepository struct {
	byID map[uuid.UUID]*models.PaymentAttempt
}

func newFakeAttemptRepository() *fakeAttemptRepository {
	return &fakeAttemptRepository{byID: map[uuid.UUID]*models.PaymentAttempt{}}
}

func (f *fakeAttemptRepository) WithTx(tx *gorm.DB) AttemptRepository { return f }

func (f *fakeAttemptRepository) Create(ctx context.Context, attempt *models.PaymentAttempt) (*models.PaymentAttempt, error) {
	attempt.ID = uuid.New()
	stored := *attempt
	f.byID[attempt.ID] = &stored
	return attempt, nil
}

func (f *fakeAttemptRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	attempt, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *attempt
	return &copied, nil
}

func (f *fakeAttemptRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeAttemptRepository) FindByGatewayRef(ctx context.Context, gatewayRef string) (*models.PaymentAttempt, error) {
	for _, attempt := range f.byID {
		if attempt.GatewayRef != nil && *attempt.GatewayRef == gatewayRef {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAttemptRepository) FindOpenByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (*models.PaymentAttempt, error) {
	for _, attempt := range f.byID {
		if attempt.VendorOrderID != vendorOrderID {
			continue
		}
		if attempt.Status == enums.PaymentStatusPending || attempt.Status == enums.PaymentStatusProcessing {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAttemptRepository) CountByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (int64, error) {
	var count int64
	for _, attempt := range f.byID {
		if attempt.VendorOrderID == vendorOrderID {
			count++
		}
	}
	return count, nil
}

func (f *fakeAttemptRepository) Save(ctx context.Context, attempt *models.PaymentAttempt) error {
	stored := *attempt
	f.byID[attempt.ID] = &stored
	return nil
}

type fakeOrdersRepository struct {
	orders       map[uuid.UUID]*models.Order
	vendorOrders map[uuid.UUID]*models.VendorOrder
}

func newFakeOrdersRepository() *fakeOrdersRepository {
	return &fakeOrdersRepository{
		orders:       map[uuid.UUID]*models.Order{},
		vendorOrders: map[uuid.UUID]*models.VendorOrder{},
	}
}

func (f *fakeOrdersRepository) WithTx(tx *gorm.DB) orders.Repository { return f }

func (f *fakeOrdersRepository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (f *fakeOrdersRepository) CreateVendorOrder(ctx context.Context, order *models.VendorOrder) (*models.VendorOrder, error) {
	return order, nil
}

func (f *fakeOrdersRepository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	return nil
}

func (f *fakeOrdersRepository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	for _, vendorOrder := range f.vendorOrders {
		if vendorOrder.OrderID == id {
			copied.VendorOrders = append(copied.VendorOrders, *vendorOrder)
		}
	}
	return &copied, nil
}

func (f *fakeOrdersRepository) FindOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepository) FindVendorOrderByID(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error) {
	vendorOrder, ok := f.vendorOrders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return vendorOrder, nil
}

func (f *fakeOrdersRepository) FindVendorOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error) {
	return f.FindVendorOrderByID(ctx, id)
}

func (f *fakeOrdersRepository) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.VendorOrder, error) {
	return nil, nil
}

func (f *fakeOrdersRepository) UpdateVendorOrderStatus(ctx context.Context, id uuid.UUID, status enums.VendorOrderStatus, updates map[string]any) error {
	return nil
}

func (f *fakeOrdersRepository) FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	return nil, gorm.ErrRecordNotFound
}

type fakeGateway struct {
	id          string
	initiateFn  func(ctx context.Context, params gateway.InitiateParams) (*gateway.ChargeResult, error)
	verifyFn    func(ctx context.Context, gatewayRef string) (*gateway.ChargeResult, error)
	validateFn  func(r *http.Request, body []byte) (*gateway.WebhookEvent, error)
	initiations int
}

func (f *fakeGateway) ID() string { return f.id }

func (f *fakeGateway) SupportsMethod(method enums.PaymentMethod) bool {
	return method.RequiresGateway()
}

func (f *fakeGateway) InitiatePayment(ctx context.Context, params gateway.InitiateParams) (*gateway.ChargeResult, error) {
	f.initiations++
	if f.initiateFn != nil {
		return f.initiateFn(ctx, params)
	}
	return &gateway.ChargeResult{GatewayRef: "ref-" + params.AttemptID, Status: enums.PaymentStatusProcessing}, nil
}

func (f *fakeGateway) VerifyPayment(ctx context.Context, gatewayRef string) (*gateway.ChargeResult, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, gatewayRef)
	}
	return &gateway.ChargeResult{GatewayRef: gatewayRef, Status: enums.PaymentStatusCompleted}, nil
}

func (f *fakeGateway) Refund(ctx context.Context, params gateway.RefundParams) (*gateway.ChargeResult, error) {
	return &gateway.ChargeResult{GatewayRef: params.GatewayRef, Status: enums.PaymentStatusRefunded}, nil
}

func (f *fakeGateway) ValidateWebhook(r *http.Request, body []byte) (*gateway.WebhookEvent, error) {
	if f.validateFn != nil {
		return f.validateFn(r, body)
	}
	return &gateway.WebhookEvent{}, nil
}

type fakeCounter struct {
	counts map[string]int64
	resets int
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}}
}

func (f *fakeCounter) IncrAttempts(ctx context.Context, scope, id string, window time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[scope+":"+id]++
	return f.counts[scope+":"+id], nil
}

func (f *fakeCounter) ResetAttempts(ctx context.Context, scope, id string) error {
	f.resets++
	delete(f.counts, scope+":"+id)
	return nil
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type paymentsHarness struct {
	svc      *service
	attempts *fakeAttemptRepository
	orders   *fakeOrdersRepository
	gw       *fakeGateway
	counter  *fakeCounter
	outbox   *fakeOutbox
}

func newPaymentsHarness(t *testing.T) *paymentsHarness {
	t.Helper()
	attempts := newFakeAttemptRepository()
	ordersRepo := newFakeOrdersRepository()
	counter := newFakeCounter()
	publisher := &fakeOutbox{}
	gw := &fakeGateway{id: "fake"}

	registry := gateway.NewRegistry("fake")
	registry.Register(gw)

	svc, err := NewService(
		fakeTxRunner{},
		attempts,
		ordersRepo,
		registry,
		counter,
		publisher,
		nil,
		logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard}),
		config.PaymentsConfig{MaxAttempts: 3, AttemptWindow: 24 * time.Hour},
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	impl := svc.(*service)
	impl.now = func() time.Time { return time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC) }

	return &paymentsHarness{
		svc:      impl,
		attempts: attempts,
		orders:   ordersRepo,
		gw:       gw,
		counter:  counter,
		outbox:   publisher,
	}
}

func (h *paymentsHarness) seedVendorOrder(method enums.PaymentMethod, totalCents int) *models.VendorOrder {
	master := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-20260701-TEST01",
		PaymentMethod: method,
		ContactEmail:  "buyer@example.com",
		Currency:      enums.CurrencyUSD,
	}
	h.orders.orders[master.ID] = master

	vendorOrder := &models.VendorOrder{
		ID:                uuid.New(),
		OrderID:           master.ID,
		VendorID:          uuid.New(),
		VendorOrderNumber: "VO-20260701-TEST01",
		Status:            enums.VendorOrderStatusConfirmed,
		TotalCents:        totalCents,
		Currency:          enums.CurrencyUSD,
		IsCOD:             method == enums.PaymentMethodCOD,
	}
	h.orders.vendorOrders[vendorOrder.ID] = vendorOrder
	return vendorOrder
}

func TestInitiatePaymentCODSkipsGateway(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCOD, 4000)

	attempt, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if attempt.Status != enums.PaymentStatusPending {
		t.Fatalf("expected pending COD attempt, got %s", attempt.Status)
	}
	if h.gw.initiations != 0 {
		t.Fatal("COD must not contact a gateway")
	}
	if attempt.AmountCents != 4000 {
		t.Fatalf("expected amount 4000, got %d", attempt.AmountCents)
	}
	if attempt.AttemptNumber != 1 {
		t.Fatalf("expected attempt number 1, got %d", attempt.AttemptNumber)
	}
}

func TestInitiatePaymentCallsGateway(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCard, 2500)

	attempt, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if attempt.Status != enums.PaymentStatusProcessing {
		t.Fatalf("expected processing, got %s", attempt.Status)
	}
	if attempt.GatewayID != "fake" {
		t.Fatalf("expected gateway id recorded, got %q", attempt.GatewayID)
	}
	if attempt.GatewayRef == nil {
		t.Fatal("expected gateway ref recorded")
	}
	if h.gw.initiations != 1 {
		t.Fatalf("expected 1 gateway call, got %d", h.gw.initiations)
	}
}

func TestInitiatePaymentRejectsSecondOpenAttempt(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCard, 2500)

	if _, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID); err != nil {
		t.Fatalf("first initiate: %v", err)
	}

	_, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for open attempt, got %v", err)
	}
}

func TestInitiatePaymentRejectsTerminalVendorOrder(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCard, 2500)
	vendorOrder.Status = enums.VendorOrderStatusCancelled

	_, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestInitiatePaymentUnknownVendorOrder(t *testing.T) {
	h := newPaymentsHarness(t)
	_, err := h.svc.InitiatePayment(context.Background(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInitiatePaymentGatewayUnreachable(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCard, 2500)
	h.gw.initiateFn = func(ctx context.Context, params gateway.InitiateParams) (*gateway.ChargeResult, error) {
		return nil, context.DeadlineExceeded
	}

	_, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodePaymentInitiation) {
		t.Fatalf("expected payment initiation error, got %v", err)
	}

	// the attempt lands failed but the vendor order stays payable
	stored, err := h.attempts.FindOpenByVendorOrder(context.Background(), vendorOrder.ID)
	if err == nil {
		t.Fatalf("no attempt should remain open, found %s", stored.Status)
	}
	if len(h.outbox.events) != 1 || h.outbox.events[0].EventType != enums.EventPaymentFailed {
		t.Fatalf("expected one payment_failed event, got %#v", h.outbox.events)
	}
}

func TestInitiatePaymentHonorsRetryLimit(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCard, 2500)
	h.counter.counts[attemptScope+":"+vendorOrder.ID.String()] = 3

	_, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeRateLimit) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if h.gw.initiations != 0 {
		t.Fatal("rate-limited attempt must not reach the gateway")
	}
}

func TestInitiateForOrderFansOut(t *testing.T) {
	h := newPaymentsHarness(t)
	first := h.seedVendorOrder(enums.PaymentMethodCard, 2500)

	// second vendor order on the same master
	second := &models.VendorOrder{
		ID:                uuid.New(),
		OrderID:           first.OrderID,
		VendorID:          uuid.New(),
		VendorOrderNumber: "VO-20260701-TEST02",
		Status:            enums.VendorOrderStatusConfirmed,
		TotalCents:        1500,
		Currency:          enums.CurrencyUSD,
	}
	h.orders.vendorOrders[second.ID] = second

	attempts, err := h.svc.InitiateForOrder(context.Background(), first.OrderID)
	if err != nil {
		t.Fatalf("fan out: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
}

func TestInitiateForOrderPartialFailure(t *testing.T) {
	h := newPaymentsHarness(t)
	first := h.seedVendorOrder(enums.PaymentMethodCard, 2500)

	second := &models.VendorOrder{
		ID:                uuid.New(),
		OrderID:           first.OrderID,
		VendorID:          uuid.New(),
		VendorOrderNumber: "VO-20260701-TEST02",
		Status:            enums.VendorOrderStatusCancelled,
		TotalCents:        1500,
		Currency:          enums.CurrencyUSD,
	}
	h.orders.vendorOrders[second.ID] = second

	attempts, err := h.svc.InitiateForOrder(context.Background(), first.OrderID)
	if err == nil {
		t.Fatal("expected aggregated error for the cancelled sibling")
	}
	if len(attempts) != 1 {
		t.Fatalf("healthy sibling must still get an attempt, got %d", len(attempts))
	}
}

func TestVerifyPaymentAppliesCompletion(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCard, 2500)

	attempt, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	verified, err := h.svc.VerifyPayment(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != enums.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", verified.Status)
	}
	if verified.CompletedAt == nil {
		t.Fatal("expected completed_at stamped")
	}

	var succeeded int
	for _, event := range h.outbox.events {
		if event.EventType == enums.EventPaymentSucceeded {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected one payment_succeeded event, got %d", succeeded)
	}
	if h.counter.resets != 1 {
		t.Fatalf("expected retry counter reset, got %d", h.counter.resets)
	}
}

func TestVerifyPaymentWithoutReference(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCOD, 2500)

	attempt, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	_, err = h.svc.VerifyPayment(context.Background(), attempt.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for missing gateway ref, got %v", err)
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCard, 2500)
	attempt, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	h.gw.validateFn = func(r *http.Request, body []byte) (*gateway.WebhookEvent, error) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/fake", nil)
	err = h.svc.HandleWebhook(context.Background(), "fake", req, []byte(`{}`))
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	// rejected webhook must not touch the attempt
	stored, _ := h.attempts.FindByID(context.Background(), attempt.ID)
	if stored.Status != enums.PaymentStatusProcessing {
		t.Fatalf("attempt mutated by rejected webhook: %s", stored.Status)
	}
}

func TestHandleWebhookAppliesStatus(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCard, 2500)
	attempt, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	h.gw.validateFn = func(r *http.Request, body []byte) (*gateway.WebhookEvent, error) {
		return &gateway.WebhookEvent{
			EventID:    "evt_1",
			GatewayRef: *attempt.GatewayRef,
			Status:     enums.PaymentStatusCompleted,
			Raw:        json.RawMessage(`{"ok":true}`),
		}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/fake", nil)
	if err := h.svc.HandleWebhook(context.Background(), "fake", req, []byte(`{}`)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	stored, _ := h.attempts.FindByID(context.Background(), attempt.ID)
	if stored.Status != enums.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
}

func TestHandleWebhookUnmatchedReferenceIsAcknowledged(t *testing.T) {
	h := newPaymentsHarness(t)
	h.seedVendorOrder(enums.PaymentMethodCard, 2500)

	h.gw.validateFn = func(r *http.Request, body []byte) (*gateway.WebhookEvent, error) {
		return &gateway.WebhookEvent{EventID: "evt_2", GatewayRef: "unknown-ref", Status: enums.PaymentStatusCompleted}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/fake", nil)
	if err := h.svc.HandleWebhook(context.Background(), "fake", req, []byte(`{}`)); err != nil {
		t.Fatalf("unmatched webhook must be acknowledged, got %v", err)
	}
}

func TestTerminalAttemptIsNeverOverwritten(t *testing.T) {
	h := newPaymentsHarness(t)
	vendorOrder := h.seedVendorOrder(enums.PaymentMethodCard, 2500)
	attempt, err := h.svc.InitiatePayment(context.Background(), vendorOrder.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := h.svc.VerifyPayment(context.Background(), attempt.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	eventsAfterVerify := len(h.outbox.events)

	// a late failure webhook loses against the terminal state
	h.gw.validateFn = func(r *http.Request, body []byte) (*gateway.WebhookEvent, error) {
		return &gateway.WebhookEvent{
			EventID:       "evt_3",
			GatewayRef:    *attempt.GatewayRef,
			Status:        enums.PaymentStatusFailed,
			FailureReason: "card declined",
		}, nil
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/fake", nil)
	if err := h.svc.HandleWebhook(context.Background(), "fake", req, []byte(`{}`)); err != nil {
		t.Fatalf("late webhook: %v", err)
	}

	stored, _ := h.attempts.FindByID(context.Background(), attempt.ID)
	if stored.Status != enums.PaymentStatusCompleted {
		t.Fatalf("terminal status overwritten: %s", stored.Status)
	}
	if len(h.outbox.events) != eventsAfterVerify {
		t.Fatal("late webhook must not emit further events")
	}
}
