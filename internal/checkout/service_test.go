package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/internal/cart"
	"github.com/mercatolabs/mercato-backend/internal/coupons"
	"github.com/mercatolabs/mercato-backend/internal/orders"
	"github.com/mercatolabs/mercato-backend/internal/shipping"
	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/outbox"
	"github.com/mercatolabs/mercato-backend/pkg/pagination"
	"github.com/mercatolabs/mercato-backend/pkg/types"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeSessionRepository struct {
	byKey   map[string]models.CheckoutSession
	saves   int
	saveErr error
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{byKey: map[string]models.CheckoutSession{}}
}

func (f *fakeSessionRepository) WithTx(tx *gorm.DB) SessionRepository { return f }

func (f *fakeSessionRepository) Create(ctx context.Context, session *models.CheckoutSession) (*models.CheckoutSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	f.byKey[session.SessionKey] = *session
	return session, nil
}

func (f *fakeSessionRepository) FindByKey(ctx context.Context, sessionKey string) (*models.CheckoutSession, error) {
	stored, ok := f.byKey[sessionKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := stored
	return &copied, nil
}

func (f *fakeSessionRepository) FindByKeyForUpdate(ctx context.Context, sessionKey string) (*models.CheckoutSession, error) {
	return f.FindByKey(ctx, sessionKey)
}

func (f *fakeSessionRepository) Save(ctx context.Context, session *models.CheckoutSession) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.byKey[session.SessionKey] = *session
	return nil
}

type fakeCartService struct {
	record *models.CartRecord
	err    error
}

func (f *fakeCartService) GetOrCreateCart(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error) {
	return f.record, f.err
}

func (f *fakeCartService) GetGuestCart(ctx context.Context, guestToken string) (*models.CartRecord, error) {
	return f.record, f.err
}

func (f *fakeCartService) IssueGuestToken(cartKey string) (string, error) { return "", nil }

type fakeCartRepository struct {
	records  map[uuid.UUID]*models.CartRecord
	statuses map[uuid.UUID]enums.CartStatus
}

func newFakeCartRepository() *fakeCartRepository {
	return &fakeCartRepository{
		records:  map[uuid.UUID]*models.CartRecord{},
		statuses: map[uuid.UUID]enums.CartStatus{},
	}
}

func (f *fakeCartRepository) WithTx(tx *gorm.DB) cart.CartRepository { return f }

func (f *fakeCartRepository) Create(ctx context.Context, record *models.CartRecord) (*models.CartRecord, error) {
	return record, nil
}

func (f *fakeCartRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.CartRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

func (f *fakeCartRepository) FindActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCartRepository) FindActiveByGuestKey(ctx context.Context, guestKey string) (*models.CartRecord, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCartRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CartStatus) error {
	f.statuses[id] = status
	if record, ok := f.records[id]; ok {
		record.Status = status
	}
	return nil
}

type fakeAppliedCouponRepository struct {
	applied   []*models.AppliedCoupon
	usage     map[string]int
	linked    map[uuid.UUID]uuid.UUID
	coupon    *models.Coupon
	couponErr error
}

func newFakeAppliedCouponRepository() *fakeAppliedCouponRepository {
	return &fakeAppliedCouponRepository{
		usage:  map[string]int{},
		linked: map[uuid.UUID]uuid.UUID{},
	}
}

func (f *fakeAppliedCouponRepository) WithTx(tx *gorm.DB) coupons.CouponRepository { return f }

func (f *fakeAppliedCouponRepository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	if f.couponErr != nil {
		return nil, f.couponErr
	}
	if f.coupon == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.coupon, nil
}

func (f *fakeAppliedCouponRepository) IncrementUsage(ctx context.Context, code string) error {
	f.usage[code]++
	return nil
}

func (f *fakeAppliedCouponRepository) CreateApplied(ctx context.Context, applied *models.AppliedCoupon) error {
	f.applied = append(f.applied, applied)
	return nil
}

func (f *fakeAppliedCouponRepository) LinkOrder(ctx context.Context, sessionID, orderID uuid.UUID) error {
	f.linked[sessionID] = orderID
	return nil
}

type fakeOrdersRepository struct {
	vendors         map[uuid.UUID]*models.Vendor
	orders          map[uuid.UUID]*models.Order
	vendorOrders    []*models.VendorOrder
	items           []models.OrderItem
	createOrderErrs []error
}

func newFakeOrdersRepository() *fakeOrdersRepository {
	return &fakeOrdersRepository{
		vendors: map[uuid.UUID]*models.Vendor{},
		orders:  map[uuid.UUID]*models.Order{},
	}
}

func (f *fakeOrdersRepository) WithTx(tx *gorm.DB) orders.Repository { return f }

func (f *fakeOrdersRepository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if len(f.createOrderErrs) > 0 {
		err := f.createOrderErrs[0]
		f.createOrderErrs = f.createOrderErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	order.ID = uuid.New()
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeOrdersRepository) CreateVendorOrder(ctx context.Context, order *models.VendorOrder) (*models.VendorOrder, error) {
	order.ID = uuid.New()
	f.vendorOrders = append(f.vendorOrders, order)
	return order, nil
}

func (f *fakeOrdersRepository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	f.items = append(f.items, items...)
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
	for _, vendorOrder := range f.vendorOrders {
		if vendorOrder.ID == id {
			return vendorOrder, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
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
	vendor, ok := f.vendors[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return vendor, nil
}

type fakeShippingQuoter struct{}

func (fakeShippingQuoter) QuoteFor(method enums.ShippingMethod) (shipping.Quote, error) {
	switch method {
	case enums.ShippingMethodStandard:
		return shipping.Quote{Method: method, CostCents: 1000}, nil
	case enums.ShippingMethodExpress:
		return shipping.Quote{Method: method, CostCents: 2500}, nil
	}
	return shipping.Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping method")
}

type fakeOutbox struct {
	events []outbox.DomainEvent
	err    error
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type testHarness struct {
	svc      *service
	sessions *fakeSessionRepository
	cartSvc  *fakeCartService
	cartRepo *fakeCartRepository
	coupons  *fakeAppliedCouponRepository
	orders   *fakeOrdersRepository
	outbox   *fakeOutbox
	now      time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	sessions := newFakeSessionRepository()
	cartSvc := &fakeCartService{}
	cartRepo := newFakeCartRepository()
	couponRepo := newFakeAppliedCouponRepository()
	ordersRepo := newFakeOrdersRepository()
	publisher := &fakeOutbox{}

	evaluator, err := coupons.NewEvaluator(couponRepo)
	if err != nil {
		t.Fatalf("build evaluator: %v", err)
	}

	svc, err := NewService(
		fakeTxRunner{},
		sessions,
		cartSvc,
		cartRepo,
		couponRepo,
		evaluator,
		ordersRepo,
		fakeShippingQuoter{},
		publisher,
		config.CheckoutConfig{SessionTTL: 30 * time.Minute, OrderNumberAttempts: 3},
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	impl := svc.(*service)
	impl.now = func() time.Time { return now }

	return &testHarness{
		svc:      impl,
		sessions: sessions,
		cartSvc:  cartSvc,
		cartRepo: cartRepo,
		coupons:  couponRepo,
		orders:   ordersRepo,
		outbox:   publisher,
		now:      now,
	}
}

func (h *testHarness) seedCart(vendorLines map[uuid.UUID][]int) *models.CartRecord {
	record := &models.CartRecord{
		ID:       uuid.New(),
		Status:   enums.CartStatusActive,
		Currency: enums.CurrencyUSD,
	}
	for vendorID, lines := range vendorLines {
		for _, cents := range lines {
			record.Items = append(record.Items, models.CartItem{
				ID:                uuid.New(),
				CartID:            record.ID,
				ProductID:         uuid.New(),
				VendorID:          vendorID,
				ProductName:       "widget",
				UnitPriceCents:    cents,
				Quantity:          1,
				LineSubtotalCents: cents,
			})
		}
		h.orders.vendors[vendorID] = &models.Vendor{ID: vendorID, Name: "vendor", Active: true}
	}
	h.cartSvc.record = record
	h.cartRepo.records[record.ID] = record
	return record
}

func (h *testHarness) startSession(t *testing.T, vendorLines map[uuid.UUID][]int) *models.CheckoutSession {
	t.Helper()
	h.seedCart(vendorLines)
	customerID := uuid.New()
	session, err := h.svc.Start(context.Background(), StartInput{
		CustomerID:   &customerID,
		ContactEmail: "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return session
}

func (h *testHarness) completeSelections(t *testing.T, sessionKey string, payment enums.PaymentMethod) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.svc.SelectAddress(ctx, sessionKey, types.Address{Country: "US", City: "Austin", Street: "100 Congress Ave"}); err != nil {
		t.Fatalf("select address: %v", err)
	}
	if _, err := h.svc.SelectShipping(ctx, sessionKey, enums.ShippingMethodStandard); err != nil {
		t.Fatalf("select shipping: %v", err)
	}
	if _, err := h.svc.SelectPayment(ctx, sessionKey, payment); err != nil {
		t.Fatalf("select payment: %v", err)
	}
}

func TestStartOpensPricedSession(t *testing.T) {
	h := newHarness(t)
	vendorID := uuid.New()
	session := h.startSession(t, map[uuid.UUID][]int{vendorID: {1500, 500}})

	if session.SubtotalCents != 2000 {
		t.Fatalf("expected subtotal 2000, got %d", session.SubtotalCents)
	}
	if session.TotalCents != 2000 {
		t.Fatalf("expected total 2000, got %d", session.TotalCents)
	}
	if session.Status != enums.CheckoutStatusPending {
		t.Fatalf("expected pending status, got %s", session.Status)
	}
	if !session.ExpiresAt.Equal(h.now.Add(30 * time.Minute)) {
		t.Fatalf("expected expiry 30m out, got %s", session.ExpiresAt)
	}
	if len(session.SessionKey) != 43 {
		t.Fatalf("expected 43-char session key, got %d", len(session.SessionKey))
	}
}

func TestStartRequiresIdentity(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Start(context.Background(), StartInput{ContactEmail: "buyer@example.com"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStartRejectsEmptyCart(t *testing.T) {
	h := newHarness(t)
	h.cartSvc.record = &models.CartRecord{ID: uuid.New(), Status: enums.CartStatusActive}
	customerID := uuid.New()

	_, err := h.svc.Start(context.Background(), StartInput{CustomerID: &customerID, ContactEmail: "buyer@example.com"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidCart) {
		t.Fatalf("expected invalid cart error, got %v", err)
	}
}

func TestSelectionsAdvanceWithoutRegressing(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {1000}})
	ctx := context.Background()

	updated, err := h.svc.SelectAddress(ctx, session.SessionKey, types.Address{Country: "US", City: "Austin", Street: "100 Congress Ave"})
	if err != nil {
		t.Fatalf("select address: %v", err)
	}
	if updated.Status != enums.CheckoutStatusAddressSelected {
		t.Fatalf("expected address_selected, got %s", updated.Status)
	}

	updated, err = h.svc.SelectShipping(ctx, session.SessionKey, enums.ShippingMethodExpress)
	if err != nil {
		t.Fatalf("select shipping: %v", err)
	}
	if updated.Status != enums.CheckoutStatusShippingSelect {
		t.Fatalf("expected shipping_selected, got %s", updated.Status)
	}
	if updated.ShippingCents != 2500 {
		t.Fatalf("expected express cost 2500, got %d", updated.ShippingCents)
	}
	if updated.TotalCents != 1000+2500 {
		t.Fatalf("expected total to include shipping, got %d", updated.TotalCents)
	}

	// replacing the address keeps the high-water mark
	updated, err = h.svc.SelectAddress(ctx, session.SessionKey, types.Address{Country: "US", City: "Dallas", Street: "1 Main St"})
	if err != nil {
		t.Fatalf("replace address: %v", err)
	}
	if updated.Status != enums.CheckoutStatusShippingSelect {
		t.Fatalf("status regressed to %s", updated.Status)
	}
}

func TestSelectAddressRejectsIncomplete(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {1000}})

	_, err := h.svc.SelectAddress(context.Background(), session.SessionKey, types.Address{Country: "US"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.sessions.saves != 0 {
		t.Fatalf("rejected address must not save, got %d saves", h.sessions.saves)
	}
}

func TestApplyCouponStoresDiscount(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {10000}})
	h.coupons.coupon = &models.Coupon{
		ID: uuid.New(), Code: "SAVE10", Type: enums.CouponTypePercent, Percent: 10, Active: true,
	}

	updated, err := h.svc.ApplyCoupon(context.Background(), session.SessionKey, "SAVE10")
	if err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	if updated.DiscountCents != 1000 {
		t.Fatalf("expected 1000 cents off, got %d", updated.DiscountCents)
	}
	if updated.TotalCents != 9000 {
		t.Fatalf("expected total 9000, got %d", updated.TotalCents)
	}
	if updated.CouponCode == nil || *updated.CouponCode != "SAVE10" {
		t.Fatalf("expected coupon code stored, got %v", updated.CouponCode)
	}
	if len(h.coupons.applied) != 1 {
		t.Fatalf("expected 1 application audit row, got %d", len(h.coupons.applied))
	}
	if h.coupons.applied[0].DiscountCents != 1000 {
		t.Fatalf("audit row discount mismatch: %d", h.coupons.applied[0].DiscountCents)
	}
}

func TestApplyCouponRejectionLeavesSessionUntouched(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {1000}})
	h.coupons.coupon = &models.Coupon{
		ID: uuid.New(), Code: "BIG", Type: enums.CouponTypeFixed, ValueCents: 500,
		MinOrderCents: 5000, Active: true,
	}

	_, err := h.svc.ApplyCoupon(context.Background(), session.SessionKey, "BIG")
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidCoupon) {
		t.Fatalf("expected invalid coupon error, got %v", err)
	}

	stored, _ := h.sessions.FindByKey(context.Background(), session.SessionKey)
	if stored.CouponCode != nil {
		t.Fatal("rejected coupon must not be stored")
	}
	if stored.DiscountCents != 0 {
		t.Fatalf("rejected coupon must not discount, got %d", stored.DiscountCents)
	}
	if len(h.coupons.applied) != 0 {
		t.Fatalf("rejected coupon must not write audit rows, got %d", len(h.coupons.applied))
	}
}

func TestSelectPaymentReevaluatesAppliedCoupon(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {10000}})
	h.coupons.coupon = &models.Coupon{
		ID: uuid.New(), Code: "CARDONLY", Type: enums.CouponTypeFixed, ValueCents: 500,
		AllowedMethods: []string{"card"}, Active: true,
	}

	if _, err := h.svc.ApplyCoupon(context.Background(), session.SessionKey, "CARDONLY"); err != nil {
		t.Fatalf("apply coupon: %v", err)
	}

	_, err := h.svc.SelectPayment(context.Background(), session.SessionKey, enums.PaymentMethodCOD)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidCoupon) {
		t.Fatalf("expected invalid coupon error, got %v", err)
	}

	stored, _ := h.sessions.FindByKey(context.Background(), session.SessionKey)
	if stored.PaymentMethod != nil {
		t.Fatal("blocked payment method must not be stored")
	}

	if _, err := h.svc.SelectPayment(context.Background(), session.SessionKey, enums.PaymentMethodCard); err != nil {
		t.Fatalf("card should pass coupon re-evaluation: %v", err)
	}
}

func TestMutationsRejectExpiredSession(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {1000}})

	h.svc.now = func() time.Time { return h.now.Add(31 * time.Minute) }

	_, err := h.svc.SelectShipping(context.Background(), session.SessionKey, enums.ShippingMethodStandard)
	if !pkgerrors.HasCode(err, pkgerrors.CodeSessionNotMutable) {
		t.Fatalf("expected session not mutable, got %v", err)
	}

	// reads still work and do not rewrite the row
	if _, err := h.svc.GetSummary(context.Background(), session.SessionKey); err != nil {
		t.Fatalf("summary of expired session: %v", err)
	}
}

func TestGetSummaryUnknownKey(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetSummary(context.Background(), "missing")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConfirmSplitsOrderPerVendor(t *testing.T) {
	h := newHarness(t)
	vendorA := uuid.New()
	vendorB := uuid.New()
	session := h.startSession(t, map[uuid.UUID][]int{
		vendorA: {6000, 1500},
		vendorB: {2500},
	})
	h.completeSelections(t, session.SessionKey, enums.PaymentMethodCard)

	order, err := h.svc.Confirm(context.Background(), session.SessionKey)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if len(order.VendorOrders) != 2 {
		t.Fatalf("expected 2 vendor orders, got %d", len(order.VendorOrders))
	}
	if order.SubtotalCents != 10000 {
		t.Fatalf("expected master subtotal 10000, got %d", order.SubtotalCents)
	}

	vendorTotal := 0
	shippingTotal := 0
	for _, vendorOrder := range order.VendorOrders {
		vendorTotal += vendorOrder.TotalCents
		shippingTotal += vendorOrder.ShippingCents
		if vendorOrder.Status != enums.VendorOrderStatusConfirmed {
			t.Fatalf("expected confirmed status, got %s", vendorOrder.Status)
		}
		if vendorOrder.IsCOD {
			t.Fatal("card order must not be COD")
		}
		if vendorOrder.ConfirmedAt == nil {
			t.Fatal("confirmed_at must be stamped")
		}
	}
	if vendorTotal != order.TotalCents {
		t.Fatalf("vendor totals %d do not reconcile with master total %d", vendorTotal, order.TotalCents)
	}
	if shippingTotal != order.ShippingCents {
		t.Fatalf("shipping allocations %d do not sum to %d", shippingTotal, order.ShippingCents)
	}

	if len(h.orders.items) != 3 {
		t.Fatalf("expected 3 item snapshots, got %d", len(h.orders.items))
	}

	if h.cartRepo.statuses[*session.CartID] != enums.CartStatusConverted {
		t.Fatal("cart must be marked converted")
	}

	stored, _ := h.sessions.FindByKey(context.Background(), session.SessionKey)
	if !stored.IsCompleted() {
		t.Fatalf("session must be completed, got %s", stored.Status)
	}
	if stored.OrderID == nil || *stored.OrderID != order.ID {
		t.Fatal("session must reference the master order")
	}

	// one event per vendor order plus the conversion event
	if len(h.outbox.events) != 3 {
		t.Fatalf("expected 3 outbox events, got %d", len(h.outbox.events))
	}
	converted := h.outbox.events[len(h.outbox.events)-1]
	if converted.EventType != enums.EventCheckoutConverted {
		t.Fatalf("expected checkout_converted last, got %s", converted.EventType)
	}
}

func TestConfirmCODStampsCollectibleAmounts(t *testing.T) {
	h := newHarness(t)
	vendorID := uuid.New()
	session := h.startSession(t, map[uuid.UUID][]int{vendorID: {4000}})
	h.completeSelections(t, session.SessionKey, enums.PaymentMethodCOD)

	order, err := h.svc.Confirm(context.Background(), session.SessionKey)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	vendorOrder := order.VendorOrders[0]
	if !vendorOrder.IsCOD {
		t.Fatal("expected COD vendor order")
	}
	if vendorOrder.CODAmountCents != vendorOrder.TotalCents {
		t.Fatalf("COD amount %d must equal total %d", vendorOrder.CODAmountCents, vendorOrder.TotalCents)
	}
}

func TestConfirmRequiresCompleteSelections(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {1000}})

	_, err := h.svc.Confirm(context.Background(), session.SessionKey)
	if !pkgerrors.HasCode(err, pkgerrors.CodeIncompleteCheckout) {
		t.Fatalf("expected incomplete checkout, got %v", err)
	}
	if len(h.orders.orders) != 0 {
		t.Fatal("incomplete session must not create orders")
	}
}

func TestConfirmTwiceFailsWithoutDuplicating(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {1000}})
	h.completeSelections(t, session.SessionKey, enums.PaymentMethodCard)

	if _, err := h.svc.Confirm(context.Background(), session.SessionKey); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	_, err := h.svc.Confirm(context.Background(), session.SessionKey)
	if !pkgerrors.HasCode(err, pkgerrors.CodeSessionNotMutable) {
		t.Fatalf("expected session not mutable, got %v", err)
	}
	if len(h.orders.orders) != 1 {
		t.Fatalf("duplicate confirm created %d orders", len(h.orders.orders))
	}
}

func TestConfirmRejectsInactiveVendor(t *testing.T) {
	h := newHarness(t)
	vendorID := uuid.New()
	session := h.startSession(t, map[uuid.UUID][]int{vendorID: {1000}})
	h.completeSelections(t, session.SessionKey, enums.PaymentMethodCard)
	h.orders.vendors[vendorID].Active = false

	_, err := h.svc.Confirm(context.Background(), session.SessionKey)
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnresolvableVendor) {
		t.Fatalf("expected unresolvable vendor, got %v", err)
	}
	if len(h.orders.orders) != 0 {
		t.Fatal("inactive vendor must abort the whole confirmation")
	}
}

func TestConfirmRetriesOrderNumberCollision(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {1000}})
	h.completeSelections(t, session.SessionKey, enums.PaymentMethodCard)
	h.orders.createOrderErrs = []error{
		errors.New(`duplicate key value violates unique constraint "orders_order_number_key"`),
	}

	order, err := h.svc.Confirm(context.Background(), session.SessionKey)
	if err != nil {
		t.Fatalf("confirm should retry past one collision: %v", err)
	}
	if order == nil {
		t.Fatal("expected an order after retry")
	}
}

func TestConfirmExhaustsNumberRetries(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {1000}})
	h.completeSelections(t, session.SessionKey, enums.PaymentMethodCard)
	collision := fmt.Errorf(`duplicate key value violates unique constraint "orders_order_number_key"`)
	h.orders.createOrderErrs = []error{collision, collision, collision}

	_, err := h.svc.Confirm(context.Background(), session.SessionKey)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict after exhausted retries, got %v", err)
	}
}

func TestConfirmIncrementsCouponUsage(t *testing.T) {
	h := newHarness(t)
	session := h.startSession(t, map[uuid.UUID][]int{uuid.New(): {10000}})
	h.coupons.coupon = &models.Coupon{
		ID: uuid.New(), Code: "SAVE10", Type: enums.CouponTypePercent, Percent: 10, Active: true,
	}
	if _, err := h.svc.ApplyCoupon(context.Background(), session.SessionKey, "SAVE10"); err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	h.completeSelections(t, session.SessionKey, enums.PaymentMethodCard)

	order, err := h.svc.Confirm(context.Background(), session.SessionKey)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if h.coupons.usage["SAVE10"] != 1 {
		t.Fatalf("expected usage count 1, got %d", h.coupons.usage["SAVE10"])
	}
	if h.coupons.linked[session.ID] != order.ID {
		t.Fatal("applied coupon row must link the master order")
	}
	if order.DiscountCents != 1000 {
		t.Fatalf("expected discount 1000 on master order, got %d", order.DiscountCents)
	}
}
