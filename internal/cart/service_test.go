package cart

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
)

type fakeCartRepository struct {
	byCustomer map[uuid.UUID]*models.CartRecord
	byGuestKey map[string]*models.CartRecord
	created    int
}

func newFakeCartRepository() *fakeCartRepository {
	return &fakeCartRepository{
		byCustomer: map[uuid.UUID]*models.CartRecord{},
		byGuestKey: map[string]*models.CartRecord{},
	}
}

func (f *fakeCartRepository) WithTx(tx *gorm.DB) CartRepository { return f }

func (f *fakeCartRepository) Create(ctx context.Context, record *models.CartRecord) (*models.CartRecord, error) {
	record.ID = uuid.New()
	f.created++
	if record.CustomerID != nil {
		f.byCustomer[*record.CustomerID] = record
	}
	if record.GuestKey != nil {
		f.byGuestKey[*record.GuestKey] = record
	}
	return record, nil
}

func (f *fakeCartRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.CartRecord, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCartRepository) FindActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error) {
	record, ok := f.byCustomer[customerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

func (f *fakeCartRepository) FindActiveByGuestKey(ctx context.Context, guestKey string) (*models.CartRecord, error) {
	record, ok := f.byGuestKey[guestKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

func (f *fakeCartRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CartStatus) error {
	return nil
}

func guestCfg() config.GuestTokenConfig {
	return config.GuestTokenConfig{Secret: "test-secret", Issuer: "mercato", TTLMinutes: 60}
}

func newCartService(t *testing.T, repo CartRepository) Service {
	t.Helper()
	validator, err := NewJWTGuestTokenValidator(guestCfg())
	if err != nil {
		t.Fatalf("build validator: %v", err)
	}
	svc, err := NewService(repo, validator, guestCfg())
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestGetOrCreateCartReturnsExisting(t *testing.T) {
	t.Parallel()
	repo := newFakeCartRepository()
	svc := newCartService(t, repo)
	customerID := uuid.New()
	existing := &models.CartRecord{ID: uuid.New(), CustomerID: &customerID, Status: enums.CartStatusActive}
	repo.byCustomer[customerID] = existing

	record, err := svc.GetOrCreateCart(context.Background(), customerID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if record.ID != existing.ID {
		t.Fatal("expected the existing cart back")
	}
	if repo.created != 0 {
		t.Fatal("no cart should be created")
	}
}

func TestGetOrCreateCartCreatesEmpty(t *testing.T) {
	t.Parallel()
	repo := newFakeCartRepository()
	svc := newCartService(t, repo)
	customerID := uuid.New()

	record, err := svc.GetOrCreateCart(context.Background(), customerID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if record.CustomerID == nil || *record.CustomerID != customerID {
		t.Fatal("new cart must belong to the customer")
	}
	if repo.created != 1 {
		t.Fatalf("expected one creation, got %d", repo.created)
	}
}

func TestGetOrCreateCartRequiresCustomer(t *testing.T) {
	t.Parallel()
	svc := newCartService(t, newFakeCartRepository())

	_, err := svc.GetOrCreateCart(context.Background(), uuid.Nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGuestTokenRoundTrip(t *testing.T) {
	t.Parallel()
	repo := newFakeCartRepository()
	svc := newCartService(t, repo)
	key := "guest-cart-key"
	repo.byGuestKey[key] = &models.CartRecord{ID: uuid.New(), GuestKey: &key, Status: enums.CartStatusActive}

	token, err := svc.IssueGuestToken(key)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	record, err := svc.GetGuestCart(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve guest cart: %v", err)
	}
	if record.GuestKey == nil || *record.GuestKey != key {
		t.Fatal("resolved wrong cart")
	}
}

func TestGetGuestCartRejectsTamperedToken(t *testing.T) {
	t.Parallel()
	svc := newCartService(t, newFakeCartRepository())

	otherCfg := guestCfg()
	otherCfg.Secret = "other-secret"
	forged := signGuestToken(t, otherCfg, "guest-cart-key", time.Now().Add(time.Hour))

	_, err := svc.GetGuestCart(context.Background(), forged)
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestGetGuestCartRejectsExpiredToken(t *testing.T) {
	t.Parallel()
	svc := newCartService(t, newFakeCartRepository())
	expired := signGuestToken(t, guestCfg(), "guest-cart-key", time.Now().Add(-time.Minute))

	_, err := svc.GetGuestCart(context.Background(), expired)
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestGetGuestCartRejectsWrongIssuer(t *testing.T) {
	t.Parallel()
	svc := newCartService(t, newFakeCartRepository())

	otherCfg := guestCfg()
	otherCfg.Issuer = "someone-else"
	foreign := signGuestToken(t, otherCfg, "guest-cart-key", time.Now().Add(time.Hour))

	_, err := svc.GetGuestCart(context.Background(), foreign)
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestGetGuestCartUnknownKey(t *testing.T) {
	t.Parallel()
	svc := newCartService(t, newFakeCartRepository())

	token, err := svc.IssueGuestToken("no-such-cart")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	_, err = svc.GetGuestCart(context.Background(), token)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidatorRejectsEmptySubject(t *testing.T) {
	t.Parallel()
	validator, err := NewJWTGuestTokenValidator(guestCfg())
	if err != nil {
		t.Fatalf("build validator: %v", err)
	}

	token := signGuestToken(t, guestCfg(), "", time.Now().Add(time.Hour))
	if _, ok := validator.Validate(token); ok {
		t.Fatal("token without subject must be rejected")
	}
}

func signGuestToken(t *testing.T, cfg config.GuestTokenConfig, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
