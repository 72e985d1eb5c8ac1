package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
)

// Service resolves the cart a checkout session starts from.
type Service interface {
	GetOrCreateCart(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error)
	GetGuestCart(ctx context.Context, guestToken string) (*models.CartRecord, error)
	IssueGuestToken(cartKey string) (string, error)
}

type service struct {
	repo      CartRepository
	validator GuestTokenValidator
	tokenCfg  config.GuestTokenConfig
}

// NewService builds the cart service.
func NewService(repo CartRepository, validator GuestTokenValidator, tokenCfg config.GuestTokenConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if validator == nil {
		return nil, fmt.Errorf("guest token validator required")
	}
	return &service{repo: repo, validator: validator, tokenCfg: tokenCfg}, nil
}

// GetOrCreateCart returns the customer's active cart, creating an empty one
// when none exists.
func (s *service) GetOrCreateCart(ctx context.Context, customerID uuid.UUID) (*models.CartRecord, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}

	record, err := s.repo.FindActiveByCustomer(ctx, customerID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	fresh := &models.CartRecord{CustomerID: &customerID}
	created, err := s.repo.Create(ctx, fresh)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return created, nil
}

// GetGuestCart resolves a guest cart from its signed reference token. The
// token is validated before any lookup happens.
func (s *service) GetGuestCart(ctx context.Context, guestToken string) (*models.CartRecord, error) {
	cartKey, ok := s.validator.Validate(guestToken)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid guest cart token")
	}

	record, err := s.repo.FindActiveByGuestKey(ctx, cartKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "guest cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
	}
	return record, nil
}

// IssueGuestToken signs a guest cart key into an HS256 reference token.
func (s *service) IssueGuestToken(cartKey string) (string, error) {
	if cartKey == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "cart key required")
	}

	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.tokenCfg.Issuer,
		Subject:   cartKey,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenCfg.TTL())),
	}

	token := jwt.NewWithClaims(guestTokenSigningMethod, claims)
	signed, err := token.SignedString([]byte(s.tokenCfg.Secret))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign guest token")
	}
	return signed, nil
}
