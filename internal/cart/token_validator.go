package cart

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mercatolabs/mercato-backend/pkg/config"
)

var guestTokenSigningMethod = jwt.SigningMethodHS256

// GuestTokenValidator verifies guest cart reference keys before lookup.
type GuestTokenValidator interface {
	Validate(token string) (string, bool)
}

type jwtGuestTokenValidator struct {
	cfg config.GuestTokenConfig
}

// NewJWTGuestTokenValidator builds a validator that verifies JWT signature,
// issuer, and expiry, returning the embedded cart key.
func NewJWTGuestTokenValidator(cfg config.GuestTokenConfig) (GuestTokenValidator, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("guest token secret required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("guest token issuer required")
	}
	return &jwtGuestTokenValidator{cfg: cfg}, nil
}

func (v *jwtGuestTokenValidator) Validate(token string) (string, bool) {
	if token == "" {
		return "", false
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != guestTokenSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(v.cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{guestTokenSigningMethod.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
	)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", false
	}
	return claims.Subject, true
}
