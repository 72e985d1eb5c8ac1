package controllers

import (
	"net/http"

	"github.com/mercatolabs/mercato-backend/api/responses"
	"github.com/mercatolabs/mercato-backend/api/validators"
	"github.com/mercatolabs/mercato-backend/internal/cart"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
)

// IssueGuestCartToken signs the provided guest cart key into a reference
// token a guest can carry through checkout.
func IssueGuestCartToken(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload guestTokenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := svc.IssueGuestToken(payload.CartKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, guestTokenResponse{Token: token})
	}
}

type guestTokenRequest struct {
	CartKey string `json:"cart_key" validate:"required,min=8"`
}

type guestTokenResponse struct {
	Token string `json:"token"`
}
