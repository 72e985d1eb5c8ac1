package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/api/responses"
	"github.com/mercatolabs/mercato-backend/api/validators"
	checkoutsvc "github.com/mercatolabs/mercato-backend/internal/checkout"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
	"github.com/mercatolabs/mercato-backend/pkg/types"
)

// StartCheckout opens a checkout session from the caller's active cart.
func StartCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload startCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.StartInput{
			GuestCartToken: payload.GuestCartToken,
			ContactEmail:   payload.ContactEmail,
			ContactPhone:   payload.ContactPhone,
			Currency:       enums.Currency(payload.Currency),
		}
		if payload.CustomerID != nil {
			input.CustomerID = payload.CustomerID
		}

		session, err := svc.Start(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSessionResponse(session))
	}
}

// GetCheckoutSummary returns the session snapshot without mutating it.
func GetCheckoutSummary(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		key, err := sessionKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.GetSummary(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// SelectCheckoutAddress stores the shipping address on the session.
func SelectCheckoutAddress(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		key, err := sessionKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload selectAddressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.SelectAddress(r.Context(), key, types.Address{
			Country:    payload.Country,
			City:       payload.City,
			Street:     payload.Street,
			Line2:      payload.Line2,
			PostalCode: payload.PostalCode,
			State:      payload.State,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// SelectCheckoutShipping prices and stores the chosen shipping method.
func SelectCheckoutShipping(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		key, err := sessionKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload selectShippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.SelectShipping(r.Context(), key, enums.ShippingMethod(payload.Method))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// SelectCheckoutPayment stores the payment method on the session.
func SelectCheckoutPayment(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		key, err := sessionKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload selectPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.SelectPayment(r.Context(), key, enums.PaymentMethod(payload.Method))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// ApplyCheckoutCoupon evaluates and applies a coupon code to the session.
func ApplyCheckoutCoupon(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		key, err := sessionKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload applyCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.ApplyCoupon(r.Context(), key, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

// ConfirmCheckout converts the session into a master order split per vendor.
func ConfirmCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		key, err := sessionKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSessionKey(ctx, key)
		}

		order, err := svc.Confirm(ctx, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

func sessionKeyParam(r *http.Request) (string, error) {
	key := strings.TrimSpace(chi.URLParam(r, "sessionKey"))
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "session key is required")
	}
	return key, nil
}

type startCheckoutRequest struct {
	CustomerID     *uuid.UUID `json:"customer_id,omitempty" validate:"omitempty"`
	GuestCartToken string     `json:"guest_cart_token,omitempty"`
	ContactEmail   string     `json:"contact_email" validate:"required,email"`
	ContactPhone   string     `json:"contact_phone,omitempty"`
	Currency       string     `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type selectAddressRequest struct {
	Country    string  `json:"country" validate:"required"`
	City       string  `json:"city" validate:"required"`
	Street     string  `json:"street" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	State      string  `json:"state,omitempty"`
}

type selectShippingRequest struct {
	Method string `json:"method" validate:"required"`
}

type selectPaymentRequest struct {
	Method string `json:"method" validate:"required"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,min=1,max=64"`
}

type sessionResponse struct {
	SessionKey      string         `json:"session_key"`
	Status          string         `json:"status"`
	ContactEmail    string         `json:"contact_email"`
	ContactPhone    string         `json:"contact_phone,omitempty"`
	ShippingAddress *types.Address `json:"shipping_address,omitempty"`
	ShippingMethod  *string        `json:"shipping_method,omitempty"`
	PaymentMethod   *string        `json:"payment_method,omitempty"`
	CouponCode      *string        `json:"coupon_code,omitempty"`
	Currency        string         `json:"currency"`
	SubtotalCents   int            `json:"subtotal_cents"`
	TaxCents        int            `json:"tax_cents"`
	ShippingCents   int            `json:"shipping_cents"`
	DiscountCents   int            `json:"discount_cents"`
	TotalCents      int            `json:"total_cents"`
	OrderID         *uuid.UUID     `json:"order_id,omitempty"`
	ExpiresAt       string         `json:"expires_at"`
}

func newSessionResponse(session *models.CheckoutSession) sessionResponse {
	if session == nil {
		return sessionResponse{}
	}
	resp := sessionResponse{
		SessionKey:      session.SessionKey,
		Status:          string(session.Status),
		ContactEmail:    session.ContactEmail,
		ContactPhone:    session.ContactPhone,
		ShippingAddress: session.ShippingAddress,
		CouponCode:      session.CouponCode,
		Currency:        string(session.Currency),
		SubtotalCents:   session.SubtotalCents,
		TaxCents:        session.TaxCents,
		ShippingCents:   session.ShippingCents,
		DiscountCents:   session.DiscountCents,
		TotalCents:      session.TotalCents,
		OrderID:         session.OrderID,
		ExpiresAt:       session.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if session.ShippingMethod != nil {
		method := string(*session.ShippingMethod)
		resp.ShippingMethod = &method
	}
	if session.PaymentMethod != nil {
		method := string(*session.PaymentMethod)
		resp.PaymentMethod = &method
	}
	return resp
}
