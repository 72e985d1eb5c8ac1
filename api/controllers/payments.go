package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/api/responses"
	"github.com/mercatolabs/mercato-backend/internal/payments"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
)

// InitiateOrderPayments opens a payment attempt for every vendor order under
// the master order.
func InitiateOrderPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		attempts, err := svc.InitiateForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]paymentAttemptResponse, 0, len(attempts))
		for _, attempt := range attempts {
			items = append(items, newPaymentAttemptResponse(attempt))
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, paymentAttemptListResponse{Items: items})
	}
}

// InitiateVendorOrderPayment opens a payment attempt for one vendor order.
func InitiateVendorOrderPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		vendorOrderID, err := vendorOrderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		attempt, err := svc.InitiatePayment(r.Context(), vendorOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentAttemptResponse(attempt))
	}
}

// VerifyPaymentAttempt re-queries the gateway for the attempt's current state.
func VerifyPaymentAttempt(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "attemptId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "attempt id is required"))
			return
		}
		attemptID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid attempt id"))
			return
		}

		attempt, err := svc.VerifyPayment(r.Context(), attemptID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentAttemptResponse(attempt))
	}
}

type paymentAttemptResponse struct {
	AttemptID     uuid.UUID `json:"attempt_id"`
	VendorOrderID uuid.UUID `json:"vendor_order_id"`
	AttemptNumber int       `json:"attempt_number"`
	Method        string    `json:"method"`
	Status        string    `json:"status"`
	AmountCents   int       `json:"amount_cents"`
	Currency      string    `json:"currency"`
	GatewayID     string    `json:"gateway_id,omitempty"`
	GatewayRef    *string   `json:"gateway_ref,omitempty"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CompletedAt   *string   `json:"completed_at,omitempty"`
}

type paymentAttemptListResponse struct {
	Items []paymentAttemptResponse `json:"items"`
}

func newPaymentAttemptResponse(attempt *models.PaymentAttempt) paymentAttemptResponse {
	if attempt == nil {
		return paymentAttemptResponse{}
	}
	resp := paymentAttemptResponse{
		AttemptID:     attempt.ID,
		VendorOrderID: attempt.VendorOrderID,
		AttemptNumber: attempt.AttemptNumber,
		Method:        string(attempt.Method),
		Status:        string(attempt.Status),
		AmountCents:   attempt.AmountCents,
		Currency:      string(attempt.Currency),
		GatewayID:     attempt.GatewayID,
		GatewayRef:    attempt.GatewayRef,
		FailureReason: attempt.FailureReason,
	}
	if attempt.CompletedAt != nil {
		completed := attempt.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}
