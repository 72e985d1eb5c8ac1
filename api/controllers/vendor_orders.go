package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/api/middleware"
	"github.com/mercatolabs/mercato-backend/api/responses"
	"github.com/mercatolabs/mercato-backend/api/validators"
	internalorders "github.com/mercatolabs/mercato-backend/internal/orders"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
	"github.com/mercatolabs/mercato-backend/pkg/pagination"
)

// ListVendorOrders returns one page of the active vendor's orders.
func ListVendorOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		vendorID, err := vendorIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		rows, next, err := svc.ListVendorOrders(r.Context(), vendorID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]vendorOrderResponse, 0, len(rows))
		for _, row := range rows {
			items = append(items, newVendorOrderResponse(row))
		}
		responses.WriteSuccess(w, vendorOrderListResponse{Items: items, Cursor: next})
	}
}

// GetVendorOrder returns one vendor order owned by the active vendor.
func GetVendorOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		vendorID, err := vendorIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vendorOrderID, err := vendorOrderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetVendorOrder(r.Context(), vendorOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order.VendorID != vendorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found"))
			return
		}
		responses.WriteSuccess(w, newVendorOrderResponse(*order))
	}
}

// UpdateVendorOrderStatus advances a vendor order along the fulfillment
// pipeline.
func UpdateVendorOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		vendorID, err := vendorIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vendorOrderID, err := vendorOrderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		current, err := svc.GetVendorOrder(r.Context(), vendorOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if current.VendorID != vendorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderNumber(ctx, current.VendorOrderNumber)
		}

		order, err := svc.Transition(ctx, vendorOrderID, enums.VendorOrderStatus(payload.Status))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVendorOrderResponse(*order))
	}
}

func vendorIDFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.VendorIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id")
	}
	return id, nil
}

func vendorOrderIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "vendorOrderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor order id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor order id")
	}
	return id, nil
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type vendorOrderListResponse struct {
	Items  []vendorOrderResponse `json:"items"`
	Cursor string                `json:"cursor"`
}
