package controllers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/api/responses"
	internalorders "github.com/mercatolabs/mercato-backend/internal/orders"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
)

// GetOrder returns the master order with its vendor splits and item snapshots.
func GetOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return id, nil
}

type orderResponse struct {
	OrderID       uuid.UUID             `json:"order_id"`
	OrderNumber   string                `json:"order_number"`
	ContactEmail  string                `json:"contact_email"`
	Currency      string                `json:"currency"`
	SubtotalCents int                   `json:"subtotal_cents"`
	TaxCents      int                   `json:"tax_cents"`
	ShippingCents int                   `json:"shipping_cents"`
	DiscountCents int                   `json:"discount_cents"`
	TotalCents    int                   `json:"total_cents"`
	PaymentMethod string                `json:"payment_method"`
	VendorOrders  []vendorOrderResponse `json:"vendor_orders"`
	CreatedAt     string                `json:"created_at"`
}

type vendorOrderResponse struct {
	VendorOrderID     uuid.UUID           `json:"vendor_order_id"`
	VendorID          uuid.UUID           `json:"vendor_id"`
	VendorOrderNumber string              `json:"vendor_order_number"`
	Status            string              `json:"status"`
	SubtotalCents     int                 `json:"subtotal_cents"`
	TaxCents          int                 `json:"tax_cents"`
	ShippingCents     int                 `json:"shipping_cents"`
	DiscountCents     int                 `json:"discount_cents"`
	TotalCents        int                 `json:"total_cents"`
	IsCOD             bool                `json:"is_cod"`
	CODAmountCents    int                 `json:"cod_amount_cents,omitempty"`
	Items             []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ItemID         uuid.UUID       `json:"item_id"`
	ProductID      uuid.UUID       `json:"product_id"`
	Name           string          `json:"name"`
	UnitPriceCents int             `json:"unit_price_cents"`
	Quantity       int             `json:"quantity"`
	TotalCents     int             `json:"total_cents"`
	Options        json.RawMessage `json:"options,omitempty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	vendorOrders := make([]vendorOrderResponse, 0, len(order.VendorOrders))
	for _, vo := range order.VendorOrders {
		vendorOrders = append(vendorOrders, newVendorOrderResponse(vo))
	}
	sort.Slice(vendorOrders, func(i, j int) bool {
		return vendorOrders[i].VendorID.String() < vendorOrders[j].VendorID.String()
	})

	return orderResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		ContactEmail:  order.ContactEmail,
		Currency:      string(order.Currency),
		SubtotalCents: order.SubtotalCents,
		TaxCents:      order.TaxCents,
		ShippingCents: order.ShippingCents,
		DiscountCents: order.DiscountCents,
		TotalCents:    order.TotalCents,
		PaymentMethod: string(order.PaymentMethod),
		VendorOrders:  vendorOrders,
		CreatedAt:     order.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func newVendorOrderResponse(vo models.VendorOrder) vendorOrderResponse {
	items := make([]orderItemResponse, 0, len(vo.Items))
	for _, item := range vo.Items {
		items = append(items, orderItemResponse{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			TotalCents:     item.TotalCents,
			Options:        item.Options,
		})
	}
	return vendorOrderResponse{
		VendorOrderID:     vo.ID,
		VendorID:          vo.VendorID,
		VendorOrderNumber: vo.VendorOrderNumber,
		Status:            string(vo.Status),
		SubtotalCents:     vo.SubtotalCents,
		TaxCents:          vo.TaxCents,
		ShippingCents:     vo.ShippingCents,
		DiscountCents:     vo.DiscountCents,
		TotalCents:        vo.TotalCents,
		IsCOD:             vo.IsCOD,
		CODAmountCents:    vo.CODAmountCents,
		Items:             items,
	}
}
