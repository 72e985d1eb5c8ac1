package controllers

import (
	"net/http"

	"github.com/mercatolabs/mercato-backend/api/responses"
	"github.com/mercatolabs/mercato-backend/internal/shipping"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
)

// ListShippingMethods returns the priced shipping methods available at
// checkout.
func ListShippingMethods(svc *shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		quotes := svc.Quotes()
		items := make([]shippingQuoteResponse, 0, len(quotes))
		for _, quote := range quotes {
			items = append(items, shippingQuoteResponse{
				Method:    string(quote.Method),
				CostCents: quote.CostCents,
			})
		}
		responses.WriteSuccess(w, map[string][]shippingQuoteResponse{"methods": items})
	}
}

type shippingQuoteResponse struct {
	Method    string `json:"method"`
	CostCents int    `json:"cost_cents"`
}
