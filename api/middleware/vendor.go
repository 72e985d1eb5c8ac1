package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/api/responses"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
)

const vendorIDHeader = "X-Vendor-Id"

// VendorContext requires a valid vendor identifier header and injects it into
// the request context for vendor-scoped routes.
func VendorContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(vendorIDHeader)
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor context missing"))
				return
			}
			vendorID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "vendor id must be a uuid"))
				return
			}
			ctx := WithVendorID(r.Context(), vendorID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
