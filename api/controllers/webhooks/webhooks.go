package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mercatolabs/mercato-backend/api/responses"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
)

type PaymentWebhookService interface {
	HandleWebhook(ctx context.Context, gatewayID string, r *http.Request, body []byte) error
}

// PaymentGateway handles asynchronous payment notifications from the gateway
// named in the URL. The raw body is read once and handed to the orchestrator,
// which validates the signature before touching any state.
func PaymentGateway(svc PaymentWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		gatewayID := strings.TrimSpace(chi.URLParam(r, "gateway"))
		if gatewayID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gateway is required"))
			return
		}

		if logg != nil {
			ctx = logg.WithGateway(ctx, gatewayID)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := svc.HandleWebhook(ctx, gatewayID, r, body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
