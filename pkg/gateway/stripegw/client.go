package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/gateway"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
)

const GatewayID = "stripe"

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	logger        *logger.Logger
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe gateway initialized (%s)", env))
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
		logger:        logg,
	}, nil
}

// ID implements gateway.Gateway.
func (c *Client) ID() string { return GatewayID }

// SupportsMethod reports whether this brand can settle the given method.
// Stripe backs card and wallet charges; COD never reaches a gateway.
func (c *Client) SupportsMethod(method enums.PaymentMethod) bool {
	switch method {
	case enums.PaymentMethodCard, enums.PaymentMethodWallet:
		return true
	default:
		return false
	}
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// InitiatePayment opens a PaymentIntent for the attempt amount.
func (c *Client) InitiatePayment(ctx context.Context, params gateway.InitiateParams) (*gateway.ChargeResult, error) {
	piParams := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(int64(params.AmountCents)),
		Currency:     stripe.String(strings.ToLower(params.Currency.String())),
		ReceiptEmail: stripe.String(params.ContactEmail),
	}
	piParams.Context = ctx
	piParams.AddMetadata("attempt_id", params.AttemptID)
	piParams.AddMetadata("vendor_order_id", params.VendorOrderID)
	piParams.AddMetadata("order_number", params.OrderNumber)
	if params.IdempotencyKey != "" {
		piParams.SetIdempotencyKey(params.IdempotencyKey)
	}

	intent, err := paymentintent.New(piParams)
	if err != nil {
		return nil, wrapStripeError(err, "create payment intent")
	}

	return chargeResultFromIntent(intent), nil
}

// VerifyPayment re-reads the PaymentIntent and reports its current status.
func (c *Client) VerifyPayment(ctx context.Context, gatewayRef string) (*gateway.ChargeResult, error) {
	ref := strings.TrimSpace(gatewayRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}

	piParams := &stripe.PaymentIntentParams{}
	piParams.Context = ctx

	intent, err := paymentintent.Get(ref, piParams)
	if err != nil {
		return nil, wrapStripeError(err, "retrieve payment intent")
	}

	return chargeResultFromIntent(intent), nil
}

// Refund reverses a completed charge, fully or partially.
func (c *Client) Refund(ctx context.Context, params gateway.RefundParams) (*gateway.ChargeResult, error) {
	ref := strings.TrimSpace(params.GatewayRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}

	refundParams := &stripe.RefundParams{
		PaymentIntent: stripe.String(ref),
	}
	refundParams.Context = ctx
	if params.AmountCents > 0 {
		refundParams.Amount = stripe.Int64(int64(params.AmountCents))
	}
	if params.IdempotencyKey != "" {
		refundParams.SetIdempotencyKey(params.IdempotencyKey)
	}

	ref2, err := refund.New(refundParams)
	if err != nil {
		return nil, wrapStripeError(err, "create refund")
	}

	raw, _ := json.Marshal(ref2)
	result := &gateway.ChargeResult{
		GatewayRef: ref,
		Status:     enums.PaymentStatusRefunded,
		Raw:        raw,
	}
	if ref2.Status == stripe.RefundStatusFailed {
		result.Status = enums.PaymentStatusFailed
		result.FailureReason = string(ref2.FailureReason)
	}
	return result, nil
}

// ValidateWebhook verifies the Stripe-Signature header before decoding the
// event. An invalid signature is rejected without reading any state.
func (c *Client) ValidateWebhook(r *http.Request, body []byte) (*gateway.WebhookEvent, error) {
	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		return nil, pkgerrors.New(pkgerrors.CodeWebhookSignature, "stripe signature missing")
	}

	event, err := webhook.ConstructEvent(body, sigHeader, c.signingSecret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeWebhookSignature, err, "verify stripe signature")
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event payload")
	}

	we := &gateway.WebhookEvent{
		EventID:    event.ID,
		GatewayRef: intent.ID,
		Raw:        event.Data.Raw,
	}

	switch event.Type {
	case "payment_intent.succeeded":
		we.Status = enums.PaymentStatusCompleted
	case "payment_intent.payment_failed":
		we.Status = enums.PaymentStatusFailed
		if intent.LastPaymentError != nil {
			we.FailureReason = intent.LastPaymentError.Msg
		}
	case "payment_intent.canceled":
		we.Status = enums.PaymentStatusCancelled
	case "charge.refunded":
		we.Status = enums.PaymentStatusRefunded
	default:
		we.Status = mapIntentStatus(intent.Status)
	}

	return we, nil
}

func chargeResultFromIntent(intent *stripe.PaymentIntent) *gateway.ChargeResult {
	raw, _ := json.Marshal(intent)
	result := &gateway.ChargeResult{
		GatewayRef: intent.ID,
		Status:     mapIntentStatus(intent.Status),
		Raw:        raw,
	}
	if intent.LastPaymentError != nil {
		result.FailureReason = intent.LastPaymentError.Msg
	}
	return result
}

func mapIntentStatus(status stripe.PaymentIntentStatus) enums.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentStatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		return enums.PaymentStatusCancelled
	case stripe.PaymentIntentStatusProcessing:
		return enums.PaymentStatusProcessing
	default:
		return enums.PaymentStatusPending
	}
}

func wrapStripeError(err error, msg string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg).WithDetails(map[string]any{
			"stripe_code": string(stripeErr.Code),
			"stripe_type": string(stripeErr.Type),
		})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
