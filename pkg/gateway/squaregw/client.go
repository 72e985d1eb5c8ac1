package squaregw

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/gateway"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
)

const GatewayID = "square"

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired   = errors.New("square access token is required")
	errWebhookSecretRequired = errors.New("square webhook secret is required")
	errInvalidSquareEnv      = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired        = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client exposes Square payments with centralized auth, logging, idempotency,
// and error mapping.
type Client struct {
	sdk           *sqclient.Client
	locationID    string
	environment   string
	webhookSecret string
	baseURL       string
	logger        *logger.Logger
}

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment)
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}

	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	baseURL := baseURLs[env]
	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(accessToken),
	)

	c := &Client{
		sdk:           sdk,
		locationID:    strings.TrimSpace(cfg.LocationID),
		environment:   env,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		logger:        logg,
	}

	logg.Info(ctx, fmt.Sprintf("square gateway initialized (%s)", env))
	return c, nil
}

// ID implements gateway.Gateway.
func (c *Client) ID() string { return GatewayID }

// SupportsMethod reports whether this brand can settle the given method.
func (c *Client) SupportsMethod(method enums.PaymentMethod) bool {
	return method == enums.PaymentMethodCard
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the Square webhook secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// NewIdempotencyKey returns a unique key for Square operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "mc"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// InitiatePayment opens a Square payment for the attempt amount.
func (c *Client) InitiatePayment(ctx context.Context, params gateway.InitiateParams) (*gateway.ChargeResult, error) {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey:    c.ensureIdempotencyKey("payment.create", params.IdempotencyKey),
		SourceID:          "EXTERNAL",
		LocationID:        ptrString(c.locationID),
		ReferenceID:       ptrString(params.OrderNumber),
		Note:              ptrString(fmt.Sprintf("vendor order %s", params.VendorOrderID)),
		BuyerEmailAddress: ptrString(params.ContactEmail),
	}
	if params.AmountCents > 0 {
		req.AmountMoney = moneyPtr(int64(params.AmountCents), params.Currency.String())
	}

	c.log(ctx, "request", "create_payment", map[string]any{
		"location_id":  c.locationID,
		"order_number": params.OrderNumber,
		"amount":       params.AmountCents,
	})

	resp, err := c.sdk.Payments.Create(ctx, req)
	if err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "create payment")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "create_payment", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return chargeResultFromPayment(payment), nil
}

// VerifyPayment re-reads the payment and reports its current status.
func (c *Client) VerifyPayment(ctx context.Context, gatewayRef string) (*gateway.ChargeResult, error) {
	ref := strings.TrimSpace(gatewayRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}

	req := &sq.GetPaymentsRequest{PaymentID: ref}
	c.log(ctx, "request", "get_payment", map[string]any{"payment_id": ref})

	resp, err := c.sdk.Payments.Get(ctx, req)
	if err != nil {
		c.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "get payment")
	}

	payment := resp.GetPayment()
	return chargeResultFromPayment(payment), nil
}

// Refund reverses a completed payment, fully or partially.
func (c *Client) Refund(ctx context.Context, params gateway.RefundParams) (*gateway.ChargeResult, error) {
	ref := strings.TrimSpace(params.GatewayRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}

	req := &sq.RefundPaymentRequest{
		IdempotencyKey: c.ensureIdempotencyKey("refund.create", params.IdempotencyKey),
		PaymentID:      ptrString(ref),
		Reason:         ptrString(params.Reason),
	}
	if params.AmountCents > 0 {
		req.AmountMoney = moneyPtr(int64(params.AmountCents), params.Currency.String())
	}

	c.log(ctx, "request", "refund_payment", map[string]any{"payment_id": ref, "amount": params.AmountCents})

	resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
	if err != nil {
		c.log(ctx, "error", "refund_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "refund payment")
	}

	refund := resp.GetRefund()
	raw, _ := json.Marshal(refund)
	result := &gateway.ChargeResult{
		GatewayRef: ref,
		Status:     enums.PaymentStatusRefunded,
		Raw:        raw,
	}
	if strings.EqualFold(stringValue(refund.GetStatus()), "FAILED") {
		result.Status = enums.PaymentStatusFailed
		result.FailureReason = "refund rejected"
	}
	return result, nil
}

// ValidateWebhook verifies the Square signature header before decoding the
// event. An invalid signature is rejected without reading any state.
func (c *Client) ValidateWebhook(r *http.Request, body []byte) (*gateway.WebhookEvent, error) {
	sigHeader := r.Header.Get("Square-Signature")
	if sigHeader == "" {
		return nil, pkgerrors.New(pkgerrors.CodeWebhookSignature, "square signature missing")
	}
	if !validSignature(body, c.webhookSecret, sigHeader) {
		return nil, pkgerrors.New(pkgerrors.CodeWebhookSignature, "invalid square signature")
	}

	var event struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
		Data    struct {
			ID     string `json:"id"`
			Object struct {
				Payment struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"payment"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square event payload")
	}

	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		eventID = event.Data.ID
	}

	we := &gateway.WebhookEvent{
		EventID:    eventID,
		GatewayRef: event.Data.Object.Payment.ID,
		Status:     mapPaymentStatus(event.Data.Object.Payment.Status),
		Raw:        json.RawMessage(body),
	}
	if we.Status == enums.PaymentStatusFailed {
		we.FailureReason = "payment declined"
	}
	return we, nil
}

func chargeResultFromPayment(payment *sq.Payment) *gateway.ChargeResult {
	raw, _ := json.Marshal(payment)
	return &gateway.ChargeResult{
		GatewayRef: stringValue(payment.GetID()),
		Status:     mapPaymentStatus(stringValue(payment.GetStatus())),
		Raw:        raw,
	}
}

func mapPaymentStatus(status string) enums.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return enums.PaymentStatusCompleted
	case "APPROVED", "PENDING":
		return enums.PaymentStatusProcessing
	case "CANCELED":
		return enums.PaymentStatusCancelled
	case "FAILED":
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}

func validSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return c.NewIdempotencyKey(prefix)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("square %s", op))
	}
}

func (c *Client) mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if errors.As(err, &apiErr) {
		code := pkgerrors.CodeDependency
		for _, sqErr := range c.extractSquareErrors(apiErr) {
			if sqErr == nil {
				continue
			}
			if sqErr.Code == sq.ErrorCodeIdempotencyKeyReused {
				code = pkgerrors.CodeIdempotency
				break
			}
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("square %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("square %s failed", op))
}

func (c *Client) extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
