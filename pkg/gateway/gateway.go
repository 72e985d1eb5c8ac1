package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
)

// InitiateParams carries everything a gateway needs to open a charge for one
// vendor order payment attempt.
type InitiateParams struct {
	AttemptID      string
	VendorOrderID  string
	OrderNumber    string
	Method         enums.PaymentMethod
	AmountCents    int
	Currency       enums.Currency
	ContactEmail   string
	IdempotencyKey string
}

// RefundParams identifies a completed charge to reverse, in full or in part.
type RefundParams struct {
	GatewayRef     string
	AmountCents    int
	Currency       enums.Currency
	Reason         string
	IdempotencyKey string
}

// ChargeResult is a gateway's view of a charge after initiation or verification.
type ChargeResult struct {
	GatewayRef    string
	Status        enums.PaymentStatus
	FailureReason string
	Raw           json.RawMessage
}

// WebhookEvent is the normalized form of a gateway callback after its
// signature has been validated.
type WebhookEvent struct {
	EventID       string
	GatewayRef    string
	Status        enums.PaymentStatus
	FailureReason string
	Raw           json.RawMessage
}

// Gateway is one payment processor brand. Implementations must not touch
// application state; orchestration owns persistence.
type Gateway interface {
	ID() string
	SupportsMethod(method enums.PaymentMethod) bool
	InitiatePayment(ctx context.Context, params InitiateParams) (*ChargeResult, error)
	VerifyPayment(ctx context.Context, gatewayRef string) (*ChargeResult, error)
	Refund(ctx context.Context, params RefundParams) (*ChargeResult, error)
	// ValidateWebhook checks the request signature and decodes the event.
	// It must fail before reading any application state.
	ValidateWebhook(r *http.Request, body []byte) (*WebhookEvent, error)
}

// Registry holds configured gateway brands keyed by id.
type Registry struct {
	mu        sync.RWMutex
	gateways  map[string]Gateway
	defaultID string
}

func NewRegistry(defaultID string) *Registry {
	return &Registry{
		gateways:  map[string]Gateway{},
		defaultID: strings.TrimSpace(strings.ToLower(defaultID)),
	}
}

func (r *Registry) Register(g Gateway) {
	if g == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[strings.ToLower(g.ID())] = g
}

// Get returns the gateway with the given id.
func (r *Registry) Get(id string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[strings.TrimSpace(strings.ToLower(id))]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment gateway").
			WithDetails(map[string]any{"gateway_id": id})
	}
	return g, nil
}

// ForMethod returns the gateway that should process the given method: the
// default gateway when it supports the method, otherwise the first registered
// gateway that does (stable order).
func (r *Registry) ForMethod(method enums.PaymentMethod) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if g, ok := r.gateways[r.defaultID]; ok && g.SupportsMethod(method) {
		return g, nil
	}

	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if g := r.gateways[id]; g.SupportsMethod(method) {
			return g, nil
		}
	}

	return nil, pkgerrors.New(pkgerrors.CodePaymentInitiation, "no gateway supports payment method").
		WithDetails(map[string]any{"method": method.String()})
}

// IDs lists registered gateway ids in stable order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
