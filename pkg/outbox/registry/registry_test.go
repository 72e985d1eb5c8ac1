package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/pkg/config"
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	"github.com/mercatolabs/mercato-backend/pkg/outbox"
	"github.com/mercatolabs/mercato-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		OrdersTopic:   "orders-events",
		PaymentsTopic: "payments-events",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func envelopeJSON(t *testing.T, data interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

func TestResolveCheckoutConverted(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)
	sessionID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCheckoutConverted,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   sessionID,
		Payload: envelopeJSON(t, payloads.CheckoutConvertedEvent{
			SessionID:   sessionID,
			OrderID:     uuid.New(),
			OrderNumber: "ORD-20260701-7F3K9Q",
		}),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "orders-events" {
		t.Fatalf("expected orders topic, got %s", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.CheckoutConvertedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.SessionID != sessionID {
		t.Fatal("payload lost the session id")
	}
}

func TestResolveRoutesPaymentEventsToPaymentsTopic(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	for _, eventType := range []enums.OutboxEventType{
		enums.EventPaymentSucceeded,
		enums.EventPaymentFailed,
		enums.EventPaymentRefunded,
	} {
		resolved, err := reg.Resolve(models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     eventType,
			AggregateType: enums.AggregatePaymentAttempt,
			AggregateID:   uuid.New(),
			Payload:       envelopeJSON(t, payloads.PaymentResultEvent{AttemptID: uuid.New()}),
		})
		if err != nil {
			t.Fatalf("resolve %s: %v", eventType, err)
		}
		if resolved.Descriptor.Topic != "payments-events" {
			t.Fatalf("%s routed to %s", eventType, resolved.Descriptor.Topic)
		}
	}
}

func TestResolveUnknownEventTypeIsNonRetryable(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventType("mystery_event"),
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   uuid.New(),
		Payload:       envelopeJSON(t, map[string]any{}),
	})
	var nonRetryable NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestResolveRejectsAggregateMismatch(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCheckoutConverted,
		AggregateType: enums.AggregateVendorOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopeJSON(t, payloads.CheckoutConvertedEvent{}),
	})
	var nonRetryable NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestResolveRejectsMissingAggregateID(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCheckoutConverted,
		AggregateType: enums.AggregateCheckoutSession,
		Payload:       envelopeJSON(t, payloads.CheckoutConvertedEvent{}),
	})
	var nonRetryable NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestResolveRejectsNullData(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version: 1,
		EventID: uuid.NewString(),
		Data:    json.RawMessage("null"),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	_, err = reg.Resolve(models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCheckoutConverted,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   uuid.New(),
		Payload:       payload,
	})
	var nonRetryable NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestResolveRejectsMalformedEnvelope(t *testing.T) {
	t.Parallel()
	reg := testRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCheckoutConverted,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":`),
	})
	var nonRetryable NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}
