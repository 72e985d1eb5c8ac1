package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
	"github.com/mercatolabs/mercato-backend/pkg/outbox"
	"github.com/mercatolabs/mercato-backend/pkg/outbox/idempotency"
	"github.com/mercatolabs/mercato-backend/pkg/outbox/payloads"
)

const orderNotificationConsumer = "order-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches domain events and turns order and payment activity into
// vendor-facing notifications.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds an order notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if !handledEvent(eventType) {
		c.logg.Info(logCtx, "skipping unhandled event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, orderNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handlePayload(ctx, eventType, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, orderNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func handledEvent(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventVendorOrderCreated,
		enums.EventVendorOrderStatusUpdated,
		enums.EventPaymentSucceeded,
		enums.EventPaymentFailed,
		enums.EventPaymentRefunded:
		return true
	default:
		return false
	}
}

func (c *Consumer) handlePayload(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage, logCtx context.Context) error {
	switch eventType {
	case enums.EventVendorOrderCreated:
		var payload payloads.VendorOrderCreatedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse vendor order created payload: %w", err)
		}
		return c.createOrderNotification(ctx, payload, logCtx)
	case enums.EventVendorOrderStatusUpdated:
		var payload payloads.VendorOrderStatusUpdatedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse vendor order status payload: %w", err)
		}
		return c.createStatusNotification(ctx, payload, logCtx)
	default:
		var payload payloads.PaymentResultEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse payment result payload: %w", err)
		}
		return c.createPaymentNotification(ctx, payload, logCtx)
	}
}

func (c *Consumer) createOrderNotification(ctx context.Context, payload payloads.VendorOrderCreatedEvent, logCtx context.Context) error {
	if payload.VendorID == uuid.Nil {
		return fmt.Errorf("vendor id missing")
	}
	link := fmt.Sprintf("/vendor/orders/%s", payload.VendorOrderID)
	notification := &models.Notification{
		VendorID: payload.VendorID,
		Type:     enums.NotificationTypeNewVendorOrder,
		Title:    "New order received",
		Message:  fmt.Sprintf("Order %s with %d item(s) totaling %s is ready for fulfillment.", payload.VendorOrderNumber, payload.ItemCount, formatCents(payload.TotalCents)),
		Link:     stringPtr(link),
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "vendor notified of new order")
	return nil
}

func (c *Consumer) createStatusNotification(ctx context.Context, payload payloads.VendorOrderStatusUpdatedEvent, logCtx context.Context) error {
	if payload.VendorID == uuid.Nil {
		return fmt.Errorf("vendor id missing")
	}
	link := fmt.Sprintf("/vendor/orders/%s", payload.VendorOrderID)
	notification := &models.Notification{
		VendorID: payload.VendorID,
		Type:     enums.NotificationTypeOrderStatus,
		Title:    "Order status updated",
		Message:  fmt.Sprintf("Order %s moved from %s to %s.", payload.VendorOrderID, payload.From, payload.To),
		Link:     stringPtr(link),
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "vendor notified of status change")
	return nil
}

func (c *Consumer) createPaymentNotification(ctx context.Context, payload payloads.PaymentResultEvent, logCtx context.Context) error {
	if payload.VendorID == uuid.Nil {
		return fmt.Errorf("vendor id missing")
	}
	link := fmt.Sprintf("/vendor/orders/%s", payload.VendorOrderID)
	title := "Payment failed"
	message := fmt.Sprintf("Payment of %s for order %s failed.", formatCents(payload.AmountCents), payload.VendorOrderNumber)
	if payload.FailureReason != "" {
		message = fmt.Sprintf("Payment of %s for order %s failed: %s", formatCents(payload.AmountCents), payload.VendorOrderNumber, payload.FailureReason)
	}
	switch payload.Status {
	case enums.PaymentStatusCompleted:
		title = "Payment received"
		message = fmt.Sprintf("Payment of %s for order %s was received.", formatCents(payload.AmountCents), payload.VendorOrderNumber)
	case enums.PaymentStatusRefunded, enums.PaymentStatusPartiallyRefunded:
		title = "Payment refunded"
		message = fmt.Sprintf("Payment of %s for order %s was refunded.", formatCents(payload.AmountCents), payload.VendorOrderNumber)
	}
	notification := &models.Notification{
		VendorID: payload.VendorID,
		Type:     enums.NotificationTypePaymentResult,
		Title:    title,
		Message:  message,
		Link:     stringPtr(link),
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "vendor notified of payment result")
	return nil
}

func formatCents(cents int) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func stringPtr(value string) *string {
	return &value
}
