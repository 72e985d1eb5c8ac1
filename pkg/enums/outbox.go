package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateVendorOrder     OutboxAggregateType = "vendor_order"
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
	AggregatePaymentAttempt  OutboxAggregateType = "payment_attempt"
	AggregateNotification    OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateVendorOrder,
	AggregateCheckoutSession,
	AggregatePaymentAttempt,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventVendorOrderCreated       OutboxEventType = "vendor_order_created"
	EventVendorOrderStatusUpdated OutboxEventType = "vendor_order_status_updated"
	EventCheckoutConverted        OutboxEventType = "checkout_converted"
	EventPaymentSucceeded         OutboxEventType = "payment_succeeded"
	EventPaymentFailed            OutboxEventType = "payment_failed"
	EventPaymentRefunded          OutboxEventType = "payment_refunded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventVendorOrderCreated,
	EventVendorOrderStatusUpdated,
	EventCheckoutConverted,
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventPaymentRefunded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why an outbox event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
