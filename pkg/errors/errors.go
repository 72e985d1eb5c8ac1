package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code identifies an error class with stable response semantics. API clients
// branch on these strings, so they never change once shipped.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeStateConflict      Code = "STATE_CONFLICT"
	CodeIdempotency        Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit          Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeDependency         Code = "DEPENDENCY_ERROR"
	CodeInvalidCart        Code = "INVALID_CART"
	CodeSessionNotMutable  Code = "SESSION_NOT_MUTABLE"
	CodeInvalidCoupon      Code = "INVALID_COUPON"
	CodeIncompleteCheckout Code = "INCOMPLETE_CHECKOUT"
	CodeUnresolvableVendor Code = "UNRESOLVABLE_VENDOR"
	CodePaymentInitiation  Code = "PAYMENT_INITIATION_FAILED"
	CodeWebhookSignature   Code = "WEBHOOK_SIGNATURE_INVALID"
)

// Metadata maps a code to its HTTP status, a caller-safe message, whether
// retrying could help, and whether structured details may be exposed.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:         {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeUnauthorized:       {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authorization required"},
	CodeNotFound:           {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeConflict:           {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
	CodeStateConflict:      {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
	CodeIdempotency:        {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeRateLimit:          {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
	CodeInternal:           {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency:         {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
	CodeInvalidCart:        {HTTPStatus: http.StatusBadRequest, PublicMessage: "cart cannot be checked out", DetailsAllowed: true},
	CodeSessionNotMutable:  {HTTPStatus: http.StatusConflict, PublicMessage: "checkout session can no longer be modified", DetailsAllowed: true},
	CodeInvalidCoupon:      {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "coupon rejected", DetailsAllowed: true},
	CodeIncompleteCheckout: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "checkout selections incomplete", DetailsAllowed: true},
	CodeUnresolvableVendor: {HTTPStatus: http.StatusConflict, PublicMessage: "cart references a vendor that cannot be resolved", DetailsAllowed: true},
	CodePaymentInitiation:  {HTTPStatus: http.StatusBadGateway, Retryable: true, PublicMessage: "payment could not be initiated", DetailsAllowed: true},
	CodeWebhookSignature:   {HTTPStatus: http.StatusUnauthorized, PublicMessage: "webhook signature invalid"},
}

// MetadataFor falls back to the internal-error metadata for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the coded error used across service boundaries. It wraps an
// optional cause and optional structured details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the first coded error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
