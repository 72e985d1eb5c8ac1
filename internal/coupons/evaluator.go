package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	"github.com/mercatolabs/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
)

// RejectionReason is the typed cause a coupon failed evaluation.
type RejectionReason string

const (
	ReasonNotFound      RejectionReason = "not_found"
	ReasonInactive      RejectionReason = "inactive"
	ReasonNotStarted    RejectionReason = "not_started"
	ReasonExpired       RejectionReason = "expired"
	ReasonMinOrder      RejectionReason = "min_order_not_met"
	ReasonUsageLimit    RejectionReason = "usage_limit_reached"
	ReasonMethodBlocked RejectionReason = "payment_method_not_allowed"
)

// EvaluationInput is everything a coupon is judged against.
type EvaluationInput struct {
	Code          string
	SubtotalCents int
	PaymentMethod *enums.PaymentMethod
	Now           time.Time
}

// Evaluation is a successful pricing outcome. Discount never exceeds the
// subtotal.
type Evaluation struct {
	Coupon        *models.Coupon
	DiscountCents int
}

// Evaluator prices a coupon against a session without mutating anything.
type Evaluator interface {
	Evaluate(ctx context.Context, input EvaluationInput) (*Evaluation, error)
	WithTx(tx *gorm.DB) Evaluator
}

type evaluator struct {
	repo CouponRepository
}

// NewEvaluator builds the coupon evaluator.
func NewEvaluator(repo CouponRepository) (Evaluator, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &evaluator{repo: repo}, nil
}

func (e *evaluator) WithTx(tx *gorm.DB) Evaluator {
	if tx == nil {
		return e
	}
	return &evaluator{repo: e.repo.WithTx(tx)}
}

// Evaluate validates the coupon's rules in order and computes the discount.
// Failures carry a typed reason in the error details; the session is never
// touched here.
func (e *evaluator) Evaluate(ctx context.Context, input EvaluationInput) (*Evaluation, error) {
	coupon, err := e.repo.FindByCode(ctx, input.Code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rejection(input.Code, ReasonNotFound)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if !coupon.Active {
		return nil, rejection(input.Code, ReasonInactive)
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return nil, rejection(input.Code, ReasonNotStarted)
	}
	if coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt) {
		return nil, rejection(input.Code, ReasonExpired)
	}
	if coupon.MinOrderCents > 0 && input.SubtotalCents < coupon.MinOrderCents {
		return nil, rejection(input.Code, ReasonMinOrder)
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return nil, rejection(input.Code, ReasonUsageLimit)
	}
	if len(coupon.AllowedMethods) > 0 && input.PaymentMethod != nil {
		if !methodAllowed(coupon.AllowedMethods, *input.PaymentMethod) {
			return nil, rejection(input.Code, ReasonMethodBlocked)
		}
	}

	discount := discountFor(coupon, input.SubtotalCents)
	return &Evaluation{Coupon: coupon, DiscountCents: discount}, nil
}

func discountFor(coupon *models.Coupon, subtotalCents int) int {
	var discount int
	switch coupon.Type {
	case enums.CouponTypePercent:
		discount = subtotalCents * coupon.Percent / 100
	case enums.CouponTypeFixed:
		discount = coupon.ValueCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

func methodAllowed(allowed []string, method enums.PaymentMethod) bool {
	for _, m := range allowed {
		if m == method.String() {
			return true
		}
	}
	return false
}

func rejection(code string, reason RejectionReason) error {
	return pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon rejected").
		WithDetails(map[string]any{"code": code, "reason": string(reason)})
}
