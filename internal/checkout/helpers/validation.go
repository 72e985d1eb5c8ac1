package helpers

import (
	"github.com/mercatolabs/mercato-backend/pkg/db/models"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
)

// ValidateCartForCheckout rejects carts that cannot start or confirm a
// session: empty, already consumed, or carrying non-positive lines.
func ValidateCartForCheckout(record *models.CartRecord) error {
	if record == nil {
		return pkgerrors.New(pkgerrors.CodeInvalidCart, "cart not found")
	}
	if len(record.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidCart, "cart contains no items")
	}
	for _, item := range record.Items {
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidCart, "cart item has non-positive quantity").
				WithDetails(map[string]any{"cart_item_id": item.ID})
		}
		if item.UnitPriceCents < 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidCart, "cart item has negative price").
				WithDetails(map[string]any{"cart_item_id": item.ID})
		}
	}
	return nil
}

// ValidateSessionComplete verifies every selection exists before confirm.
func ValidateSessionComplete(session *models.CheckoutSession) error {
	missing := []string{}
	if session.ShippingAddress == nil || !session.ShippingAddress.IsComplete() {
		missing = append(missing, "shipping_address")
	}
	if session.ShippingMethod == nil {
		missing = append(missing, "shipping_method")
	}
	if session.PaymentMethod == nil {
		missing = append(missing, "payment_method")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeIncompleteCheckout, "checkout selections incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}
