package enums

import "fmt"

// CheckoutStatus is the high-water mark of a checkout session: it only ever
// advances, even when an earlier selection is replaced.
type CheckoutStatus string

const (
	CheckoutStatusPending         CheckoutStatus = "pending"
	CheckoutStatusAddressSelected CheckoutStatus = "address_selected"
	CheckoutStatusShippingSelect  CheckoutStatus = "shipping_selected"
	CheckoutStatusPaymentSelected CheckoutStatus = "payment_selected"
	CheckoutStatusCompleted       CheckoutStatus = "completed"
)

var validCheckoutStatuses = []CheckoutStatus{
	CheckoutStatusPending,
	CheckoutStatusAddressSelected,
	CheckoutStatusShippingSelect,
	CheckoutStatusPaymentSelected,
	CheckoutStatusCompleted,
}

var checkoutStatusRank = map[CheckoutStatus]int{
	CheckoutStatusPending:         0,
	CheckoutStatusAddressSelected: 1,
	CheckoutStatusShippingSelect:  2,
	CheckoutStatusPaymentSelected: 3,
	CheckoutStatusCompleted:       4,
}

// String implements fmt.Stringer.
func (c CheckoutStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckoutStatus.
func (c CheckoutStatus) IsValid() bool {
	for _, candidate := range validCheckoutStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// Rank orders statuses along the checkout progression.
func (c CheckoutStatus) Rank() int {
	return checkoutStatusRank[c]
}

// Advance returns the further of the two statuses.
func (c CheckoutStatus) Advance(target CheckoutStatus) CheckoutStatus {
	if target.Rank() > c.Rank() {
		return target
	}
	return c
}

// ParseCheckoutStatus converts raw input into a CheckoutStatus.
func ParseCheckoutStatus(value string) (CheckoutStatus, error) {
	for _, candidate := range validCheckoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout status %q", value)
}
