package enums

import "fmt"

// VendorOrderStatus tracks the fulfillment pipeline of a vendor order. The
// pipeline is linear; cancellation is the only escape and is allowed from any
// non-terminal status.
type VendorOrderStatus string

const (
	VendorOrderStatusConfirmed      VendorOrderStatus = "confirmed"
	VendorOrderStatusProcessing     VendorOrderStatus = "processing"
	VendorOrderStatusPacked         VendorOrderStatus = "packed"
	VendorOrderStatusShipped        VendorOrderStatus = "shipped"
	VendorOrderStatusOutForDelivery VendorOrderStatus = "out_for_delivery"
	VendorOrderStatusDelivered      VendorOrderStatus = "delivered"
	VendorOrderStatusCancelled      VendorOrderStatus = "cancelled"
)

var validVendorOrderStatuses = []VendorOrderStatus{
	VendorOrderStatusConfirmed,
	VendorOrderStatusProcessing,
	VendorOrderStatusPacked,
	VendorOrderStatusShipped,
	VendorOrderStatusOutForDelivery,
	VendorOrderStatusDelivered,
	VendorOrderStatusCancelled,
}

var vendorOrderPipeline = map[VendorOrderStatus]VendorOrderStatus{
	VendorOrderStatusConfirmed:      VendorOrderStatusProcessing,
	VendorOrderStatusProcessing:     VendorOrderStatusPacked,
	VendorOrderStatusPacked:         VendorOrderStatusShipped,
	VendorOrderStatusShipped:        VendorOrderStatusOutForDelivery,
	VendorOrderStatusOutForDelivery: VendorOrderStatusDelivered,
}

// String implements fmt.Stringer.
func (v VendorOrderStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known VendorOrderStatus.
func (v VendorOrderStatus) IsValid() bool {
	for _, candidate := range validVendorOrderStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (v VendorOrderStatus) IsTerminal() bool {
	return v == VendorOrderStatusDelivered || v == VendorOrderStatusCancelled
}

// CanTransitionTo reports whether target is reachable from v in one step.
func (v VendorOrderStatus) CanTransitionTo(target VendorOrderStatus) bool {
	if target == VendorOrderStatusCancelled {
		return !v.IsTerminal()
	}
	return vendorOrderPipeline[v] == target
}

// ParseVendorOrderStatus converts raw input into a VendorOrderStatus.
func ParseVendorOrderStatus(value string) (VendorOrderStatus, error) {
	for _, candidate := range validVendorOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vendor order status %q", value)
}
