package helpers

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercatolabs/mercato-backend/pkg/db/models"
)

// GroupCartItemsByVendor groups the provided cart items by their vendor.
func GroupCartItemsByVendor(items []models.CartItem) map[uuid.UUID][]models.CartItem {
	grouped := make(map[uuid.UUID][]models.CartItem, len(items))
	for _, item := range items {
		grouped[item.VendorID] = append(grouped[item.VendorID], item)
	}
	return grouped
}

// SortedVendorIDs returns the vendor keys in ascending order so splitting is
// deterministic run to run.
func SortedVendorIDs(grouped map[uuid.UUID][]models.CartItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// VendorSubtotals computes each vendor's item subtotal in cents.
func VendorSubtotals(grouped map[uuid.UUID][]models.CartItem) map[uuid.UUID]int {
	subtotals := make(map[uuid.UUID]int, len(grouped))
	for vendorID, items := range grouped {
		total := 0
		for _, item := range items {
			total += item.LineSubtotalCents
		}
		subtotals[vendorID] = total
	}
	return subtotals
}

// AllocateProportionally splits an order-level amount across vendors in
// proportion to their subtotal share. Whole cents are assigned by truncation,
// then the remaining cents go to the vendors with the largest fractional
// remainders (ties broken by vendor id order), so the allocations always sum
// back to the input amount exactly.
func AllocateProportionally(amountCents int, vendorIDs []uuid.UUID, subtotals map[uuid.UUID]int) map[uuid.UUID]int {
	allocations := make(map[uuid.UUID]int, len(vendorIDs))
	if amountCents <= 0 || len(vendorIDs) == 0 {
		for _, id := range vendorIDs {
			allocations[id] = 0
		}
		return allocations
	}

	totalSubtotal := 0
	for _, id := range vendorIDs {
		totalSubtotal += subtotals[id]
	}
	if totalSubtotal <= 0 {
		// degenerate split: spread evenly, remainder to the first vendors
		base := amountCents / len(vendorIDs)
		extra := amountCents % len(vendorIDs)
		for i, id := range vendorIDs {
			allocations[id] = base
			if i < extra {
				allocations[id]++
			}
		}
		return allocations
	}

	amount := decimal.NewFromInt(int64(amountCents))
	total := decimal.NewFromInt(int64(totalSubtotal))

	type share struct {
		vendorID  uuid.UUID
		remainder decimal.Decimal
		order     int
	}

	assigned := 0
	shares := make([]share, 0, len(vendorIDs))
	for i, id := range vendorIDs {
		exact := amount.Mul(decimal.NewFromInt(int64(subtotals[id]))).Div(total)
		floor := exact.Floor()
		allocations[id] = int(floor.IntPart())
		assigned += allocations[id]
		shares = append(shares, share{
			vendorID:  id,
			remainder: exact.Sub(floor),
			order:     i,
		})
	}

	sort.Slice(shares, func(i, j int) bool {
		cmp := shares[i].remainder.Cmp(shares[j].remainder)
		if cmp != 0 {
			return cmp > 0
		}
		return shares[i].order < shares[j].order
	})

	for i := 0; i < amountCents-assigned; i++ {
		allocations[shares[i%len(shares)].vendorID]++
	}

	return allocations
}
