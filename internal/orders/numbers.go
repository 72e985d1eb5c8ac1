package orders

import (
	"crypto/rand"
	"fmt"
	"time"
)

const (
	OrderNumberPrefix       = "ORD"
	VendorOrderNumberPrefix = "VND"

	numberSuffixLen = 6
)

// suffixAlphabet omits 0/O/1/I to keep numbers readable over the phone.
const suffixAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// NewOrderNumber returns a candidate customer-facing order number, e.g.
// ORD-20260831-7F3K9Q. Collisions are possible; callers retry on unique
// violation.
func NewOrderNumber(now time.Time) string {
	return newNumber(OrderNumberPrefix, now)
}

// NewVendorOrderNumber returns a candidate vendor order number, e.g.
// VND-20260831-X2M4TQ.
func NewVendorOrderNumber(now time.Time) string {
	return newNumber(VendorOrderNumberPrefix, now)
}

func newNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102"), randomSuffix(numberSuffixLen))
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand read failure means the process is broken anyway
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(out)
}
