package orders

import (
	"strings"
	"testing"
	"time"
)

func TestNewOrderNumberFormat(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)

	number := NewOrderNumber(now)
	parts := strings.Split(number, "-")
	if len(parts) != 3 {
		t.Fatalf("unexpected shape %q", number)
	}
	if parts[0] != OrderNumberPrefix {
		t.Fatalf("unexpected prefix %q", parts[0])
	}
	if parts[1] != "20260831" {
		t.Fatalf("unexpected date segment %q", parts[1])
	}
	if len(parts[2]) != numberSuffixLen {
		t.Fatalf("unexpected suffix length %d", len(parts[2]))
	}
	for _, r := range parts[2] {
		if !strings.ContainsRune(suffixAlphabet, r) {
			t.Fatalf("suffix char %q outside alphabet", r)
		}
	}
}

func TestNewVendorOrderNumberPrefix(t *testing.T) {
	t.Parallel()
	number := NewVendorOrderNumber(time.Now())
	if !strings.HasPrefix(number, VendorOrderNumberPrefix+"-") {
		t.Fatalf("unexpected number %q", number)
	}
}

func TestNumberSuffixVaries(t *testing.T) {
	t.Parallel()
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		seen[NewOrderNumber(now)] = true
	}
	if len(seen) < 2 {
		t.Fatal("suffixes should vary between calls")
	}
}
