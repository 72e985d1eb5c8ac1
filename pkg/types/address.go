package types

import "strings"

// Address is the shipping address snapshot attached to sessions and orders.
// It is persisted as an opaque JSON blob.
type Address struct {
	Country    string  `json:"country"`
	City       string  `json:"city"`
	Street     string  `json:"street"`
	Line2      *string `json:"line2,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	State      string  `json:"state,omitempty"`
}

// MissingFields returns the names of the required fields that are empty.
func (a Address) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.Street) == "" {
		missing = append(missing, "street")
	}
	return missing
}

// IsComplete reports whether all required fields are present.
func (a Address) IsComplete() bool {
	return len(a.MissingFields()) == 0
}
