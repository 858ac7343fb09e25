package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ShippingAddress is the delivery destination captured at checkout.
type ShippingAddress struct {
	FullName   string  `json:"fullName" validate:"required"`
	Line1      string  `json:"line1,omitempty"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postalCode,omitempty"`
	Country    string  `json:"country" validate:"required"`
	Phone      string  `json:"phone,omitempty"`
}

// MissingField returns the first required field that is blank, or "".
func (a ShippingAddress) MissingField() string {
	switch {
	case strings.TrimSpace(a.FullName) == "":
		return "shippingAddress.fullName"
	case strings.TrimSpace(a.City) == "":
		return "shippingAddress.city"
	case strings.TrimSpace(a.Country) == "":
		return "shippingAddress.country"
	default:
		return ""
	}
}

// Value serializes the address to JSON.
func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan decodes JSON into the address.
func (a *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("shipping address: %w", err)
	}
	return json.Unmarshal(raw, a)
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}
