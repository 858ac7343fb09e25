package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DeliveryOption is the shipping service the buyer selected; its cost is shared across vendors.
type DeliveryOption struct {
	Name      string `json:"name"`
	CostCents int64  `json:"costCents"`
	Days      int    `json:"days"`
}

// Value serializes the option to JSON.
func (d DeliveryOption) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan decodes JSON into the option.
func (d *DeliveryOption) Scan(value interface{}) error {
	if value == nil {
		*d = DeliveryOption{}
		return nil
	}
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("delivery option: %w", err)
	}
	return json.Unmarshal(raw, d)
}
