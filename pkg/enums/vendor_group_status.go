package enums

import "fmt"

// VendorGroupStatus tracks one vendor's slice of an order.
type VendorGroupStatus string

const (
	VendorGroupStatusPending   VendorGroupStatus = "pending"
	VendorGroupStatusFulfilled VendorGroupStatus = "fulfilled"
	VendorGroupStatusCancelled VendorGroupStatus = "cancelled"
)

func (v VendorGroupStatus) String() string { return string(v) }

func (v VendorGroupStatus) IsValid() bool {
	switch v {
	case VendorGroupStatusPending, VendorGroupStatusFulfilled, VendorGroupStatusCancelled:
		return true
	}
	return false
}

// Settled reports whether the group can no longer change.
func (v VendorGroupStatus) Settled() bool {
	return v == VendorGroupStatusFulfilled || v == VendorGroupStatusCancelled
}

// ParseVendorGroupStatus treats an empty value as pending; rows written
// before the column existed carry no status.
func ParseVendorGroupStatus(value string) (VendorGroupStatus, error) {
	if value == "" {
		return VendorGroupStatusPending, nil
	}
	status := VendorGroupStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid vendor group status %q", value)
	}
	return status, nil
}
