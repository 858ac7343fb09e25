package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod describes how a buyer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodSquare       PaymentMethod = "square"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodChapa        PaymentMethod = "chapa"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodTelebirr     PaymentMethod = "telebirr"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodStripe,
	PaymentMethodSquare,
	PaymentMethodPayPal,
	PaymentMethodChapa,
	PaymentMethodCard,
	PaymentMethodCOD,
	PaymentMethodBankTransfer,
	PaymentMethodTelebirr,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsOffline reports whether the method settles outside the checkout request
// and therefore carries no authorization artifact.
func (p PaymentMethod) IsOffline() bool {
	switch p {
	case PaymentMethodCOD, PaymentMethodBankTransfer, PaymentMethodTelebirr:
		return true
	default:
		return false
	}
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
