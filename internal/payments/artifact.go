package payments

import (
	"strings"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Artifact carries the client-supplied authorization evidence for a payment.
// Only references are accepted; raw card data never reaches the service.
type Artifact struct {
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	PaymentID       string `json:"paymentId,omitempty"`
	PayPalOrderID   string `json:"paypalOrderId,omitempty"`
	TxRef           string `json:"txRef,omitempty"`
	CardToken       string `json:"cardToken,omitempty"`
	PaymentToken    string `json:"paymentToken,omitempty"`
}

type artifactField struct {
	name  string
	value func(Artifact) string
}

var (
	fieldPaymentIntentID = artifactField{"paymentIntentId", func(a Artifact) string { return a.PaymentIntentID }}
	fieldPaymentID       = artifactField{"paymentId", func(a Artifact) string { return a.PaymentID }}
	fieldPayPalOrderID   = artifactField{"paypalOrderId", func(a Artifact) string { return a.PayPalOrderID }}
	fieldTxRef           = artifactField{"txRef", func(a Artifact) string { return a.TxRef }}
	fieldCardToken       = artifactField{"cardToken", func(a Artifact) string { return a.CardToken }}
	fieldPaymentToken    = artifactField{"paymentToken", func(a Artifact) string { return a.PaymentToken }}
)

// acceptedFields lists, per method, the artifact fields of which at least one is required.
var acceptedFields = map[enums.PaymentMethod][]artifactField{
	enums.PaymentMethodStripe: {fieldPaymentIntentID, fieldCardToken, fieldPaymentToken},
	enums.PaymentMethodSquare: {fieldPaymentID, fieldPaymentToken},
	enums.PaymentMethodPayPal: {fieldPayPalOrderID, fieldPaymentToken},
	enums.PaymentMethodChapa:  {fieldTxRef},
	enums.PaymentMethodCard:   {fieldCardToken, fieldPaymentToken},
}

// AcceptedFields returns the artifact field names that satisfy method.
// Offline methods return nil.
func AcceptedFields(method enums.PaymentMethod) []string {
	fields := acceptedFields[method]
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.name)
	}
	return names
}

// MissingField returns the first accepted field name when none is present,
// or "" when the artifact satisfies the method.
func (a Artifact) MissingField(method enums.PaymentMethod) string {
	if method.IsOffline() {
		return ""
	}
	fields := acceptedFields[method]
	if len(fields) == 0 {
		return ""
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value(a)) != "" {
			return ""
		}
	}
	return fields[0].name
}

// Reference returns the first present artifact value usable as a payment
// reference for method, in preference order.
func (a Artifact) Reference(method enums.PaymentMethod) string {
	for _, f := range acceptedFields[method] {
		if v := strings.TrimSpace(f.value(a)); v != "" {
			return v
		}
	}
	return ""
}
