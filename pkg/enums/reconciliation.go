package enums

// ReconciliationKind names the inconsistency a reconciliation task repairs.
type ReconciliationKind string

const (
	ReconciliationInvoiceLink ReconciliationKind = "invoice_link"
)

// ReconciliationStatus tracks a reconciliation task.
type ReconciliationStatus string

const (
	ReconciliationPending   ReconciliationStatus = "pending"
	ReconciliationResolved  ReconciliationStatus = "resolved"
	ReconciliationAbandoned ReconciliationStatus = "abandoned"
)

// String implements fmt.Stringer.
func (s ReconciliationStatus) String() string {
	return string(s)
}
