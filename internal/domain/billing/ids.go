package billing

import "github.com/google/uuid"

const (
	paymentIDPrefix = "pay_"
	invoiceIDPrefix = "inv_"
)

// NewPaymentID generates a time-ordered payment id. The same id is sent to the
// provider, so it must be unique across retries of the same invoice.
func NewPaymentID() string {
	return paymentIDPrefix + newTimeOrderedID()
}

// NewInvoiceID generates a time-ordered invoice id
func NewInvoiceID() string {
	return invoiceIDPrefix + newTimeOrderedID()
}

func newTimeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
