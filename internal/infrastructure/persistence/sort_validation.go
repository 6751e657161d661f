package persistence

import (
	"strings"

	"github.com/mockly/billing/internal/domain/billing"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField maps an API sort field to its column through a whitelist.
// Returns defaultColumn if the input is empty or not in the whitelist.
func ValidateSortField(sortField string, columns map[string]string, defaultColumn string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultColumn
	}
	if column, ok := columns[trimmed]; ok {
		return column
	}
	return defaultColumn
}

// PaymentSortColumns maps payment sort fields to columns
var PaymentSortColumns = map[string]string{
	billing.PaymentSortCreatedAt: "created_at",
	billing.PaymentSortPaidAt:    "paid_at",
	billing.PaymentSortAmount:    "amount",
}
