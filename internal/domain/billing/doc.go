// Package billing provides the domain model for recurring subscription billing.
//
// This package implements the billing bounded context, which is responsible for:
//   - The Subscription state machine and billing period math
//   - Invoices and Payments created for each billing period
//   - Stored payment methods (provider billing keys)
//   - Outbox events that hand schedule registration to a background processor
//
// Key Aggregates:
//   - Subscription: PENDING -> ACTIVE -> {PAST_DUE, CANCELED}, PAST_DUE -> {ACTIVE, EXPIRED}
//   - Invoice / Payment: one pair per billing period, mutated only by charge results
//   - OutboxEvent: durable work item with retry metadata, immutable payload
//
// The payment provider is reached through the Gateway port. Its responses are
// modelled as plain structs, with the payment method as a closed set of variants
// (card, easy pay, mobile, unknown).
package billing
