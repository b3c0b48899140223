// Package models defines the core domain models for Cooper.
//
// # Ledger Models
//
// An Event is a shared expense occasion. It owns:
//   - Categories ("baskets"): sub-pools with their own spending limit and member list
//   - Participants: users taking part in the event, whether or not they joined a basket
//
// Users opt in to baskets through CategoryMember rows. Money moves are recorded as
// append-only Transaction rows, which are the source of truth for "has this user paid".
//
// # Payments
//
// Contributions made through the external gateway are tracked by a PaymentJob keyed by
// the gateway's payment intent id. The job records every pipeline state transition so
// callers can poll for progress instead of blocking on the gateway.
//
// # Design Principles
//
//  1. **Derived totals**: Event.TotalPooled is a projection of the basket totals and is
//     rewritten in the same database transaction as any basket change
//  2. **Exact money**: amounts are decimal.Decimal, stored with two decimal places
//  3. **Avoid circular references**: use ID strings instead of pointers for relationships
package models
