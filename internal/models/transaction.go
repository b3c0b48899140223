package models

import "github.com/shopspring/decimal"

// TransactionStatus is the outcome recorded for a ledger entry.
type TransactionStatus string

const (
	TxPending  TransactionStatus = "PENDING"
	TxSuccess  TransactionStatus = "SUCCESS"
	TxRefunded TransactionStatus = "REFUNDED"
	TxFailed   TransactionStatus = "FAILED"
)

// Transaction is an append-only audit record of money moving in or out of an event.
type Transaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string

	// Amount is signed: positive for contributions, negative for payouts and refunds.
	Amount decimal.Decimal

	UserID     string
	EventID    string
	CategoryID string // empty for event-wide entries such as refunds

	Status TransactionStatus

	// TransactionRef is the external proof identifier, or a locally generated reference.
	TransactionRef string

	// Verified is true when TransactionRef is a proof id returned by the gateway.
	// Placeholder references are unverified until the reconciler replaces them.
	Verified bool

	// IntentID is the gateway payment intent that produced this entry, if any.
	IntentID string

	// CreatedAt is the Unix timestamp when the entry was recorded.
	CreatedAt int64

	// UserName is populated on audit reads.
	UserName string
}
