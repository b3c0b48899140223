// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/models"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a unique field (such as a user's email) is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotParticipant is returned when a user acts on an event they are not part of.
	ErrNotParticipant = errors.New("user is not a participant of the event")

	// ErrInsufficientFunds is returned when a basket cannot cover a payout.
	ErrInsufficientFunds = errors.New("insufficient funds in basket")

	// ErrEventClosed is returned for writes against a settled event.
	ErrEventClosed = errors.New("event is closed")

	// ErrSettlementInProgress is returned when another settlement holds the event.
	ErrSettlementInProgress = errors.New("settlement already in progress")
)

// BasketDebit is an amount taken out of a basket by a settlement.
type BasketDebit struct {
	CategoryID string
	Amount     decimal.Decimal
}

// Store defines the ledger persistence operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service or pipeline layers.
//
// Every method that changes basket totals also recomputes the owning event's
// total in the same database transaction.
type Store interface {
	UserStore
	GroupStore
	EventStore
	LedgerStore
	JobStore
	ReceiptStore

	// Close releases any resources held by the store.
	Close() error
}

// UserStore manages accounts.
type UserStore interface {
	// CreateUser inserts a new user. Returns ErrAlreadyExists if the email is taken.
	CreateUser(ctx context.Context, user *models.User) error

	// EnsureUser inserts the user unless a user with the same ID exists.
	EnsureUser(ctx context.Context, user *models.User) error

	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// GetUsersByIDs returns the users that exist, keyed by ID.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// GroupStore manages groups and their membership.
type GroupStore interface {
	// CreateGroup persists a group with its initial members. The ID is assigned by the store.
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// AddGroupMembers adds members, ignoring users that already belong to the group.
	AddGroupMembers(ctx context.Context, groupID string, members []models.GroupMember) error

	// ListGroupUsers returns the group's members with their user records, oldest first.
	ListGroupUsers(ctx context.Context, groupID string) ([]models.GroupMember, error)
}

// EventStore manages events, their baskets and memberships.
type EventStore interface {
	// CreateEvent persists the event with its participants and baskets in one transaction.
	CreateEvent(ctx context.Context, event *models.Event) error

	// GetEvent loads an event with its baskets, basket members and participants.
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)

	// ListEventsForUser returns the events the user participates in, newest first.
	ListEventsForUser(ctx context.Context, userID string) ([]*models.Event, error)

	// DeleteEvent removes the event and everything it owns.
	DeleteEvent(ctx context.Context, eventID string) error

	// JoinCategory adds the user to a basket. Joining twice is a no-op.
	// Returns ErrNotParticipant if the user is not part of the basket's event.
	JoinCategory(ctx context.Context, eventID, categoryID, userID string) error

	// LeaveCategory removes the user from a basket. Leaving a basket the user
	// never joined is a no-op.
	LeaveCategory(ctx context.Context, eventID, categoryID, userID string) error
}

// LedgerStore records money movements.
type LedgerStore interface {
	// RecordContribution appends a positive SUCCESS transaction and credits the basket.
	// When the transaction carries an intent ID that was already recorded, nothing is
	// written and recorded is false.
	RecordContribution(ctx context.Context, tx *models.Transaction) (recorded bool, err error)

	// PayVendor debits the basket, appends a negative SUCCESS transaction for the
	// vendor user and returns the updated basket.
	PayVendor(ctx context.Context, eventID, categoryID string, amount decimal.Decimal, ref string) (*models.Category, error)

	// AcquireSettlementLock marks the event as settling. A lock older than
	// staleAfter is taken over.
	AcquireSettlementLock(ctx context.Context, eventID string, staleAfter time.Duration) error

	// ReleaseSettlementLock reopens an event left in the settling state.
	ReleaseSettlementLock(ctx context.Context, eventID string) error

	// ApplyRefunds appends the refund transactions, debits the baskets they are
	// paid from and closes the event in one transaction. The event must hold the
	// settlement lock, and the debits must add up to the refunds.
	ApplyRefunds(ctx context.Context, eventID string, refunds []models.Transaction, debits []BasketDebit) error

	// ListTransactions returns the event's transactions with user names, newest first.
	ListTransactions(ctx context.Context, eventID string) ([]models.Transaction, error)

	// ListUnverifiedTransactions returns gateway-backed transactions still
	// carrying a placeholder reference, oldest first.
	ListUnverifiedTransactions(ctx context.Context, limit int) ([]models.Transaction, error)

	// PromoteTransactionRef replaces a placeholder reference with a verified proof ID.
	PromoteTransactionRef(ctx context.Context, transactionID, ref string) error
}

// JobStore persists payment pipeline jobs.
type JobStore interface {
	// CreateJob inserts the job. If a job for the same intent exists, nothing is
	// written and created is false.
	CreateJob(ctx context.Context, job *models.PaymentJob) (created bool, err error)
	GetJob(ctx context.Context, intentID string) (*models.PaymentJob, error)
	UpdateJob(ctx context.Context, job *models.PaymentJob) error

	// ListActiveJobs returns jobs that have not reached a terminal state, oldest first.
	ListActiveJobs(ctx context.Context) ([]*models.PaymentJob, error)
}

// ReceiptStore keeps the canonical receipts referenced by delivery proofs.
type ReceiptStore interface {
	SaveReceipt(ctx context.Context, intentID string, body []byte) error
	GetReceipt(ctx context.Context, intentID string) ([]byte, error)
}
