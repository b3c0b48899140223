package models

import "github.com/shopspring/decimal"

// EventStatus tracks where an event is in its settlement lifecycle.
type EventStatus string

const (
	// EventOpen accepts opt-ins, contributions and vendor payments.
	EventOpen EventStatus = "OPEN"
	// EventSettling means a settlement run holds the event's lock.
	EventSettling EventStatus = "SETTLING"
	// EventClosed means leftover balances have been refunded.
	EventClosed EventStatus = "CLOSED"
)

// RuleType controls how a basket is split among its members.
type RuleType string

// RuleEqualSplit divides a basket evenly by member count. It is the only supported rule.
const RuleEqualSplit RuleType = "EQUAL_SPLIT"

// Participant roles.
const (
	RoleOrganizer   = "ORGANIZER"
	RoleParticipant = "PARTICIPANT"
)

// Event represents a shared expense occasion with participants and baskets.
type Event struct {
	// ID is the unique identifier for the event (UUID format).
	ID string

	// Name is the human-readable event name (e.g., "Goa Trip").
	Name string

	// GroupID optionally links the event to the group it was created from.
	GroupID string

	// TotalPooled is the sum of all basket totals.
	// It is never written on its own: every basket update recomputes it in the same
	// database transaction.
	TotalPooled decimal.Decimal

	// Status is the settlement lifecycle state.
	Status EventStatus

	// SettlingSince is the Unix timestamp the settlement lock was taken, 0 if unlocked.
	SettlingSince int64

	// CreatedBy is the user ID of the organizer.
	CreatedBy string

	// Categories are the event's baskets.
	Categories []Category

	// Participants are the users taking part in the event.
	Participants []Participant

	// CreatedAt is the Unix timestamp when the event was created.
	CreatedAt int64
}

// Category is an expense basket: a sub-pool with its own spending target and members.
type Category struct {
	ID      string
	EventID string
	Name    string

	// SpendingLimit is the target amount for the basket. Nil when no target was set.
	SpendingLimit *decimal.Decimal

	RuleType    RuleType
	TotalPooled decimal.Decimal

	// Members are the users who opted in to this basket.
	Members []CategoryMember
}

// CategoryMember records a user's opt-in to a basket.
type CategoryMember struct {
	UserID     string
	CategoryID string
	JoinedAt   int64
}

// Participant is a user's membership in an event, regardless of basket opt-in.
type Participant struct {
	EventID  string
	UserID   string
	Role     string
	JoinedAt int64

	// User is populated on reads for display purposes.
	User *User
}

// Category returns the basket with the given ID, or nil.
func (e *Event) Category(id string) *Category {
	for i := range e.Categories {
		if e.Categories[i].ID == id {
			return &e.Categories[i]
		}
	}
	return nil
}

// Participant returns the participant entry for userID, or nil.
func (e *Event) Participant(userID string) *Participant {
	for i := range e.Participants {
		if e.Participants[i].UserID == userID {
			return &e.Participants[i]
		}
	}
	return nil
}

// IsParticipant reports whether userID takes part in the event.
func (e *Event) IsParticipant(userID string) bool {
	return e.Participant(userID) != nil
}

// HasMember reports whether userID opted in to the basket.
func (c *Category) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
