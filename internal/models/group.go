package models

// Group represents a reusable set of users that events are created from.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Goa Trip Crew").
	Name string

	// Members is the list of users in this group.
	Members []GroupMember

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}

// GroupMember links a user to a group.
type GroupMember struct {
	UserID   string
	Role     string
	JoinedAt int64

	// User is populated on reads for display purposes.
	User *User
}

// Group member roles.
const (
	GroupRoleAdmin  = "ADMIN"
	GroupRoleMember = "MEMBER"
)
