package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorUserID is the system user that receives vendor payouts.
const VendorUserID = "VENDOR"

// User represents a registered user account.
type User struct {
	// ID is the unique identifier for the user (UUID format, or VendorUserID).
	ID string

	// Email is the user's email address (unique).
	Email string

	// DisplayName is the name shown to other participants.
	DisplayName string

	// PasswordHash is the bcrypt hash of the user's password.
	// Empty for users created without local credentials (e.g. the vendor user).
	PasswordHash string

	// VerifiedAt is the Unix timestamp when the email was verified, 0 if never.
	VerifiedAt int64

	// CreatedAt is the Unix timestamp when the user account was created.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp when the user account was last updated.
	UpdatedAt int64
}

// NewUser creates a user with a fresh ID and timestamps.
func NewUser(email, displayName, passwordHash string) *User {
	now := time.Now().Unix()
	return &User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// VendorUser returns the system user used as counterparty for vendor payments.
func VendorUser() *User {
	now := time.Now().Unix()
	return &User{
		ID:          VendorUserID,
		Email:       "vendor@system.local",
		DisplayName: "External Vendor",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
