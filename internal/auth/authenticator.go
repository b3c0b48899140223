// Package auth identifies the caller of an API operation: local password
// accounts hashed with bcrypt and stateless JWT sessions.
package auth

import (
	"context"

	"github.com/mmynk/cooper/internal/models"
)

// Authenticator registers and verifies accounts.
// Implementations other than passwords can be swapped in without touching the services.
type Authenticator interface {
	// Register creates an account. The credential format depends on the implementation.
	Register(ctx context.Context, email, displayName, credential string) (*models.User, error)

	// Authenticate returns the account matching the email and credential.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential checks a credential before it is stored.
	ValidateCredential(credential string) error
}
