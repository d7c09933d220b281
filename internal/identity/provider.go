package identity

import (
	"context"
	"unicode/utf8"

	"github.com/dukerupert/courtside/internal/model"
)

// MinPasswordLength is enforced locally before any provider call.
const MinPasswordLength = 6

// tooShort counts characters, not bytes.
func tooShort(password string) bool {
	return utf8.RuneCountInString(password) < MinPasswordLength
}

// Provider is the credential backend. Failures are reported as *ProviderError.
type Provider interface {
	CreateUser(ctx context.Context, email, password string) (*model.User, error)
	SignIn(ctx context.Context, email, password string) (*model.User, error)
	SendPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, password string) error
}

// Federated is a third-party identity flow: the user is sent to AuthCodeURL
// and comes back with a code to exchange.
type Federated interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*model.User, error)
}
