package auth

import (
	"context"

	"github.com/dukerupert/courtside/internal/model"
)

type contextKey struct{}

type AuthContext struct {
	UID         string
	Email       string
	DisplayName string
	Provider    string
	SessionID   int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// FromSession builds the request identity for a login session.
func FromSession(s *model.Session) AuthContext {
	return AuthContext{
		UID:         s.UID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		Provider:    s.Provider,
		SessionID:   s.ID,
	}
}

func UID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UID
}

func IsAuthenticated(ctx context.Context) bool {
	return UID(ctx) != ""
}

// User returns the signed-in user, or nil.
func User(ctx context.Context) *model.User {
	ac, ok := FromContext(ctx)
	if !ok || ac.UID == "" {
		return nil
	}
	return &model.User{UID: ac.UID, Email: ac.Email, DisplayName: ac.DisplayName, Provider: ac.Provider}
}
