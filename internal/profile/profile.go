// Package profile creates the application-side record for a user the first
// time they are seen signed in.
package profile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/courtside/internal/model"
)

// Store is the subset of the profile store the bootstrapper writes through.
type Store interface {
	Get(uid string) (*model.Profile, error)
	CreateIfAbsent(p *model.Profile) (bool, error)
	AddHostedGame(uid, code string) error
}

type Bootstrapper struct {
	store  Store
	logger *slog.Logger
}

func NewBootstrapper(s Store, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{store: s, logger: logger}
}

// EnsureProfile returns the profile for u, creating it if this is the first
// authenticated session for the UID. An existing profile is never written.
func (b *Bootstrapper) EnsureProfile(ctx context.Context, u *model.User) (*model.Profile, error) {
	if u == nil || u.UID == "" {
		return nil, fmt.Errorf("ensure profile: missing uid")
	}

	p, err := b.store.Get(u.UID)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if p != nil {
		return p, nil
	}

	p = &model.Profile{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.Name(),
		HostedGames: []string{},
	}
	created, err := b.store.CreateIfAbsent(p)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	if created {
		b.logger.InfoContext(ctx, "profile created", "uid", u.UID)
		return p, nil
	}

	// Lost a race with a concurrent first sign-in; the other writer's row wins.
	existing, err := b.store.Get(u.UID)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if existing == nil {
		return p, nil
	}
	return existing, nil
}

// AddHostedGame records that uid hosts the game with code.
func (b *Bootstrapper) AddHostedGame(ctx context.Context, uid, code string) error {
	if err := b.store.AddHostedGame(uid, code); err != nil {
		b.logger.ErrorContext(ctx, "add hosted game", "uid", uid, "code", code, "error", err)
		return err
	}
	return nil
}
