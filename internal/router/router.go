// Package router decides where a request goes next: after an auth-state
// change, on free-host entry, and on watch-by-code.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/dukerupert/courtside/internal/authstate"
	"github.com/dukerupert/courtside/internal/flags"
	"github.com/dukerupert/courtside/internal/game"
	"github.com/dukerupert/courtside/internal/model"
	"github.com/dukerupert/courtside/internal/notify"
)

var (
	ErrInvalidCode  = errors.New("invalid game code")
	ErrGameNotFound = errors.New("game not found")
)

const (
	MsgInvalidCode  = "Please enter a valid 6-digit game code"
	MsgGameNotFound = "Game not found"
	MsgProfileSync  = "Could not sync profile"
)

// Profiles bootstraps the profile of a newly authenticated user.
type Profiles interface {
	EnsureProfile(ctx context.Context, u *model.User) (*model.Profile, error)
}

// Games answers whether a game code exists.
type Games interface {
	GameExists(ctx context.Context, code string) *model.Game
}

type Router struct {
	profiles Profiles
	games    Games
	logger   *slog.Logger
}

func New(profiles Profiles, games Games, logger *slog.Logger) *Router {
	return &Router{profiles: profiles, games: games, logger: logger}
}

// SportsURL is the sport-selection destination for the given mode.
func SportsURL(mode, code string) string {
	q := url.Values{}
	q.Set("mode", mode)
	if code != "" {
		q.Set("code", code)
	}
	return "/sports?" + q.Encode()
}

// HandleAuthChange is the auth-state subscriber. It is registered once at
// startup.
func (r *Router) HandleAuthChange(ctx context.Context, ch authstate.Change) authstate.Outcome {
	if ch.State != authstate.Authenticated {
		return authstate.Outcome{Flags: flags.Guest}
	}

	if _, err := r.profiles.EnsureProfile(ctx, ch.User); err != nil {
		r.logger.ErrorContext(ctx, "profile sync", "uid", ch.User.UID, "error", err)
		notify.Notify(ctx, MsgProfileSync, notify.LevelError)
	}

	return authstate.Outcome{
		Location: SportsURL(string(flags.ModeHost), ""),
		Flags:    flags.Flags{IsHost: true, Mode: flags.ModeHost},
	}
}

// FreeHost skips authentication and enters host mode without an account.
func (r *Router) FreeHost(ctx context.Context) authstate.Outcome {
	return authstate.Outcome{
		Location: SportsURL(string(flags.ModeFree), ""),
		Flags:    flags.Flags{IsHost: true, Mode: flags.ModeFree},
	}
}

type WatchResult struct {
	authstate.Outcome
	// Code is the sanitized input, echoed back into the form on failure.
	Code string
	// InlineError is shown next to the code field.
	InlineError string
}

// Watch validates a spectator's join code and looks the game up.
func (r *Router) Watch(ctx context.Context, input string) (WatchResult, error) {
	code := game.SanitizeCode(input)
	if !game.ValidCode(code) {
		notify.Notify(ctx, MsgInvalidCode, notify.LevelWarning)
		return WatchResult{Code: code, InlineError: MsgInvalidCode}, ErrInvalidCode
	}

	g := r.games.GameExists(ctx, code)
	if g == nil {
		notify.Notify(ctx, MsgGameNotFound, notify.LevelError)
		return WatchResult{Code: code, InlineError: MsgGameNotFound}, ErrGameNotFound
	}

	return WatchResult{
		Outcome: authstate.Outcome{Location: SportsURL("watch", code)},
		Code:    code,
	}, nil
}

const (
	TabSignIn = "signin"
	TabSignUp = "signup"
	TabReset  = "reset"
)

// Tab normalizes the ?tab= value. Exactly one panel is visible; anything
// unrecognized shows sign-in.
func Tab(s string) string {
	switch s {
	case TabSignUp, TabReset:
		return s
	}
	return TabSignIn
}
