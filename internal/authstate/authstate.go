// Package authstate carries authentication-state transitions from the
// identity gateway to the single component that reacts to them.
//
// The state machine is Unknown -> {Authenticated, Anonymous}. Each request
// starts Unknown; the gateway emits exactly one change once the provider has
// answered, and the subscriber decides where the request goes next.
package authstate

import (
	"context"
	"errors"
	"sync"

	"github.com/dukerupert/courtside/internal/flags"
	"github.com/dukerupert/courtside/internal/model"
)

type State int

const (
	Unknown State = iota
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

type Change struct {
	State State
	User  *model.User
	// Token is the login session issued alongside this change, if any.
	Token string
}

func SignedIn(u *model.User, token string) Change {
	return Change{State: Authenticated, User: u, Token: token}
}

func SignedOut() Change {
	return Change{State: Anonymous}
}

// Outcome tells the HTTP layer how to finish the request that caused a change.
type Outcome struct {
	// Location is the redirect target. Empty means render the sign-in view.
	Location string
	// Flags to write to the session-flags cookie. A zero Mode leaves the
	// cookie untouched.
	Flags flags.Flags
}

type Subscriber func(ctx context.Context, ch Change) Outcome

var (
	ErrAlreadySubscribed = errors.New("authstate: subscriber already registered")
	ErrNoSubscriber      = errors.New("authstate: no subscriber registered")
	ErrInvalidChange     = errors.New("authstate: change must be authenticated or anonymous")
)

// Emitter holds one subscriber for the lifetime of the process. There is no
// unsubscribe.
type Emitter struct {
	mu  sync.RWMutex
	sub Subscriber
}

func NewEmitter() *Emitter {
	return &Emitter{}
}

func (e *Emitter) Subscribe(fn Subscriber) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub != nil {
		return ErrAlreadySubscribed
	}
	e.sub = fn
	return nil
}

// Emit delivers ch to the subscriber and returns its outcome.
func (e *Emitter) Emit(ctx context.Context, ch Change) (Outcome, error) {
	if ch.State != Authenticated && ch.State != Anonymous {
		return Outcome{}, ErrInvalidChange
	}
	if ch.State == Authenticated && ch.User == nil {
		return Outcome{}, ErrInvalidChange
	}

	e.mu.RLock()
	sub := e.sub
	e.mu.RUnlock()
	if sub == nil {
		return Outcome{}, ErrNoSubscriber
	}
	return sub(ctx, ch), nil
}
