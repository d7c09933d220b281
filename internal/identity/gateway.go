package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/courtside/internal/authstate"
	"github.com/dukerupert/courtside/internal/model"
	"github.com/dukerupert/courtside/internal/notify"
)

// Sessions persists login sessions issued after a successful sign-in.
type Sessions interface {
	Create(u *model.User) (*model.Session, error)
	GetByToken(token string) (*model.Session, error)
	Delete(id int64) error
}

// Result is what the HTTP layer needs to finish an auth request.
type Result struct {
	authstate.Outcome
	// Session is the login session to set as a cookie. Nil when signed out.
	Session *model.Session
}

// FederatedCallback carries the query parameters of the provider redirect.
type FederatedCallback struct {
	State         string
	ExpectedState string
	Code          string
	Error         string
	Description   string
}

// Gateway wraps the credential provider and turns every successful auth
// operation into exactly one auth-state change.
type Gateway struct {
	provider  Provider
	federated Federated
	sessions  Sessions
	emitter   *authstate.Emitter
	logger    *slog.Logger
}

func NewGateway(p Provider, f Federated, sessions Sessions, emitter *authstate.Emitter, logger *slog.Logger) *Gateway {
	return &Gateway{
		provider:  p,
		federated: f,
		sessions:  sessions,
		emitter:   emitter,
		logger:    logger,
	}
}

// OnAuthStateChange registers the single subscriber. It fails if one is
// already registered.
func (g *Gateway) OnAuthStateChange(fn authstate.Subscriber) error {
	return g.emitter.Subscribe(fn)
}

// FederatedEnabled reports whether a federated provider is configured.
func (g *Gateway) FederatedEnabled() bool {
	return g.federated != nil
}

func (g *Gateway) validation(ctx context.Context, msg string) error {
	notify.Notify(ctx, msg, notify.LevelWarning)
	return &ValidationError{Message: msg}
}

func (g *Gateway) SignUp(ctx context.Context, email, password, confirm string) (Result, error) {
	email = strings.TrimSpace(email)
	if tooShort(password) {
		return Result{}, g.validation(ctx, msgPasswordLength)
	}
	if password != confirm {
		return Result{}, g.validation(ctx, msgPasswordMatch)
	}

	u, err := g.provider.CreateUser(ctx, email, password)
	if err != nil {
		g.logger.Info("sign up failed", "code", CodeOf(err))
		notify.Notify(ctx, SignUpMessage(err), notify.LevelError)
		return Result{}, err
	}

	notify.Notify(ctx, "Account created", notify.LevelSuccess)
	return g.signedIn(ctx, u)
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (Result, error) {
	u, err := g.provider.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		g.logger.Info("sign in failed", "code", CodeOf(err))
		notify.Notify(ctx, SignInMessage(err), notify.LevelError)
		return Result{}, err
	}

	notify.Notify(ctx, "Welcome back!", notify.LevelSuccess)
	return g.signedIn(ctx, u)
}

// BeginFederated returns the provider URL to send the user to and the state
// value that must come back on the callback.
func (g *Gateway) BeginFederated(ctx context.Context) (string, string, error) {
	if g.federated == nil {
		err := providerErr(CodeNotConfigured, "Federated sign-in is not enabled.")
		notify.Notify(ctx, err.Error(), notify.LevelError)
		return "", "", err
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(b)
	return g.federated.AuthCodeURL(state), state, nil
}

// CompleteFederated finishes the flow started by BeginFederated. A user who
// cancelled at the provider gets no notification; any other failure gets
// exactly one.
func (g *Gateway) CompleteFederated(ctx context.Context, cb FederatedCallback) (Result, error) {
	u, err := g.exchangeFederated(ctx, cb)
	if err != nil {
		if CodeOf(err) == CodePopupClosed {
			g.logger.Debug("federated sign-in cancelled")
			return Result{}, err
		}
		g.logger.Info("federated sign-in failed", "code", CodeOf(err), "error", err)
		notify.Notify(ctx, err.Error(), notify.LevelError)
		return Result{}, err
	}

	notify.Notify(ctx, fmt.Sprintf("Welcome, %s!", u.Name()), notify.LevelSuccess)
	return g.signedIn(ctx, u)
}

func (g *Gateway) exchangeFederated(ctx context.Context, cb FederatedCallback) (*model.User, error) {
	if g.federated == nil {
		return nil, providerErr(CodeNotConfigured, "Federated sign-in is not enabled.")
	}
	if cb.Error == "access_denied" || cb.ExpectedState == "" {
		return nil, providerErr(CodePopupClosed, "The sign-in window was closed before finishing.")
	}
	if cb.Error != "" {
		msg := cb.Description
		if msg == "" {
			msg = cb.Error
		}
		return nil, providerErr(CodeFederatedFailed, msg)
	}
	if cb.State != cb.ExpectedState {
		return nil, providerErr(CodeInvalidState, "The sign-in request expired. Please try again.")
	}
	if cb.Code == "" {
		return nil, providerErr(CodeFederatedFailed, "The identity provider did not return an authorization code.")
	}
	return g.federated.Exchange(ctx, cb.Code)
}

// SendPasswordReset requests a reset email. On success the user is sent back
// to the sign-in view.
func (g *Gateway) SendPasswordReset(ctx context.Context, email string) (Result, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Result{}, g.validation(ctx, msgEmailRequired)
	}

	if err := g.provider.SendPasswordReset(ctx, email); err != nil {
		g.logger.Info("password reset failed", "code", CodeOf(err))
		notify.Notify(ctx, err.Error(), notify.LevelError)
		return Result{}, err
	}

	notify.Notify(ctx, "Password reset email sent. Check your inbox.", notify.LevelSuccess)
	return Result{Outcome: authstate.Outcome{Location: "/auth?tab=signin"}}, nil
}

func (g *Gateway) ConfirmPasswordReset(ctx context.Context, token, password, confirm string) (Result, error) {
	if tooShort(password) {
		return Result{}, g.validation(ctx, msgPasswordLength)
	}
	if password != confirm {
		return Result{}, g.validation(ctx, msgPasswordMatch)
	}

	if err := g.provider.ConfirmPasswordReset(ctx, token, password); err != nil {
		g.logger.Info("password reset confirm failed", "code", CodeOf(err))
		notify.Notify(ctx, err.Error(), notify.LevelError)
		return Result{}, err
	}

	notify.Notify(ctx, "Password updated. Please sign in.", notify.LevelSuccess)
	return Result{Outcome: authstate.Outcome{Location: "/auth?tab=signin"}}, nil
}

// SignOut ends the session identified by token, if any, and emits Anonymous.
func (g *Gateway) SignOut(ctx context.Context, token string) (Result, error) {
	if token != "" {
		sess, err := g.sessions.GetByToken(token)
		if err != nil {
			g.logger.Error("sign out lookup", "error", err)
		} else if sess != nil {
			if err := g.sessions.Delete(sess.ID); err != nil {
				g.logger.Error("delete session", "error", err)
			}
		}
	}

	notify.Notify(ctx, "Signed out", notify.LevelInfo)
	return g.emit(ctx, authstate.SignedOut(), nil)
}

// Resolve observes the provider state for a page load: a valid session token
// emits Authenticated, anything else emits Anonymous.
func (g *Gateway) Resolve(ctx context.Context, token string) (Result, error) {
	if token == "" {
		return g.emit(ctx, authstate.SignedOut(), nil)
	}

	sess, err := g.sessions.GetByToken(token)
	if err != nil {
		g.logger.Error("resolve session", "error", err)
		return g.emit(ctx, authstate.SignedOut(), nil)
	}
	if sess == nil {
		return g.emit(ctx, authstate.SignedOut(), nil)
	}
	return g.emit(ctx, authstate.SignedIn(sess.User(), sess.Token), sess)
}

func (g *Gateway) signedIn(ctx context.Context, u *model.User) (Result, error) {
	sess, err := g.sessions.Create(u)
	if err != nil {
		g.logger.Error("create session", "uid", u.UID, "error", err)
		notify.Notify(ctx, "Could not start your session. Please try again.", notify.LevelError)
		return Result{}, fmt.Errorf("create session: %w", err)
	}
	res, err := g.emit(ctx, authstate.SignedIn(u, sess.Token), sess)
	if err != nil {
		// Nobody saw the sign-in, so the token must not outlive this call.
		if derr := g.sessions.Delete(sess.ID); derr != nil {
			g.logger.Error("revoke unannounced session", "uid", u.UID, "error", derr)
		}
		return Result{}, err
	}
	return res, nil
}

func (g *Gateway) emit(ctx context.Context, ch authstate.Change, sess *model.Session) (Result, error) {
	out, err := g.emitter.Emit(ctx, ch)
	if err != nil {
		g.logger.Error("emit auth state", "state", ch.State, "error", err)
		return Result{Session: sess}, fmt.Errorf("emit %s: %w", ch.State, err)
	}
	return Result{Outcome: out, Session: sess}, nil
}

// IsCancelled reports whether err is a user-cancelled federated sign-in.
func IsCancelled(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodePopupClosed
}
