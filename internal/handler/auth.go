package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/courtside/internal/flags"
	"github.com/dukerupert/courtside/internal/identity"
	"github.com/dukerupert/courtside/internal/middleware"
	"github.com/dukerupert/courtside/internal/model"
	"github.com/dukerupert/courtside/internal/router"
	"github.com/dukerupert/courtside/internal/store"
)

const oauthStateCookie = "courtside_oauth_state"

type AuthHandler struct {
	gateway *identity.Gateway
	flags   *flags.Codec
	render  *Renderer
	secure  bool
	logger  *slog.Logger
}

func NewAuthHandler(gw *identity.Gateway, codec *flags.Codec, rd *Renderer, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		gateway: gw,
		flags:   codec,
		render:  rd,
		secure:  secure,
		logger:  logger,
	}
}

type watchForm struct {
	Code  string
	Error string
}

type authPage struct {
	Tab       string
	Email     string
	Federated bool
	Watch     watchForm
}

func (h *AuthHandler) renderAuth(w http.ResponseWriter, r *http.Request, status int, p authPage) {
	p.Tab = router.Tab(p.Tab)
	p.Federated = h.gateway.FederatedEnabled()
	h.render.page(w, r, status, "auth.html", "Courtside", p)
}

// Landing resolves the visitor's auth state and routes accordingly.
func (h *AuthHandler) Landing(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	res, err := h.gateway.Resolve(r.Context(), middleware.SessionToken(r))
	if err != nil {
		h.logger.Error("resolve auth state", "error", err)
	}
	if res.Session == nil && middleware.SessionToken(r) != "" {
		h.clearSession(w)
	}
	h.finish(w, r, res, authPage{Tab: router.TabSignIn})
}

// AuthPage shows the sign-in, sign-up, or reset panel.
func (h *AuthHandler) AuthPage(w http.ResponseWriter, r *http.Request) {
	h.renderAuth(w, r, http.StatusOK, authPage{Tab: r.URL.Query().Get("tab")})
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	res, err := h.gateway.SignIn(r.Context(), email, r.FormValue("password"))
	if err != nil {
		h.renderAuth(w, r, http.StatusUnprocessableEntity, authPage{Tab: router.TabSignIn, Email: email})
		return
	}
	h.finish(w, r, res, authPage{Tab: router.TabSignIn})
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	res, err := h.gateway.SignUp(r.Context(), email, r.FormValue("password"), r.FormValue("confirm"))
	if err != nil {
		h.renderAuth(w, r, http.StatusUnprocessableEntity, authPage{Tab: router.TabSignUp, Email: email})
		return
	}
	h.finish(w, r, res, authPage{Tab: router.TabSignIn})
}

func (h *AuthHandler) SendReset(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	res, err := h.gateway.SendPasswordReset(r.Context(), email)
	if err != nil {
		h.renderAuth(w, r, http.StatusUnprocessableEntity, authPage{Tab: router.TabReset, Email: email})
		return
	}
	redirect(w, r, res.Location)
}

func (h *AuthHandler) ResetConfirmPage(w http.ResponseWriter, r *http.Request) {
	h.render.page(w, r, http.StatusOK, "reset_confirm.html", "Reset password", map[string]string{
		"Token": r.URL.Query().Get("token"),
	})
}

func (h *AuthHandler) ResetConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	res, err := h.gateway.ConfirmPasswordReset(r.Context(), token, r.FormValue("password"), r.FormValue("confirm"))
	if err != nil {
		h.render.page(w, r, http.StatusUnprocessableEntity, "reset_confirm.html", "Reset password", map[string]string{
			"Token": token,
		})
		return
	}
	redirect(w, r, res.Location)
}

// FederatedStart sends the user to the identity provider.
func (h *AuthHandler) FederatedStart(w http.ResponseWriter, r *http.Request) {
	url, state, err := h.gateway.BeginFederated(r.Context())
	if err != nil {
		redirect(w, r, "/auth?tab=signin")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/federated",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure || r.TLS != nil,
	})
	http.Redirect(w, r, url, http.StatusFound)
}

// FederatedCallback completes the provider round trip.
func (h *AuthHandler) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cb := identity.FederatedCallback{
		State:       q.Get("state"),
		Code:        q.Get("code"),
		Error:       q.Get("error"),
		Description: q.Get("error_description"),
	}
	if cookie, err := r.Cookie(oauthStateCookie); err == nil {
		cb.ExpectedState = cookie.Value
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth/federated",
		MaxAge:   -1,
		HttpOnly: true,
	})

	res, err := h.gateway.CompleteFederated(r.Context(), cb)
	if err != nil {
		redirect(w, r, "/auth?tab=signin")
		return
	}
	h.finish(w, r, res, authPage{Tab: router.TabSignIn})
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	res, err := h.gateway.SignOut(r.Context(), middleware.SessionToken(r))
	if err != nil {
		h.logger.Error("sign out", "error", err)
	}
	h.clearSession(w)
	if res.Flags.Mode.Valid() {
		h.flags.Write(w, res.Flags)
	}
	redirect(w, r, "/auth?tab=signin")
}

// finish applies an auth outcome: session cookie, flags cookie, and either a
// redirect or the sign-in view.
func (h *AuthHandler) finish(w http.ResponseWriter, r *http.Request, res identity.Result, fallback authPage) {
	if res.Session != nil {
		h.setSession(w, r, res.Session)
	}
	if res.Flags.Mode.Valid() {
		if err := h.flags.Write(w, res.Flags); err != nil {
			h.logger.Error("write flags", "error", err)
		}
	}
	if res.Location != "" {
		redirect(w, r, res.Location)
		return
	}
	h.renderAuth(w, r, http.StatusOK, fallback)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, r *http.Request, sess *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(store.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure || r.TLS != nil,
	})
}

func (h *AuthHandler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
