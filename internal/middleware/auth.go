package middleware

import (
	"net/http"

	"github.com/dukerupert/courtside/internal/auth"
	"github.com/dukerupert/courtside/internal/model"
)

const SessionCookieName = "courtside_session"

const signInPath = "/auth?tab=signin"

// SessionLookup resolves a session cookie to a login session.
type SessionLookup interface {
	GetByToken(token string) (*model.Session, error)
}

// SessionToken returns the session cookie value, or "".
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// LoadSession populates AuthContext when the request carries a valid session
// cookie. Requests without one pass through unauthenticated.
func LoadSession(sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessions.GetByToken(token)
			if err != nil || sess == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.FromSession(sess))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without an authenticated session. It expects
// LoadSession to have run first.
// HTMX-aware: returns HX-Redirect header instead of 303 redirect for HTMX requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAuthenticated(r.Context()) {
			redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", signInPath)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, signInPath, http.StatusSeeOther)
}
