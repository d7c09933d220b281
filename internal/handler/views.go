package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/courtside/internal/auth"
	"github.com/dukerupert/courtside/internal/flags"
	"github.com/dukerupert/courtside/internal/game"
	"github.com/dukerupert/courtside/internal/model"
	"github.com/dukerupert/courtside/internal/notify"
	"github.com/dukerupert/courtside/internal/router"
	"github.com/dukerupert/courtside/internal/sports"
)

// ProfileReader loads a user's profile.
type ProfileReader interface {
	Get(uid string) (*model.Profile, error)
}

// OwnedGames lists the games a user has created.
type OwnedGames interface {
	ListByOwner(uid string) ([]model.Game, error)
}

type ViewHandler struct {
	router   *router.Router
	flags    *flags.Codec
	catalog  *sports.Catalog
	profiles ProfileReader
	games    OwnedGames
	render   *Renderer
	logger   *slog.Logger
}

func NewViewHandler(rt *router.Router, codec *flags.Codec, catalog *sports.Catalog, profiles ProfileReader, games OwnedGames, rd *Renderer, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{
		router:   rt,
		flags:    codec,
		catalog:  catalog,
		profiles: profiles,
		games:    games,
		render:   rd,
		logger:   logger,
	}
}

// FreeHost enters host mode without an account.
func (h *ViewHandler) FreeHost(w http.ResponseWriter, r *http.Request) {
	out := h.router.FreeHost(r.Context())
	if err := h.flags.Write(w, out.Flags); err != nil {
		h.logger.Error("write flags", "error", err)
	}
	redirect(w, r, out.Location)
}

// Watch validates a join code and sends the spectator to the game.
func (h *ViewHandler) Watch(w http.ResponseWriter, r *http.Request) {
	res, err := h.router.Watch(r.Context(), r.FormValue("code"))
	if err == nil {
		redirect(w, r, res.Location)
		return
	}

	form := watchForm{Code: res.Code, Error: res.InlineError}
	if isHTMX(r) {
		h.render.partial(w, r, http.StatusOK, "auth.html", "watch-form", form)
		return
	}
	h.render.page(w, r, http.StatusUnprocessableEntity, "auth.html", "Courtside", authPage{
		Tab:   router.TabSignIn,
		Watch: form,
	})
}

type sportsPage struct {
	Mode    string
	Sports  []sports.Sport
	Profile *model.Profile
}

// Sports is the destination after every entry path. Watch mode forwards to
// the viewer; host and free modes list the catalog.
func (h *ViewHandler) Sports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("mode")
	f := h.flags.Read(r)

	switch mode {
	case "watch":
		code := game.SanitizeCode(q.Get("code"))
		if !game.ValidCode(code) {
			notify.Notify(r.Context(), router.MsgInvalidCode, notify.LevelWarning)
			redirect(w, r, "/")
			return
		}
		redirect(w, r, "/watch/"+code)
		return
	case string(flags.ModeHost):
		if !auth.IsAuthenticated(r.Context()) {
			redirect(w, r, "/auth?tab=signin")
			return
		}
	case string(flags.ModeFree):
		if !f.IsHost {
			redirect(w, r, "/")
			return
		}
	default:
		redirect(w, r, "/")
		return
	}

	page := sportsPage{Mode: mode, Sports: h.catalog.Sports}
	if uid := auth.UID(r.Context()); uid != "" && mode == string(flags.ModeHost) {
		p, err := h.profiles.Get(uid)
		if err != nil {
			h.logger.Error("load profile", "uid", uid, "error", err)
		}
		page.Profile = p
	}
	h.render.page(w, r, http.StatusOK, "sports.html", "Choose a sport", page)
}

// Profile returns the signed-in user's profile and games as JSON.
func (h *ViewHandler) Profile(w http.ResponseWriter, r *http.Request) {
	uid := auth.UID(r.Context())
	p, err := h.profiles.Get(uid)
	if err != nil {
		h.logger.Error("load profile", "uid", uid, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "profile not found"})
		return
	}

	games, err := h.games.ListByOwner(uid)
	if err != nil {
		h.logger.Error("list games", "uid", uid, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list games"})
		return
	}
	if games == nil {
		games = []model.Game{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": p,
		"games":   games,
	})
}
