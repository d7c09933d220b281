package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/dukerupert/courtside/internal/auth"
	"github.com/dukerupert/courtside/internal/flags"
	"github.com/dukerupert/courtside/internal/game"
	"github.com/dukerupert/courtside/internal/model"
	"github.com/dukerupert/courtside/internal/notify"
	"github.com/dukerupert/courtside/internal/sports"
	ws "github.com/dukerupert/courtside/internal/websocket"
)

const (
	hostCookiePrefix = "courtside_host_"
	hostKeyHeader    = "X-Host-Key"
	maxStateBytes    = 64 << 10
	qrSize           = 320
)

// GameStore is what the host control surface needs from storage.
type GameStore interface {
	Create(sport, ownerUID string) (*model.Game, error)
	GetByCode(code string) (*model.Game, error)
	UpdateState(code string, state json.RawMessage) (*model.Game, error)
	Delete(code string) error
}

// HostedGames records games against the creator's profile.
type HostedGames interface {
	AddHostedGame(ctx context.Context, uid, code string) error
}

// Broadcaster delivers a state update to spectators.
type Broadcaster interface {
	Broadcast(msg ws.Message)
}

// LinkMailer sends spectator links.
type LinkMailer interface {
	Configured() bool
	SendGameLink(toEmail, code, link string) error
}

type GameHandler struct {
	games   GameStore
	lookup  *game.Lookup
	hosted  HostedGames
	catalog *sports.Catalog
	hub     *ws.Hub
	updates Broadcaster
	flags   *flags.Codec
	mailer  LinkMailer
	baseURL string
	secure  bool
	render  *Renderer
	logger  *slog.Logger
}

func NewGameHandler(gs GameStore, lookup *game.Lookup, hosted HostedGames, catalog *sports.Catalog, hub *ws.Hub, updates Broadcaster, codec *flags.Codec, mailer LinkMailer, baseURL string, secure bool, rd *Renderer, logger *slog.Logger) *GameHandler {
	return &GameHandler{
		games:   gs,
		lookup:  lookup,
		hosted:  hosted,
		catalog: catalog,
		hub:     hub,
		updates: updates,
		flags:   codec,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		secure:  secure,
		render:  rd,
		logger:  logger,
	}
}

func (h *GameHandler) watchURL(code string) string {
	return h.baseURL + "/watch/" + code
}

func (h *GameHandler) sportName(key string) string {
	if s := h.catalog.Get(key); s != nil {
		return s.Name
	}
	return key
}

// isHost reports whether the request carries the host key for g.
func isHost(r *http.Request, g *model.Game) bool {
	key := r.Header.Get(hostKeyHeader)
	if key == "" {
		if cookie, err := r.Cookie(hostCookiePrefix + g.Code); err == nil {
			key = cookie.Value
		}
	}
	return key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(g.HostKey)) == 1
}

// Create starts a new game for the chosen sport.
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := h.flags.Read(r)
	uid := auth.UID(ctx)

	if !f.IsHost || (f.Mode == flags.ModeHost && uid == "") {
		notify.Notify(ctx, "Sign in or choose free hosting to start a game", notify.LevelWarning)
		redirect(w, r, "/")
		return
	}

	sport := strings.ToLower(strings.TrimSpace(r.FormValue("sport")))
	if !h.catalog.Playable(sport) {
		notify.Notify(ctx, fmt.Sprintf("%s is coming soon", h.sportName(sport)), notify.LevelInfo)
		redirect(w, r, "/sports?mode="+string(f.Mode))
		return
	}

	owner := ""
	if f.Mode == flags.ModeHost {
		owner = uid
	}
	g, err := h.games.Create(sport, owner)
	if err != nil {
		h.logger.Error("create game", "sport", sport, "error", err)
		notify.Notify(ctx, "Could not create the game. Please try again.", notify.LevelError)
		redirect(w, r, "/sports?mode="+string(f.Mode))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     hostCookiePrefix + g.Code,
		Value:    g.HostKey,
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure || r.TLS != nil,
	})

	if owner != "" {
		if err := h.hosted.AddHostedGame(ctx, owner, g.Code); err != nil {
			notify.Notify(ctx, "Could not sync profile", notify.LevelError)
		}
	}

	h.logger.Info("game created", "code", g.Code, "sport", sport, "mode", f.Mode)
	notify.Notify(ctx, fmt.Sprintf("Game %s created", g.Code), notify.LevelSuccess)
	redirect(w, r, "/games/"+g.Code+"/control")
}

type controlPage struct {
	Game         *model.Game
	SportName    string
	WatchURL     string
	Spectators   int
	EmailEnabled bool
}

// Control is the host's scoreboard page.
func (h *GameHandler) Control(w http.ResponseWriter, r *http.Request) {
	g := h.find(w, r)
	if g == nil {
		return
	}
	if !isHost(r, g) {
		notify.Notify(r.Context(), "Only the host can control this game", notify.LevelWarning)
		redirect(w, r, "/watch/"+g.Code)
		return
	}

	h.render.page(w, r, http.StatusOK, "control.html", "Control "+g.Code, controlPage{
		Game:         g,
		SportName:    h.sportName(g.Sport),
		WatchURL:     h.watchURL(g.Code),
		Spectators:   h.hub.Spectators(g.Code),
		EmailEnabled: h.mailer != nil && h.mailer.Configured(),
	})
}

// UpdateState replaces the game's state and pushes it to spectators.
func (h *GameHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !game.ValidCode(code) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid game code"})
		return
	}
	g, err := h.games.GetByCode(code)
	if err != nil {
		h.logger.Error("get game", "code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load game"})
		return
	}
	if g == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "game not found"})
		return
	}
	if !isHost(r, g) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "host key required"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStateBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "state too large"})
		return
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	updated, err := h.games.UpdateState(code, json.RawMessage(body))
	if err != nil {
		h.logger.Error("update game state", "code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update state"})
		return
	}
	if updated == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "game not found"})
		return
	}

	h.updates.Broadcast(ws.StateMessage(code, updated.State))
	writeJSON(w, http.StatusOK, updated)
}

// Delete ends a game. Only the host may delete it.
func (h *GameHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	g, err := h.games.GetByCode(code)
	if err != nil {
		h.logger.Error("get game", "code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load game"})
		return
	}
	if g == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "game not found"})
		return
	}
	if !isHost(r, g) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "host key required"})
		return
	}
	if err := h.games.Delete(code); err != nil {
		h.logger.Error("delete game", "code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete game"})
		return
	}
	h.updates.Broadcast(ws.EndedMessage(code))
	w.WriteHeader(http.StatusNoContent)
}

// Show returns the public view of a game as JSON for overlays and
// third-party scoreboards.
func (h *GameHandler) Show(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !game.ValidCode(code) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid game code"})
		return
	}
	g := h.lookup.GameExists(r.Context(), code)
	if g == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "game not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game":       g,
		"sport_name": h.sportName(g.Sport),
		"spectators": h.hub.Spectators(g.Code),
	})
}

type watchPage struct {
	Game      *model.Game
	SportName string
}

// WatchPage is the read-only spectator view.
func (h *GameHandler) WatchPage(w http.ResponseWriter, r *http.Request) {
	g := h.find(w, r)
	if g == nil {
		return
	}
	h.render.page(w, r, http.StatusOK, "watch.html", "Watching "+g.Code, watchPage{
		Game:      g,
		SportName: h.sportName(g.Sport),
	})
}

// QR serves a PNG QR code of the spectator link.
func (h *GameHandler) QR(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !game.ValidCode(code) {
		http.Error(w, "invalid game code", http.StatusBadRequest)
		return
	}

	png, err := qrcode.Encode(h.watchURL(code), qrcode.Medium, qrSize)
	if err != nil {
		h.logger.Error("qr generation", "code", code, "error", err)
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(png)
}

// Share emails the spectator link.
func (h *GameHandler) Share(w http.ResponseWriter, r *http.Request) {
	g := h.find(w, r)
	if g == nil {
		return
	}
	ctx := r.Context()
	if !isHost(r, g) {
		notify.Notify(ctx, "Only the host can share this game", notify.LevelWarning)
		redirect(w, r, "/watch/"+g.Code)
		return
	}

	back := "/games/" + g.Code + "/control"
	if h.mailer == nil || !h.mailer.Configured() {
		notify.Notify(ctx, "Email is not configured", notify.LevelWarning)
		redirect(w, r, back)
		return
	}
	to := strings.TrimSpace(r.FormValue("email"))
	if _, err := mail.ParseAddress(to); err != nil {
		notify.Notify(ctx, "Please enter a valid email address", notify.LevelWarning)
		redirect(w, r, back)
		return
	}
	if err := h.mailer.SendGameLink(to, g.Code, h.watchURL(g.Code)); err != nil {
		h.logger.Error("send game link", "code", g.Code, "error", err)
		notify.Notify(ctx, "Could not send the link", notify.LevelError)
		redirect(w, r, back)
		return
	}
	notify.Notify(ctx, "Link sent to "+to, notify.LevelSuccess)
	redirect(w, r, back)
}

// find resolves {code} through the lookup. On a miss it notifies and
// redirects home, and returns nil.
func (h *GameHandler) find(w http.ResponseWriter, r *http.Request) *model.Game {
	code := game.SanitizeCode(r.PathValue("code"))
	var g *model.Game
	if game.ValidCode(code) {
		g = h.lookup.GameExists(r.Context(), code)
	}
	if g == nil {
		notify.Notify(r.Context(), "Game not found", notify.LevelError)
		redirect(w, r, "/")
		return nil
	}
	return g
}
