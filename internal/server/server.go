package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/dukerupert/courtside/internal/authstate"
	"github.com/dukerupert/courtside/internal/config"
	"github.com/dukerupert/courtside/internal/database"
	"github.com/dukerupert/courtside/internal/email"
	"github.com/dukerupert/courtside/internal/flags"
	"github.com/dukerupert/courtside/internal/game"
	"github.com/dukerupert/courtside/internal/handler"
	"github.com/dukerupert/courtside/internal/identity"
	"github.com/dukerupert/courtside/internal/janitor"
	"github.com/dukerupert/courtside/internal/middleware"
	"github.com/dukerupert/courtside/internal/notify"
	"github.com/dukerupert/courtside/internal/profile"
	"github.com/dukerupert/courtside/internal/relay"
	"github.com/dukerupert/courtside/internal/router"
	"github.com/dukerupert/courtside/internal/sports"
	"github.com/dukerupert/courtside/internal/store"
	ws "github.com/dukerupert/courtside/internal/websocket"
	"github.com/dukerupert/courtside/web"
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	relay          *relay.Relay
	cors           *cors.Cors
	authH          *handler.AuthHandler
	viewH          *handler.ViewHandler
	gameH          *handler.GameHandler
	lookup         *game.Lookup
	sessionStore   *store.SessionStore
	resetCodeStore *store.ResetCodeStore
	rateLimiter    *middleware.RateLimiter
	originPatterns []string
	logger         *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, catalog *sports.Catalog, emailClient *email.Client, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	accountStore := store.NewAccountStore(db)
	sessionStore := store.NewSessionStore(db)
	resetCodeStore := store.NewResetCodeStore(db)
	profileStore := store.NewProfileStore(db)
	gameStore := store.NewGameStore(db)

	codec := flags.NewCodec(cfg.SessionSecret)
	lookup := game.NewLookup(gameStore, logger.With("component", "game_lookup"))
	bootstrapper := profile.NewBootstrapper(profileStore, logger.With("component", "profile"))
	rt := router.New(bootstrapper, lookup, logger.With("component", "router"))

	local := identity.NewLocalProvider(accountStore, resetCodeStore, emailClient, cfg.BaseURL, logger.With("component", "identity"))
	var federated identity.Federated
	if cfg.OAuth.Enabled() {
		federated = identity.NewOAuthProvider(cfg.OAuth)
	}
	gateway := identity.NewGateway(local, federated, sessionStore, authstate.NewEmitter(), logger.With("component", "gateway"))
	if err := gateway.OnAuthStateChange(rt.HandleAuthChange); err != nil {
		return nil, fmt.Errorf("subscribe router: %w", err)
	}

	renderer, err := handler.NewRenderer(web.Templates(), codec, logger.With("component", "template"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:             db,
		hub:            hub,
		lookup:         lookup,
		sessionStore:   sessionStore,
		resetCodeStore: resetCodeStore,
		rateLimiter:    middleware.NewRateLimiter(nil, cfg.RateLimit, time.Minute),
		originPatterns: cfg.OriginPatterns,
		cors: cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}),
		logger: logger,
	}

	var updates handler.Broadcaster = hub
	if cfg.NATSURL != "" {
		s.relay, err = relay.Connect(relay.Config{URL: cfg.NATSURL, MaxReconnects: -1}, hub, logger.With("component", "relay"))
		if err != nil {
			return nil, err
		}
		updates = s.relay
	}

	s.authH = handler.NewAuthHandler(gateway, codec, renderer, cfg.SecureCookies, logger.With("component", "auth"))
	s.viewH = handler.NewViewHandler(rt, codec, catalog, profileStore, gameStore, renderer, logger.With("component", "views"))
	s.gameH = handler.NewGameHandler(gameStore, lookup, bootstrapper, catalog, hub, updates, codec, emailClient, cfg.BaseURL, cfg.SecureCookies, renderer, logger.With("component", "game"))
	return s, nil
}

// Close releases the relay connection, if any.
func (s *Server) Close() {
	if s.relay != nil {
		s.relay.Close()
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// CleanupTasks returns the periodic housekeeping jobs for the janitor.
func (s *Server) CleanupTasks() []janitor.Task {
	return []janitor.Task{
		{Name: "sessions", Run: s.sessionStore.DeleteExpired},
		{Name: "reset_codes", Run: s.resetCodeStore.DeleteExpired},
		{Name: "rate_limiter", Run: func() (int64, error) {
			return int64(s.rateLimiter.Cleanup()), nil
		}},
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	mux.HandleFunc("GET /health", s.healthHandler)

	// Entry and auth
	mux.HandleFunc("GET /", s.authH.Landing)
	mux.HandleFunc("GET /auth", s.authH.AuthPage)
	mux.HandleFunc("POST /auth/signin", s.rateLimitedHandler(s.authH.SignIn))
	mux.HandleFunc("POST /auth/signup", s.rateLimitedHandler(s.authH.SignUp))
	mux.HandleFunc("POST /auth/reset", s.rateLimitedHandler(s.authH.SendReset))
	mux.HandleFunc("GET /auth/reset/confirm", s.authH.ResetConfirmPage)
	mux.HandleFunc("POST /auth/reset/confirm", s.rateLimitedHandler(s.authH.ResetConfirm))
	mux.HandleFunc("GET /auth/federated", s.authH.FederatedStart)
	mux.HandleFunc("GET /auth/federated/callback", s.authH.FederatedCallback)
	mux.HandleFunc("POST /auth/signout", s.authH.SignOut)

	// Local-only paths
	mux.HandleFunc("POST /free", s.viewH.FreeHost)
	mux.HandleFunc("POST /watch", s.rateLimitedHandler(s.viewH.Watch))
	mux.HandleFunc("GET /sports", s.viewH.Sports)
	mux.Handle("GET /api/profile", middleware.RequireAuth(http.HandlerFunc(s.viewH.Profile)))

	// Games
	mux.HandleFunc("POST /games", s.gameH.Create)
	mux.HandleFunc("GET /games/{code}/control", s.gameH.Control)
	mux.HandleFunc("GET /games/{code}/qr.png", s.gameH.QR)
	mux.HandleFunc("POST /games/{code}/share", s.rateLimitedHandler(s.gameH.Share))
	mux.HandleFunc("PUT /api/games/{code}/state", s.gameH.UpdateState)
	mux.HandleFunc("DELETE /api/games/{code}", s.gameH.Delete)
	mux.Handle("GET /api/games/{code}", s.cors.Handler(http.HandlerFunc(s.gameH.Show)))
	mux.HandleFunc("GET /watch/{code}", s.gameH.WatchPage)
	mux.HandleFunc("GET /ws/games/{code}", ws.HandleGameFeed(s.hub, s.lookup, s.originPatterns, s.logger.With("component", "websocket")))

	var h http.Handler = mux
	h = notify.Middleware(h)
	h = middleware.LoadSession(s.sessionStore)(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	schema, err := database.SchemaVersion(r.Context(), s.db)
	if err != nil {
		s.logger.Warn("health schema version", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"schema":     schema,
		"spectators": s.hub.ClientCount(),
		"games_live": s.hub.RoomCount(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	return middleware.RateLimit(s.rateLimiter, middleware.ClientGameKey)(h).ServeHTTP
}
