package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/courtside/internal/game"
	"github.com/dukerupert/courtside/internal/model"
)

// Games looks up the game a spectator asks to follow.
type Games interface {
	GameExists(ctx context.Context, code string) *model.Game
}

// HandleGameFeed upgrades GET /ws/games/{code} and streams state updates for
// that game. Unknown codes get a 404 before the upgrade.
func HandleGameFeed(hub *Hub, games Games, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")
		if !game.ValidCode(code) {
			http.Error(w, "invalid game code", http.StatusBadRequest)
			return
		}
		g := games.GameExists(r.Context(), code)
		if g == nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "code", code, "error", err)
			return
		}
		defer conn.CloseNow()

		snapshot, err := json.Marshal(StateMessage(code, g.State))
		if err != nil {
			logger.Error("marshal snapshot", "code", code, "error", err)
			snapshot = nil
		}

		logger.Debug("spectator joined", "code", code)
		NewClient(hub, conn, code).Run(r.Context(), snapshot)
		logger.Debug("spectator left", "code", code, "remaining", hub.Spectators(code))
	}
}
