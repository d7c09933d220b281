package game

import (
	"context"
	"log/slog"

	"github.com/dukerupert/courtside/internal/model"
)

// Finder is the point-read the lookup needs from the game store.
type Finder interface {
	GetByCode(code string) (*model.Game, error)
}

// Lookup answers whether a join code names an existing game.
type Lookup struct {
	finder Finder
	logger *slog.Logger
}

func NewLookup(f Finder, logger *slog.Logger) *Lookup {
	return &Lookup{finder: f, logger: logger}
}

// GameExists returns the game record for code, or nil.
//
// nil covers three cases the caller cannot tell apart: no such game, a store
// failure, and a lookup built without a store. Failures are logged here.
func (l *Lookup) GameExists(ctx context.Context, code string) *model.Game {
	if l == nil || l.finder == nil {
		slog.WarnContext(ctx, "game lookup without a store", "code", code)
		return nil
	}

	g, err := l.finder.GetByCode(code)
	if err != nil {
		l.logger.ErrorContext(ctx, "game lookup", "code", code, "error", err)
		return nil
	}
	return g
}
