package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/dukerupert/courtside/internal/model"
)

// maxCodeAttempts bounds the retries when a generated join code collides.
const maxCodeAttempts = 10

var ErrCodeExhausted = errors.New("could not allocate a free join code")

type GameStore struct {
	db *sql.DB
}

func NewGameStore(db *sql.DB) *GameStore {
	return &GameStore{db: db}
}

func scanGame(scanner interface{ Scan(...any) error }) (*model.Game, error) {
	var g model.Game
	var state string
	err := scanner.Scan(&g.Code, &g.Sport, &g.OwnerUID, &g.HostKey, &state, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	g.State = json.RawMessage(state)
	return &g, nil
}

const gameCols = `code, sport, owner_uid, host_key, state, created_at, updated_at`

// generateCode returns a 6-digit numeric code (100000–999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func generateHostKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate host key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create stores a new game under a fresh join code. ownerUID is empty for
// free-hosted games.
func (s *GameStore) Create(sport, ownerUID string) (*model.Game, error) {
	hostKey, err := generateHostKey()
	if err != nil {
		return nil, err
	}

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		_, err = s.db.Exec(
			`INSERT INTO games (code, sport, owner_uid, host_key) VALUES (?, ?, ?, ?)`,
			code, sport, ownerUID, hostKey,
		)
		if IsUniqueViolation(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert game: %w", err)
		}
		return s.GetByCode(code)
	}
	return nil, ErrCodeExhausted
}

// GetByCode returns the game for code, or nil if no game has that code.
func (s *GameStore) GetByCode(code string) (*model.Game, error) {
	row := s.db.QueryRow(`SELECT `+gameCols+` FROM games WHERE code = ?`, code)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

func (s *GameStore) UpdateState(code string, state json.RawMessage) (*model.Game, error) {
	if !json.Valid(state) {
		return nil, fmt.Errorf("update game state: invalid JSON payload")
	}
	result, err := s.db.Exec(`UPDATE games SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE code = ?`, string(state), code)
	if err != nil {
		return nil, fmt.Errorf("update game state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByCode(code)
}

func (s *GameStore) ListByOwner(uid string) ([]model.Game, error) {
	rows, err := s.db.Query(`SELECT `+gameCols+` FROM games WHERE owner_uid = ? ORDER BY created_at DESC, code`, uid)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// Delete removes the game and every profile's hosted reference to it.
func (s *GameStore) Delete(code string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM hosted_games WHERE code = ?`, code); err != nil {
		return fmt.Errorf("delete hosted game refs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM games WHERE code = ?`, code); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return tx.Commit()
}
