package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/courtside/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

const profileCols = `uid, email, display_name, created_at`

// Get returns the profile for uid with its hosted games, or nil if absent.
func (s *ProfileStore) Get(uid string) (*model.Profile, error) {
	var p model.Profile
	err := s.db.QueryRow(`SELECT `+profileCols+` FROM profiles WHERE uid = ?`, uid).
		Scan(&p.UID, &p.Email, &p.DisplayName, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	games, err := s.hostedGames(uid)
	if err != nil {
		return nil, err
	}
	p.HostedGames = games
	return &p, nil
}

func (s *ProfileStore) hostedGames(uid string) ([]string, error) {
	rows, err := s.db.Query(`SELECT code FROM hosted_games WHERE uid = ? ORDER BY created_at, code`, uid)
	if err != nil {
		return nil, fmt.Errorf("list hosted games: %w", err)
	}
	defer rows.Close()

	games := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan hosted game: %w", err)
		}
		games = append(games, code)
	}
	return games, rows.Err()
}

// CreateIfAbsent inserts p unless a profile with the same UID already exists.
// It reports whether a row was written.
func (s *ProfileStore) CreateIfAbsent(p *model.Profile) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO profiles (uid, email, display_name) VALUES (?, ?, ?) ON CONFLICT(uid) DO NOTHING`,
		p.UID, p.Email, p.DisplayName,
	)
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// AddHostedGame records code against the profile. Adding the same code twice is a no-op.
func (s *ProfileStore) AddHostedGame(uid, code string) error {
	_, err := s.db.Exec(
		`INSERT INTO hosted_games (uid, code) VALUES (?, ?) ON CONFLICT(uid, code) DO NOTHING`,
		uid, code,
	)
	if err != nil {
		return fmt.Errorf("add hosted game: %w", err)
	}
	return nil
}
