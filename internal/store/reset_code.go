package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dukerupert/courtside/internal/model"
)

// ResetCodeTTL is how long a password reset link stays usable.
const ResetCodeTTL = 15 * time.Minute

type ResetCodeStore struct {
	db *sql.DB
}

func NewResetCodeStore(db *sql.DB) *ResetCodeStore {
	return &ResetCodeStore{db: db}
}

func scanResetCode(scanner interface{ Scan(...any) error }) (*model.ResetCode, error) {
	var rc model.ResetCode
	var usedAt sql.NullTime

	err := scanner.Scan(&rc.ID, &rc.Token, &rc.Email, &rc.ExpiresAt, &usedAt, &rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		rc.UsedAt = &usedAt.Time
	}
	return &rc, nil
}

const resetCodeCols = `id, token, email, expires_at, used_at, created_at`

// Create issues a new reset token for email. Earlier pending tokens for the
// same email are invalidated first.
func (s *ResetCodeStore) Create(email string) (*model.ResetCode, error) {
	_, err := s.db.Exec(
		`UPDATE reset_codes SET used_at = datetime('now') WHERE email = ? AND used_at IS NULL AND expires_at > datetime('now')`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)
	expiresAt := time.Now().UTC().Add(ResetCodeTTL)

	result, err := s.db.Exec(
		`INSERT INTO reset_codes (token, email, expires_at) VALUES (?, ?, ?)`,
		token, email, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reset code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+resetCodeCols+` FROM reset_codes WHERE id = ?`, id)
	return scanResetCode(row)
}

// GetValid returns the unexpired, unused code for token, or nil.
func (s *ResetCodeStore) GetValid(token string) (*model.ResetCode, error) {
	row := s.db.QueryRow(
		`SELECT `+resetCodeCols+` FROM reset_codes WHERE token = ? AND expires_at > datetime('now') AND used_at IS NULL`,
		token,
	)
	rc, err := scanResetCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reset code: %w", err)
	}
	return rc, nil
}

func (s *ResetCodeStore) MarkUsed(id int64) error {
	_, err := s.db.Exec(`UPDATE reset_codes SET used_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reset code used: %w", err)
	}
	return nil
}

func (s *ResetCodeStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM reset_codes WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
