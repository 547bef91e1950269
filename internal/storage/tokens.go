package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SaveToken stores value as the active token of type typ. Previously active
// tokens of the same type are deactivated in the same transaction. A zero
// expiresAt never expires.
func (s *Store) SaveToken(typ, value string, expiresAt time.Time) error {
	if strings.TrimSpace(typ) == "" || value == "" {
		return fmt.Errorf("saving token: type and value are required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning token transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE tokens SET is_active = 0 WHERE token_type = ? AND is_active = 1`, typ); err != nil {
		return fmt.Errorf("deactivating previous tokens: %w", err)
	}

	var expires sql.NullString
	if !expiresAt.IsZero() {
		expires = sql.NullString{String: expiresAt.UTC().Format(time.RFC3339), Valid: true}
	}
	if _, err := tx.Exec(`
		INSERT INTO tokens (token_type, token_value, created_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, 1)`,
		typ, value, s.timestamp(), expires,
	); err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}
	return tx.Commit()
}

// GetToken returns the newest active token of type typ. An expired or
// missing token is ErrNotFound.
func (s *Store) GetToken(typ string) (string, error) {
	var value string
	var expires sql.NullString
	err := s.db.QueryRow(`
		SELECT token_value, expires_at FROM tokens
		WHERE token_type = ? AND is_active = 1
		ORDER BY id DESC LIMIT 1`, typ,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if expires.Valid {
		t, err := parseTime("expires_at", expires.String)
		if err != nil {
			return "", err
		}
		if !s.now().Before(t) {
			return "", ErrNotFound
		}
	}
	return value, nil
}

func (s *Store) HasActiveToken(typ string) (bool, error) {
	_, err := s.GetToken(typ)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// DeactivateTokens marks every token of type typ inactive, keeping the rows.
func (s *Store) DeactivateTokens(typ string) error {
	_, err := s.db.Exec(`UPDATE tokens SET is_active = 0 WHERE token_type = ?`, typ)
	return err
}

// ClearTokens deletes all tokens of every type.
func (s *Store) ClearTokens() error {
	_, err := s.db.Exec(`DELETE FROM tokens`)
	return err
}
