package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveCredentials replaces the stored credentials.
func (db *DB) SaveCredentials(c *Credentials) error {
	var expires int64
	if !c.ExpiresAt.IsZero() {
		expires = c.ExpiresAt.UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO credentials (id, token, user_id, api_url, ws_url, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			api_url = CASE WHEN excluded.api_url != '' THEN excluded.api_url ELSE credentials.api_url END,
			ws_url = CASE WHEN excluded.ws_url != '' THEN excluded.ws_url ELSE credentials.ws_url END,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		c.Token, c.UserID, c.APIURL, c.WSURL, expires, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored credentials, or nil when signed out.
func (db *DB) LoadCredentials() (*Credentials, error) {
	var (
		c                  Credentials
		expires, updatedAt int64
	)
	err := db.QueryRow(`SELECT token, user_id, api_url, ws_url, expires_at, updated_at FROM credentials WHERE id = 1`).
		Scan(&c.Token, &c.UserID, &c.APIURL, &c.WSURL, &expires, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if expires > 0 {
		c.ExpiresAt = time.UnixMilli(expires)
	}
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}

// ClearCredentials signs the session out.
func (db *DB) ClearCredentials() error {
	if _, err := db.Exec(`DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
