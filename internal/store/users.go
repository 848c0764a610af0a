package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertUsers caches directory entries in a single transaction. Empty fields
// do not overwrite known values.
func (db *DB) UpsertUsers(users []CachedUser) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, u := range users {
		if _, err := tx.Exec(`
			INSERT INTO users (id, name, email, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
				email = CASE WHEN excluded.email != '' THEN excluded.email ELSE users.email END,
				updated_at = excluded.updated_at`,
			u.ID, u.Name, u.Email, now); err != nil {
			return fmt.Errorf("upsert user %q: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// GetUser returns a cached user, or nil when unknown.
func (db *DB) GetUser(id string) (*CachedUser, error) {
	var (
		u       CachedUser
		updated int64
	)
	err := db.QueryRow(`SELECT id, name, email, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.UpdatedAt = time.UnixMilli(updated)
	return &u, nil
}

// SearchUsers matches cached users by name or email case-insensitive substring.
func (db *DB) SearchUsers(query string, limit int) ([]CachedUser, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := db.Query(`
		SELECT id, name, email, updated_at FROM users
		WHERE lower(name) LIKE ? ESCAPE '\' OR lower(email) LIKE ? ESCAPE '\'
		ORDER BY name, id
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var out []CachedUser
	for rows.Next() {
		var (
			u       CachedUser
			updated int64
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &updated); err != nil {
			return nil, err
		}
		u.UpdatedAt = time.UnixMilli(updated)
		out = append(out, u)
	}
	return out, rows.Err()
}

// UserCount returns the number of cached users.
func (db *DB) UserCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
