package store

import "time"

// Credentials is the single signed-in account of a session.
type Credentials struct {
	Token     string
	UserID    string
	APIURL    string
	WSURL     string
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// CachedUser is a directory entry remembered locally.
type CachedUser struct {
	ID        string
	Name      string
	Email     string
	UpdatedAt time.Time
}
