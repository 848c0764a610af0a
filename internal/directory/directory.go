// Package directory looks users up through the backend and remembers them in
// the session database.
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Remote is the backend user search.
type Remote interface {
	SearchUsers(ctx context.Context, query string) ([]chat.User, error)
}

// Cache is the local user table.
type Cache interface {
	UpsertUsers(users []store.CachedUser) error
	GetUser(id string) (*store.CachedUser, error)
	SearchUsers(query string, limit int) ([]store.CachedUser, error)
}

// Directory resolves users, preferring the backend and falling back to the cache.
type Directory struct {
	remote Remote
	cache  Cache
	logger *zap.Logger
}

// New creates a directory. remote may be nil while signed out.
func New(remote Remote, cache Cache, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{remote: remote, cache: cache, logger: logger}
}

// Search asks the backend and caches the results. When the backend fails the
// cached matches are returned if there are any.
func (d *Directory) Search(ctx context.Context, query string) ([]chat.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search users: empty query")
	}
	if d.remote != nil {
		users, err := d.remote.SearchUsers(ctx, query)
		if err == nil {
			d.remember(users)
			return users, nil
		}
		cached, cerr := d.cached(query)
		if cerr != nil || len(cached) == 0 {
			return nil, fmt.Errorf("search users: %w", err)
		}
		d.logger.Warn("user search served from cache", zap.String("query", query), zap.Error(err))
		return cached, nil
	}
	return d.cached(query)
}

// DisplayName returns a cached user's name, or the id when unknown.
func (d *Directory) DisplayName(id string) string {
	u, err := d.cache.GetUser(id)
	if err != nil || u == nil || u.Name == "" {
		return id
	}
	return u.Name
}

func (d *Directory) remember(users []chat.User) {
	if len(users) == 0 {
		return
	}
	rows := make([]store.CachedUser, 0, len(users))
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		rows = append(rows, store.CachedUser{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	if err := d.cache.UpsertUsers(rows); err != nil {
		d.logger.Warn("caching users failed", zap.Error(err))
	}
}

func (d *Directory) cached(query string) ([]chat.User, error) {
	rows, err := d.cache.SearchUsers(query, 50)
	if err != nil {
		return nil, err
	}
	out := make([]chat.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, chat.User{ID: r.ID, Name: r.Name, Email: r.Email})
	}
	return out, nil
}
