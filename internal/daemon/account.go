package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/chatstate"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Account signs the session in and out and restores a stored sign-in on boot.
type Account struct {
	db      *store.DB
	current *auth.Current
	state   *chatstate.Store
	mgr     *realtime.Manager
	cfg     *config.Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewAccount wires the account to its collaborators.
func NewAccount(db *store.DB, current *auth.Current, state *chatstate.Store, mgr *realtime.Manager, cfg *config.Config, logger *zap.Logger) *Account {
	return &Account{
		db:      db,
		current: current,
		state:   state,
		mgr:     mgr,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Restore signs in with the stored credentials, if any. Expired credentials
// are discarded.
func (a *Account) Restore(ctx context.Context) error {
	creds, err := a.db.LoadCredentials()
	if err != nil {
		return err
	}
	if creds == nil {
		a.logger.Info("no credentials found, login required")
		return nil
	}
	if creds.APIURL != "" && creds.APIURL != a.cfg.API.BaseURL {
		a.logger.Warn("stored credentials were issued for another backend",
			zap.String("stored", creds.APIURL), zap.String("configured", a.cfg.API.BaseURL))
	}
	id, err := auth.Validate(creds.Token, a.now())
	if err != nil {
		a.logger.Warn("discarding stored credentials", zap.Error(err))
		return a.db.ClearCredentials()
	}
	return a.start(ctx, creds.Token, id)
}

// Login validates the token, stores it and connects as its user. A login for a
// different user replaces the previous identity on the live connection.
func (a *Account) Login(ctx context.Context, token string) (auth.Identity, error) {
	id, err := auth.Validate(token, a.now())
	if err != nil {
		return auth.Identity{}, fmt.Errorf("login: %w", err)
	}
	err = a.db.SaveCredentials(&store.Credentials{
		Token:     token,
		UserID:    id.UserID,
		APIURL:    a.cfg.API.BaseURL,
		WSURL:     a.cfg.Realtime.URL,
		ExpiresAt: id.ExpiresAt,
	})
	if err != nil {
		return auth.Identity{}, err
	}
	if err := a.start(ctx, token, id); err != nil {
		return auth.Identity{}, err
	}
	return id, nil
}

func (a *Account) start(ctx context.Context, token string, id auth.Identity) error {
	a.current.Set(token, id)
	a.state.SetSelf(id.UserID)
	if _, err := a.mgr.Connect(ctx, id.UserID); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	a.logger.Info("signed in", zap.String("user_id", id.UserID))
	if err := a.state.LoadConversations(ctx); err != nil {
		// The list is reloaded on the next reconnect.
		a.logger.Warn("loading conversations failed", zap.Error(err))
	}
	return nil
}

// Logout closes the connection, drops the cached state and forgets the credentials.
func (a *Account) Logout(_ context.Context) error {
	a.mgr.Disconnect()
	a.state.SetSelf("")
	a.current.Clear()
	a.logger.Info("signed out")
	return a.db.ClearCredentials()
}

// Identity returns the signed-in identity, zero when signed out.
func (a *Account) Identity() auth.Identity {
	return a.current.Identity()
}
