package daemon

import (
	"context"
	"os"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chatstate"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/control"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/dispatch"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/matheus3301/chatsync/internal/restapi"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	Config      *config.Config
	Debug       bool
	Quiet       bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p, p.Config),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCurrent,
			provideRESTClient,
			provideRealtime,
			provideChatState,
			providePresence,
			provideDirectory,
			provideNotifier,
			provideDispatcher,
			NewAccount,
			provideControlService,
			provideMetrics,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, logging.Options{Debug: p.Debug, Quiet: p.Quiet})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore takes the lock as a dependency so the database is never opened
// by a second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	return store.Open(dbPath, logger.Named("store"))
}

func provideCurrent() *auth.Current {
	return &auth.Current{}
}

func provideRESTClient(cfg *config.Config, cur *auth.Current) (*restapi.Client, error) {
	return restapi.New(cfg.API.BaseURL, cur.Token, cfg.API.Timeout.Duration)
}

func provideRealtime(cfg *config.Config, cur *auth.Current, machine *status.Machine, logger *zap.Logger) *realtime.Manager {
	dialer := &realtime.WSDialer{
		URL:          cfg.Realtime.URL,
		Token:        cur.Token,
		PingInterval: cfg.Realtime.PingInterval.Duration,
	}
	opts := realtime.DefaultOptions()
	opts.MaxAttempts = cfg.Realtime.ReconnectMaxAttempts
	opts.MaxInterval = cfg.Realtime.ReconnectMaxInterval.Duration
	return realtime.NewManager(dialer, opts, machine, logger.Named("realtime"))
}

func provideChatState(cfg *config.Config, mgr *realtime.Manager, api *restapi.Client, b *bus.Bus, logger *zap.Logger) *chatstate.Store {
	return chatstate.New(mgr, api, b, logger.Named("chatstate"), chatstate.Options{
		PageSize:           cfg.Chat.PageSize,
		TypingTTL:          cfg.Chat.TypingTTL.Duration,
		TypingIdle:         cfg.Chat.TypingIdle.Duration,
		TypingEmitInterval: cfg.Chat.TypingEmitInterval.Duration,
	})
}

func providePresence(state *chatstate.Store, mgr *realtime.Manager) *presence.Querier {
	return presence.NewQuerier(state, mgr, 0)
}

func provideDirectory(api *restapi.Client, db *store.DB, logger *zap.Logger) *directory.Directory {
	return directory.New(api, db, logger.Named("directory"))
}

func provideNotifier(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *notify.Notifier {
	sinks := []notify.Sink{notify.Toast{Bus: b}}
	if cfg.Notify.Bell {
		sinks = append(sinks, &notify.Bell{W: os.Stderr})
	}
	if len(cfg.Notify.Command) > 0 {
		sinks = append(sinks, &notify.Command{
			Path:   cfg.Notify.Command[0],
			Args:   cfg.Notify.Command[1:],
			Logger: logger,
		})
	}
	return notify.New(logger.Named("notify"), sinks...)
}

func provideDispatcher(state *chatstate.Store, n *notify.Notifier, q *presence.Querier, dir *directory.Directory, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(state, n, q, dir, logger.Named("dispatch"))
}

func provideControlService(p Params, m *status.Machine, state *chatstate.Store, acct *Account, q *presence.Querier, dir *directory.Directory, db *store.DB, b *bus.Bus, logger *zap.Logger) *control.Service {
	return control.NewService(control.Deps{
		Session:   p.SessionName,
		Machine:   m,
		Store:     state,
		Account:   acct,
		Presence:  q,
		Directory: dir,
		Users:     db,
		Bus:       b,
		Logger:    logger.Named("control"),
	})
}

func provideMetrics(cfg *config.Config, logger *zap.Logger) (*metrics.Server, error) {
	return metrics.Listen(cfg.Metrics.Listen, logger.Named("metrics"))
}

// onConnected runs after every (re)connect: the server forgets room membership
// and may have missed conversation changes while we were away.
func onConnected(state *chatstate.Store, logger *zap.Logger) realtime.ConnectHook {
	return func(ctx context.Context, c *realtime.Conn) {
		state.Rejoin(ctx, c)
		// Hooks run before inbound frames are read; keep the REST call off that path.
		go func() {
			if err := state.LoadConversations(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("refreshing conversations failed", zap.Error(err))
			}
		}()
	}
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, mgr *realtime.Manager, state *chatstate.Store, d *dispatch.Dispatcher, acct *Account, ms *metrics.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			mgr.Use(d)
			mgr.OnConnected(onConnected(state, logger))

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			ms.Start()

			if err := acct.Restore(ctx); err != nil {
				logger.Error("restoring sign-in failed", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			mgr.Disconnect()
			srv.Stop(ctx)
			if err := ms.Stop(ctx); err != nil {
				logger.Warn("error stopping metrics server", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
