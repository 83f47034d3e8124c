package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/caval92/tgd/internal/account"
	"github.com/caval92/tgd/internal/bus"
	"github.com/caval92/tgd/internal/config"
	"github.com/caval92/tgd/internal/gateway"
	"github.com/caval92/tgd/internal/ipc"
	"github.com/caval92/tgd/internal/lock"
	"github.com/caval92/tgd/internal/logging"
	"github.com/caval92/tgd/internal/status"
	"github.com/caval92/tgd/internal/store"
	intsync "github.com/caval92/tgd/internal/sync"
	"github.com/caval92/tgd/internal/tg"
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	Account    string
	Driver     string
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideClient,
			provideRules,
			provideReconciler,
			provideOrchestrator,
			provideListener,
			provideGateway,
			provideIPCServer,
			NewRunner,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(account.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(account.LogPath(p.Account), p.Account)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := account.EnsureDir(p.Account); err != nil {
		return nil, err
	}
	logger.Info("acquiring store lock", zap.String("account", p.Account))
	l, err := lock.Acquire(account.Dir(p.Account))
	if err != nil {
		return nil, err
	}
	logger.Info("store lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := account.DBPath(p.Account)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideClient(p Params, logger *zap.Logger) (tg.Client, error) {
	return tg.Open(context.Background(), p.Driver, tg.Options{
		Account:     p.Account,
		SessionPath: account.SessionPath(p.Account),
		Logger:      logger,
	})
}

func provideRules(cfg *config.Config) *intsync.Rules {
	return intsync.NewRules(cfg.Sync.IgnoreChats, cfg.Sync.IgnoreChannels)
}

func provideReconciler(rules *intsync.Rules) *intsync.Reconciler {
	return intsync.NewReconciler(rules)
}

func provideOrchestrator(db *store.DB, client tg.Client, rules *intsync.Rules, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *intsync.Orchestrator {
	return intsync.NewOrchestrator(db, client, rules, b, logger, intsync.Config{
		BootstrapLimit: cfg.Sync.BootstrapLimit,
		Concurrency:    cfg.Sync.Concurrency,
	})
}

func provideListener(db *store.DB, client tg.Client, rec *intsync.Reconciler, orch *intsync.Orchestrator, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *intsync.Listener {
	return intsync.NewListener(db, client, rec, orch, b, logger, intsync.ListenerConfig{
		MarkRead: cfg.Daemon.MarkRead,
	})
}

func provideGateway(db *store.DB, client tg.Client, logger *zap.Logger) *gateway.Gateway {
	return gateway.New(db, client, logger)
}

func provideIPCServer(p Params, gw *gateway.Gateway, logger *zap.Logger) *ipc.Server {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = account.SocketPath(p.Account)
	}
	return ipc.NewServer(socketPath, gw, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *ipc.Server, runner *Runner, lk *lock.Lock, client tg.Client, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The lock is held before the socket binds, so a stale socket
			// file can be reclaimed safely.
			if err := srv.Start(context.Background()); err != nil {
				return err
			}
			runner.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			runner.Stop()
			if err := srv.Stop(); err != nil {
				logger.Warn("error stopping ipc server", zap.Error(err))
			}
			if err := client.Close(); err != nil {
				logger.Warn("error closing remote client", zap.Error(err))
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
