// Package daemon composes the scheduler daemon out of its parts with fx.
package daemon

import (
	"context"
	"os"

	"github.com/ivangillig/whatsapp-scheduler/internal/api"
	"github.com/ivangillig/whatsapp-scheduler/internal/bus"
	"github.com/ivangillig/whatsapp-scheduler/internal/config"
	"github.com/ivangillig/whatsapp-scheduler/internal/lock"
	"github.com/ivangillig/whatsapp-scheduler/internal/logging"
	"github.com/ivangillig/whatsapp-scheduler/internal/paths"
	"github.com/ivangillig/whatsapp-scheduler/internal/scheduler"
	"github.com/ivangillig/whatsapp-scheduler/internal/status"
	"github.com/ivangillig/whatsapp-scheduler/internal/store"
	intsync "github.com/ivangillig/whatsapp-scheduler/internal/sync"
	"github.com/ivangillig/whatsapp-scheduler/internal/wa"
	"github.com/ivangillig/whatsapp-scheduler/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module returns the fx module composing all providers and lifecycle hooks.
func Module() fx.Option {
	return fx.Module("daemon",
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAdapter,
			provideManager,
			provideSyncEngine,
			provideScheduler,
			provideAuth,
			provideHub,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return config.Load(paths.ConfigPath())
}

func provideLogger() (*zap.Logger, error) {
	return logging.New(paths.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring daemon lock")
	l, err := lock.Acquire(paths.LockPath())
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideStore(logger *zap.Logger) (*store.DB, error) {
	dbPath := paths.AppDBPath()
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

func provideAdapter(logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), paths.SessionDBPath(), logger)
}

func provideManager(cfg *config.Config, adapter *wa.Adapter, machine *status.Machine, db *store.DB, b *bus.Bus, logger *zap.Logger) *wa.Manager {
	return wa.NewManager(adapter, machine, db, b, logger,
		cfg.ReconnectDelay.Duration, cfg.RestartDelay.Duration)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideScheduler(cfg *config.Config, db *store.DB, mgr *wa.Manager, b *bus.Bus, logger *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(db, mgr, b, logger,
		cfg.TickInterval.Duration, cfg.SendPause.Duration)
}

func provideAuth(logger *zap.Logger) *api.Auth {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Warn("JWT_SECRET not set, using insecure default")
		secret = "whatsapp-scheduler-secret-change-me"
	}
	return api.NewAuth(secret, os.Getenv("ADMIN_USER"), os.Getenv("ADMIN_PASSWORD"), logger)
}

func provideHub(cfg *config.Config, b *bus.Bus, auth *api.Auth, logger *zap.Logger) *ws.Hub {
	return ws.NewHub(b, auth, cfg.FrontendOrigin, logger)
}

func provideServer(cfg *config.Config, db *store.DB, mgr *wa.Manager, auth *api.Auth, hub *ws.Hub, logger *zap.Logger) *api.Server {
	return api.NewServer(cfg.ListenAddr, cfg.FrontendOrigin, db, mgr, auth, hub, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *api.Server, lk *lock.Lock, mgr *wa.Manager, engine *intsync.Engine, sched *scheduler.Scheduler, hub *ws.Hub, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())
			hub.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()

			sched.Start(context.Background())

			// Bring the session up: connects with stored credentials or
			// produces a pairing QR for the frontend.
			mgr.Start()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			engine.Stop()
			mgr.Close()
			hub.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
