package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/lifecycle-engine/internal/api/http"
	"github.com/spec-kit/lifecycle-engine/internal/api/http/handlers"
	"github.com/spec-kit/lifecycle-engine/internal/auth"
	"github.com/spec-kit/lifecycle-engine/internal/clock"
	"github.com/spec-kit/lifecycle-engine/internal/config"
	"github.com/spec-kit/lifecycle-engine/internal/events"
	"github.com/spec-kit/lifecycle-engine/internal/lifecycle"
	"github.com/spec-kit/lifecycle-engine/internal/locking"
	"github.com/spec-kit/lifecycle-engine/internal/observability"
	"github.com/spec-kit/lifecycle-engine/internal/persistence"
	"github.com/spec-kit/lifecycle-engine/internal/realtime"
	"github.com/spec-kit/lifecycle-engine/internal/repository"
	"github.com/spec-kit/lifecycle-engine/internal/repository/memory"
	"github.com/spec-kit/lifecycle-engine/internal/service"
	"github.com/spec-kit/lifecycle-engine/internal/worker"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Logger)
}

func newPostgres(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*persistence.Postgres, error) {
	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, persistence.DefaultMigrationsDir, logger); err != nil {
			pg.Close()
			return nil, err
		}
	}
	lc.Append(fx.StopHook(pg.Close))
	return pg, nil
}

func newRedis(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) *persistence.Redis {
	r := persistence.NewRedis(context.Background(), cfg.Redis, logger)
	lc.Append(fx.StopHook(r.Close))
	return r
}

// newStore picks postgres when a DSN is configured and the in-memory store otherwise.
// DEV_STAFF entries are upserted into whichever staff directory is active.
func newStore(cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) (repository.Store, error) {
	var store repository.Store
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.Pool)
	} else {
		store = memory.NewStore(memory.NewStaffDirectory())
	}
	seed, err := memory.ParseStaffSeed(cfg.Auth.DevStaff)
	if err != nil {
		return nil, err
	}
	for i := range seed {
		if err := store.Staff().Upsert(context.Background(), &seed[i]); err != nil {
			return nil, err
		}
	}
	if len(seed) > 0 {
		logger.Info("seeded staff directory", zap.Int("members", len(seed)))
	}
	return store, nil
}

func newStaffRepository(store repository.Store) repository.StaffRepository {
	return store.Staff()
}

func newStaffDirectory(staff repository.StaffRepository) repository.StaffDirectory {
	return staff
}

func newLocker(cfg *config.Config, r *persistence.Redis) locking.Locker {
	if cfg.Locking.Backend == "redis" && r.Enabled() {
		return locking.NewRedisLocker(r.Client, cfg.Locking.TTL())
	}
	return locking.NewKeyedMutex()
}

func newDependencies(
	cfg *config.Config,
	store repository.Store,
	locker locking.Locker,
	dispatcher events.Dispatcher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) service.Dependencies {
	return service.Dependencies{
		Store:      store,
		Locker:     locker,
		Machine:    lifecycle.NewMachine(cfg.Engine.AIAgentID),
		Clock:      clock.Real{},
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	}
}

func newSnoozePresets(cfg *config.Config) (*service.SnoozePresets, error) {
	loc, err := cfg.Snooze.Location()
	if err != nil {
		return nil, err
	}
	return service.NewSnoozePresets(loc), nil
}

func newScheduleService(cfg *config.Config, deps service.Dependencies, logger *zap.Logger) *service.ScheduleService {
	return service.NewScheduleService(deps, service.NewDeliverer(cfg.Notification, logger), cfg.Scheduler)
}

func newRelay(cfg *config.Config, r *persistence.Redis, hub *realtime.Hub, logger *zap.Logger) *realtime.RedisRelay {
	if !r.Enabled() {
		return nil
	}
	return realtime.NewRedisRelay(r.Client, cfg.Redis.Channel, hub, logger)
}

func newNotificationService(hub *realtime.Hub, relay *realtime.RedisRelay, logger *zap.Logger) *service.NotificationService {
	sinks := []service.EventSink{hub}
	if relay != nil {
		sinks = append(sinks, relay)
	}
	return service.NewNotificationService(logger, sinks...)
}

func newNotificationWorker(dispatcher events.Dispatcher, ns *service.NotificationService, logger *zap.Logger) *worker.NotificationWorker {
	return worker.NewNotificationWorker(dispatcher, ns, logger, 0)
}

func newSweeper(
	cfg *config.Config,
	lifecycleService *service.LifecycleService,
	schedule *service.ScheduleService,
	store repository.Store,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *worker.Sweeper {
	return worker.NewSweeper(worker.SweeperDependencies{
		Lifecycle: lifecycleService,
		Schedule:  schedule,
		Store:     store,
		Clock:     clock.Real{},
		Metrics:   metrics,
		Logger:    logger,
	}, cfg.Scheduler, cfg.Engine)
}

func newTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMinutes)
}

func newHealthHandler(cfg *config.Config, store repository.Store, r *persistence.Redis, metrics *observability.Metrics) *handlers.HealthHandler {
	redisProbe := handlers.Probe{Name: "redis"}
	if r.Enabled() {
		redisProbe.Check = r.Ping
	}
	return handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics,
		handlers.Probe{Name: "store", Check: store.Ping},
		redisProbe,
	)
}

func newFiberServer(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true, AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	return app
}

type routeParams struct {
	fx.In

	App        *fiber.App
	Health     *handlers.HealthHandler
	Tickets    *handlers.TicketsHandler
	Chat       *handlers.ChatHandler
	Scheduled  *handlers.ScheduledMessagesHandler
	Staff      *handlers.StaffHandler
	Hub        *realtime.Hub
	Middleware *auth.AuthMiddleware
}

func registerRoutes(p routeParams) {
	httptransport.RegisterRoutes(p.App, httptransport.RouteConfig{
		Health:         p.Health,
		Tickets:        p.Tickets,
		Chat:           p.Chat,
		Scheduled:      p.Scheduled,
		Staff:          p.Staff,
		Hub:            p.Hub,
		AuthMiddleware: p.Middleware,
	})
}

func startServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
				if err := app.Listen(cfg.App.Addr()); err != nil {
					logger.Fatal("fiber listen", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.ShutdownWithContext(ctx)
		},
	})
}

func startBackground(lc fx.Lifecycle, notifications *worker.NotificationWorker, sweeper *worker.Sweeper, relay *realtime.RedisRelay, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			notifications.Start()
			if relay != nil {
				go func() {
					if err := relay.Run(ctx); err != nil {
						logger.Error("event relay stopped", zap.Error(err))
					}
				}()
			}
			return sweeper.Start()
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := sweeper.Stop(stopCtx); err != nil {
				return err
			}
			return notifications.Stop(stopCtx)
		},
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			observability.NewMetrics,
			newPostgres,
			newRedis,
			newStore,
			newStaffRepository,
			newStaffDirectory,
			newLocker,
			events.NewInMemoryDispatcher,
			newDependencies,
			newSnoozePresets,
			service.NewLifecycleService,
			service.NewAssignmentService,
			service.NewEscalationService,
			service.NewMergeService,
			newScheduleService,
			service.NewStaffService,
			realtime.NewHub,
			newRelay,
			newNotificationService,
			newNotificationWorker,
			newSweeper,
			newTokenManager,
			auth.NewAuthMiddleware,
			newHealthHandler,
			handlers.NewTicketsHandler,
			handlers.NewChatHandler,
			handlers.NewScheduledMessagesHandler,
			handlers.NewStaffHandler,
			newFiberServer,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			registerRoutes,
			startServer,
			startBackground,
		),
	)

	app.Run()
}
