// Package main - точка входа HTTP API Vitality Hub.
//
// Сервер отдаёт программу, недели, уроки и дашборд, принимает команды
// прогресса и публикует доменные события в шину. Прогресс пишется в
// выбранный носитель (memory, redis, postgres); при его недоступности
// ответы продолжают строиться из памяти.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wellness-escape/vitality-hub/config"
	"github.com/wellness-escape/vitality-hub/internal/application/command"
	"github.com/wellness-escape/vitality-hub/internal/application/query"
	"github.com/wellness-escape/vitality-hub/internal/bootstrap"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/progression"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/identity"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/messaging"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/metrics"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/persistence/postgres"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/persistence/redis"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/scheduler"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/wellness-escape/vitality-hub/internal/interface/http"
	"github.com/wellness-escape/vitality-hub/internal/interface/http/handlers"
	"github.com/wellness-escape/vitality-hub/pkg/circuitbreaker"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
	"github.com/wellness-escape/vitality-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// eventBus - шина, которую можно закрыть при остановке.
type eventBus interface {
	shared.EventBus
	Close() error
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	timeutil.SetLocation(cfg.App.Location)

	log.Info("starting Vitality Hub API",
		logger.String("backend", cfg.Progress.Backend),
		logger.String("timezone", cfg.App.Timezone),
		logger.Bool("sequential_unlock", cfg.Features.SequentialUnlock()),
		logger.Bool("habit_tracking", cfg.Features.HabitTracking()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. КАТАЛОГ (невалидный контент - фатально)
	// ─────────────────────────────────────────────────────────────────────────
	cat, err := bootstrap.LoadCatalog(cfg.Progress.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	prog := cat.Program()
	log.Info("catalog loaded",
		logger.String("program", prog.ID),
		logger.String("version", prog.Version),
		logger.Int("sessions", cat.SessionCount()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. МЕТРИКИ И ИНФРАСТРУКТУРА
	// ─────────────────────────────────────────────────────────────────────────
	m := metrics.New()

	res, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{
		NeedDatabase:    cfg.Features.EntitlementLookup() || cfg.Database.URL != "",
		NeedRedis:       cfg.Redis.EventRelay || (cfg.Features.EntitlementLookup() && cfg.Redis.EntitlementCacheTTL > 0),
		OnBreakerChange: breakerObserver(m, log),
	})
	if err != nil {
		return err
	}
	defer res.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ХРАНИЛИЩЕ ПРОГРЕССА
	// ─────────────────────────────────────────────────────────────────────────
	storeLog := log.With(logger.Component("progress"))
	store := progress.NewStore(res.Medium,
		progress.WithTimeout(cfg.Progress.MediumTimeout),
		progress.WithFailureHandler(func(op progress.Op, key string, err error) {
			m.MediumFailure(op)
			if errors.Is(err, shared.ErrCorruptData) {
				storeLog.Error("corrupt progress value replaced by default", logger.StorageKey(key), logger.Err(err))
				return
			}
			storeLog.Warn("progress medium failure", logger.String("op", string(op)), logger.StorageKey(key), logger.Err(err))
		}),
	)
	m.TrackPending(store)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	bus, err := newEventBus(cfg, res, log)
	if err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("event bus close failed", logger.Err(err))
		}
	}()

	if err := messaging.AuditLog(bus, log); err != nil {
		return fmt.Errorf("failed to subscribe audit log: %w", err)
	}
	if err := m.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe metrics: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИДЕНТИФИКАЦИЯ И ДОСТУП
	// ─────────────────────────────────────────────────────────────────────────
	entitlements := newEntitlements(cfg, res, log)

	identityProvider, err := newIdentity(cfg, entitlements, log)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПРИЛОЖЕНИЕ: НАВИГАТОР И КОМАНДЫ
	// ─────────────────────────────────────────────────────────────────────────
	gate := progression.NewGate(cat, cfg.Features.SequentialUnlock())

	navigator := query.NewNavigator(cat, store, gate, query.NavigatorConfig{
		SchedulingURL: cfg.Scheduling.URL,
		HabitTracking: cfg.Features.HabitTracking(),
	})

	commands := command.NewHandlers(command.Deps{
		Catalog:   cat,
		Store:     store,
		Gate:      gate,
		Publisher: bus,
		Logger:    log.With(logger.Component("commands")),
		Denials:   m,
	}, cfg.Features.HabitTracking())

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("catalog", func(context.Context) error {
		if cat.SessionCount() == 0 {
			return errors.New("catalog has no sessions")
		}
		return nil
	})
	health.AddNonCriticalCheck("progress_medium", handlers.NewPingCheck(store))
	if res.DB != nil && cfg.Features.EntitlementLookup() {
		health.AddCheck("postgres", handlers.NewPingCheck(res.DB))
	}

	deps := httpserver.Dependencies{
		Navigator:     navigator,
		Commands:      commands,
		Requests:      m,
		HealthChecker: health,
		Logger:        log.With(logger.Component("http")),
	}
	if cfg.Observability.MetricsEnabled {
		deps.MetricsHandler = m.Handler()
	}
	if identityProvider != nil {
		deps.Identity = identityProvider
	}
	if len(cfg.Auth.AdminAPIKeyHashes) > 0 {
		adminAuth, err := handlers.NewAPIKeyAuth(cfg.Auth.APIKeyHeader, cfg.Auth.AdminAPIKeyHashes)
		if err != nil {
			return fmt.Errorf("failed to configure admin auth: %w", err)
		}
		deps.AdminAuth = adminAuth
		if entitlements != nil {
			deps.Entitlements = entitlements
		}
	}

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeyHeader = cfg.Auth.APIKeyHeader
	serverCfg.ProgramID = prog.ID
	serverCfg.Version = cfg.App.Version

	server := httpserver.NewServer(serverCfg, deps)
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ФОНОВАЯ ДОЗАПИСЬ ПРОГРЕССА
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:   log,
		OnResult: m.JobFinished,
	})
	if cfg.Progress.FlushInterval > 0 && cfg.Progress.Backend != config.BackendMemory {
		every, err := scheduler.Every(cfg.Progress.FlushInterval)
		if err != nil {
			return fmt.Errorf("invalid PROGRESS_FLUSH_INTERVAL: %w", err)
		}
		if err := sched.Register(jobs.NewFlushProgressJob(store, m, storeLog), every); err != nil {
			return fmt.Errorf("failed to register flush job: %w", err)
		}
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Vitality Hub API is running", logger.String("http_address", server.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", logger.Err(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", logger.Err(err))
	}

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		shutdownErr = err
	}

	// Последняя попытка записать то, что осталось в памяти
	if n := store.Flush(shutdownCtx); n > 0 {
		m.Flushed(n)
		log.Info("pending progress flushed", logger.Int("keys", n))
	}
	if left := store.Pending(); left > 0 {
		log.Error("progress lost on shutdown", logger.Int("keys", left))
	}

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// newEventBus - локальная шина или ретрансляция через Redis pub/sub.
func newEventBus(cfg *config.Config, res *bootstrap.Resources, log *logger.Logger) (eventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.AsyncMode = true
	local.Logger = log

	if !cfg.Redis.EventRelay || res.Redis == nil {
		return messaging.NewInMemoryEventBus(local), nil
	}

	return messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         messaging.NewGoRedisClient(res.Redis),
		ChannelName:    cfg.Redis.EventChannel,
		LocalBusConfig: local,
		Logger:         log,
	})
}

// entitlementStore - покупки: PostgreSQL, возможно за кешем Redis.
type entitlementStore interface {
	identity.EntitlementSource
	httpserver.EntitlementAdmin
}

// newEntitlements возвращает nil без базы данных.
func newEntitlements(cfg *config.Config, res *bootstrap.Resources, log *logger.Logger) entitlementStore {
	if res.DB == nil {
		return nil
	}
	repo := postgres.NewEntitlementRepository(res.DB)
	if res.Redis == nil || cfg.Redis.EntitlementCacheTTL <= 0 {
		return repo
	}

	cacheLog := log.With(logger.Component("entitlement_cache"))
	cache := redis.NewEntitlementCache(res.Redis, repo, cfg.Redis.KeyPrefix, cfg.Redis.EntitlementCacheTTL)
	cache.OnError(func(op string, err error) {
		cacheLog.Warn("entitlement cache unavailable", logger.Operation(op), logger.Err(err))
	})
	return cache
}

// newIdentity возвращает nil без секрета: тогда все запросы анонимны.
func newIdentity(cfg *config.Config, entitlements entitlementStore, log *logger.Logger) (*identity.JWTProvider, error) {
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty: every request is anonymous")
		return nil, nil
	}

	opts := []identity.Option{identity.WithTTL(cfg.Auth.TokenTTL)}
	if cfg.Auth.JWTIssuer != "" {
		opts = append(opts, identity.WithIssuer(cfg.Auth.JWTIssuer))
	}
	if cfg.Features.EntitlementLookup() && entitlements != nil {
		idLog := log.With(logger.Component("identity"))
		opts = append(opts, identity.WithEntitlements(entitlements, func(user shared.UserID, err error) {
			idLog.Warn("entitlement lookup failed, using token claim", logger.UserID(user.String()), logger.Err(err))
		}))
	}

	p, err := identity.NewJWTProvider(cfg.Auth.JWTSecret, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure identity: %w", err)
	}
	return p, nil
}

func breakerObserver(m *metrics.Metrics, log *logger.Logger) func(string, circuitbreaker.State, circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		m.BreakerStateChanged(name, from, to)
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
}
