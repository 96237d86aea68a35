// Package bootstrap opens the infrastructure shared by the API server and the
// admin CLI: database pool, Redis client and the progress medium.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wellness-escape/vitality-hub/config"
	"github.com/wellness-escape/vitality-hub/internal/domain/catalog"
	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/persistence/memory"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/persistence/postgres"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/persistence/redis"
	"github.com/wellness-escape/vitality-hub/internal/infrastructure/persistence/resilient"
	"github.com/wellness-escape/vitality-hub/pkg/circuitbreaker"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
	"github.com/wellness-escape/vitality-hub/pkg/retry"
)

// Resources holds opened connections. Close releases them in reverse order.
type Resources struct {
	DB    *postgres.Connection
	Redis *goredis.Client

	// Medium is never nil: memory when no shared backend is configured.
	Medium progress.Medium

	// Breaker guards Medium for the redis and postgres backends.
	Breaker *circuitbreaker.CircuitBreaker

	closers []func()
}

// Close releases every opened connection.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Options tune Open.
type Options struct {
	// NeedDatabase forces a pool even when the backend does not use it.
	NeedDatabase bool

	// NeedRedis forces a client even when the backend does not use it.
	NeedRedis bool

	// OnBreakerChange is passed to the medium circuit breaker.
	OnBreakerChange func(name string, from, to circuitbreaker.State)
}

// Open connects what cfg asks for and builds the progress medium.
// Startup connections are retried with exponential backoff.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Resources, error) {
	res := &Resources{}

	backend := cfg.Progress.Backend
	needDB := opts.NeedDatabase || backend == config.BackendPostgres
	needRedis := opts.NeedRedis || backend == config.BackendRedis

	if needDB {
		db, err := connectPostgres(ctx, cfg.Database, log)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.DB = db
		res.closers = append(res.closers, db.Close)

		if cfg.Database.MigrateOnStart {
			applied, err := postgres.NewMigrator(db).Migrate(ctx)
			if err != nil {
				res.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			if len(applied) > 0 {
				log.Info("migrations applied", logger.Any("versions", applied))
			}
		}
	}

	if needRedis {
		client, err := connectRedis(ctx, cfg.Redis, log)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.Redis = client
		res.closers = append(res.closers, func() { _ = client.Close() })
	}

	switch backend {
	case config.BackendPostgres:
		res.Medium = res.guard(postgres.NewProgressMedium(res.DB), cfg.Progress, opts.OnBreakerChange)
	case config.BackendRedis:
		res.Medium = res.guard(redis.NewProgressMedium(res.Redis, cfg.Redis.KeyPrefix), cfg.Progress, opts.OnBreakerChange)
	default:
		res.Medium = memory.NewProgressMedium()
	}

	log.Info("progress medium ready", logger.String("backend", backend))
	return res, nil
}

func (r *Resources) guard(m progress.Medium, cfg config.ProgressConfig, onChange func(string, circuitbreaker.State, circuitbreaker.State)) progress.Medium {
	r.Breaker = circuitbreaker.ProgressMediumBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout, onChange)
	return resilient.Wrap(m, r.Breaker)
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*postgres.Connection, error) {
	settings := postgres.DefaultPoolSettings()
	settings.MaxConns = int32(cfg.MaxConns)
	settings.MinConns = int32(cfg.MinConns)
	settings.MaxConnLifetime = cfg.ConnMaxLifetime
	settings.MaxConnIdleTime = cfg.ConnMaxIdleTime

	r := retry.DatabaseRetrier(onRetry(log, "postgres"))
	if cfg.ConnectRetries > 0 {
		r = retry.New(
			retry.WithMaxAttempts(cfg.ConnectRetries),
			retry.WithInitialDelay(200*time.Millisecond),
			retry.WithMaxDelay(5*time.Second),
			retry.WithRetryIf(retry.RetryAll),
			retry.WithOnRetry(onRetry(log, "postgres")),
		)
	}

	var db *postgres.Connection
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		db, err = postgres.Connect(ctx, cfg.URL, settings)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.Info("database connection established")
	return db, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*goredis.Client, error) {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	rc.KeyPrefix = cfg.KeyPrefix
	rc.PoolSize = cfg.PoolSize
	rc.MinIdleConns = cfg.MinIdleConns
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout

	var client *goredis.Client
	err := retry.CacheRetrier(onRetry(log, "redis")).Do(ctx, func(ctx context.Context) error {
		var err error
		client, err = redis.NewClient(ctx, rc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("redis connection established", logger.String("addr", rc.Addr()))
	return client, nil
}

func onRetry(log *logger.Logger, target string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed",
			logger.String("target", target),
			logger.Int("attempt", attempt),
			logger.Err(err),
			logger.Duration("retry_in", delay),
		)
	}
}

// LoadCatalog reads program content from path, or the embedded program when
// path is empty. An invalid catalog is fatal to the caller.
func LoadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.LoadDefault()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return catalog.Load(f)
}

// NewLogger builds the process logger from observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.Observability.LogFormat == string(logger.FormatConsole) {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)
}
