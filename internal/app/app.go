// Package app builds the generation stack from configuration. The api, worker and
// cleanup binaries share it so they agree on backends and key layout.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/scene.cheap/internal/archive"
	"github.com/abdul-hamid-achik/scene.cheap/internal/cache"
	"github.com/abdul-hamid-achik/scene.cheap/internal/config"
	"github.com/abdul-hamid-achik/scene.cheap/internal/generation"
	"github.com/abdul-hamid-achik/scene.cheap/internal/health"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/metrics"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/orchestrator"
	"github.com/abdul-hamid-achik/scene.cheap/internal/phase"
	"github.com/abdul-hamid-achik/scene.cheap/internal/provider"
	"github.com/abdul-hamid-achik/scene.cheap/internal/storage"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
	"github.com/abdul-hamid-achik/scene.cheap/internal/webhook"
	"github.com/abdul-hamid-achik/scene.cheap/internal/worker"
)

var ErrRedisRequired = errors.New("app: REDIS_URL is required")

// App holds the connections and services one process needs. Optional backends are
// nil when not configured.
type App struct {
	Config   *config.Config
	Redis    redis.UniversalClient
	Pool     *pgxpool.Pool
	NATS     *nats.Conn
	Store    cache.Store
	Objects  storage.Storage
	Archive  *archive.Archiver
	Broker   *broker.RedisStreamsBroker
	Breaker  *provider.Breaker
	Service  *generation.Service
	Health   *health.Checker
	Notifier *webhook.Notifier

	closers []func()
}

type Options struct {
	// Role is reported in app info metrics and the NATS connection name.
	Role string
	// WorkerID names this process to the job-queue broker.
	WorkerID string
	// SkipProvider builds the stores without a provider; cleanup only needs the cache.
	SkipProvider bool
}

// New connects every configured backend. On error the connections made so far are
// closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Health: health.NewChecker()}
	if err := a.connect(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context, opts Options) error {
	cfg := a.Config
	log := logger.Default()

	if cfg.RedisURL != "" {
		log.Info("connecting to redis")
		redisOpt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpt)
		a.closers = append(a.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Redis = client
		a.Health.WithRedis(client)

		if opts.WorkerID != "" {
			a.Broker = broker.NewRedisStreamsBroker(client, broker.WithWorkerID(opts.WorkerID))
		} else {
			a.Broker = broker.NewRedisStreamsBroker(client)
		}
		log.Info("broker initialized")
	}

	if cfg.DatabaseURL != "" {
		log.Info("connecting to database")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		a.Pool = pool
		a.Health.WithDatabase(pool)
		log.Info("database connected")
	}

	store, err := a.buildStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	if cfg.MinIOConfigured() {
		log.Info("connecting to object storage")
		objects, err := storage.NewMinIOStorage(&storage.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure bucket: %w", err)
		}
		a.Objects = metrics.NewInstrumentedStorage(objects)
		a.Archive = archive.New(a.Objects, archive.DefaultLinkExpiry)
		a.Health.WithStorage(objects)
		log.Info("object storage connected", "bucket", cfg.MinIOBucket)
	}

	if cfg.NATSURL != "" {
		conn, err := stream.ConnectNATS(cfg.NATSURL, "scene-"+opts.Role)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		a.NATS = conn
		a.Health.WithNATS(conn)
		log.Info("nats connected", "url", cfg.NATSURL)
	}

	if opts.SkipProvider {
		return nil
	}

	gen, err := a.buildProvider(ctx)
	if err != nil {
		return err
	}
	a.Breaker = provider.NewBreaker(gen, cfg.BreakerThreshold, cfg.BreakerTimeout)
	a.Breaker.OnStateChange = metrics.SetBreakerState
	metrics.SetBreakerState(a.Breaker.State())
	a.Health.Add("provider", func(context.Context) error {
		if a.Breaker.State() != "closed" {
			return fmt.Errorf("%w: circuit %s", health.ErrDegraded, a.Breaker.State())
		}
		return nil
	})

	a.Service = a.buildService(log)
	return nil
}

func (a *App) buildStore(ctx context.Context) (cache.Store, error) {
	cfg := a.Config
	var store cache.Store
	switch cfg.CacheBackend {
	case config.BackendMemory:
		store = cache.NewMemoryStore()
	case config.BackendRedis:
		if a.Redis == nil {
			return nil, fmt.Errorf("%w for CACHE_BACKEND=redis", ErrRedisRequired)
		}
		store = cache.NewRedisStore(a.Redis)
	case config.BackendPostgres:
		if a.Pool == nil {
			return nil, fmt.Errorf("DATABASE_URL is required for CACHE_BACKEND=postgres")
		}
		pg := cache.NewPostgresStore(a.Pool)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate job tables: %w", err)
		}
		store = pg
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
	return metrics.NewInstrumentedCache(store, cfg.CacheBackend), nil
}

func (a *App) buildProvider(ctx context.Context) (provider.Generator, error) {
	cfg := a.Config
	switch cfg.Provider {
	case config.ProviderFake:
		logger.Default().Warn("using fake provider; results are synthetic")
		return provider.NewFake(), nil
	case config.ProviderGemini:
		g, err := provider.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = g.Close() })
		return g, nil
	default:
		return nil, fmt.Errorf("unknown PROVIDER %q", cfg.Provider)
	}
}

func (a *App) buildService(log *slog.Logger) *generation.Service {
	cfg := a.Config
	pcfg := phase.Config{
		Policy:      cfg.RetryPolicy(),
		CallTimeout: cfg.ProviderCallTimeout,
		Model:       cfg.GeminiModel,
	}
	orch := orchestrator.New(orchestrator.Deps{
		Analyzer:   phase.NewAnalyzer(a.Breaker, pcfg),
		Characters: phase.NewCharacterExtractor(a.Breaker, pcfg),
		Scenes:     phase.NewSceneGenerator(a.Breaker, pcfg),
		Cache:      a.Store,
		IDs:        model.UUIDGenerator{},
		JobTTL:     cfg.JobTTL,
	},
		orchestrator.WithDebug(cfg.LogLevel == "debug"),
		orchestrator.WithLimits(cfg.DefaultBatchSize, cfg.MaxSceneCount),
	)

	a.Notifier = webhook.NewNotifier(cfg.WebhookSecret)
	hooks := []generation.Hook{a.Notifier.Notify}
	if a.Archive != nil {
		hooks = append(hooks, a.Archive.Hook)
	}

	svcOpts := []generation.Option{generation.WithHooks(hooks...)}
	if a.Redis != nil {
		svcOpts = append(svcOpts,
			generation.WithRedis(a.Redis),
			generation.WithQueue(worker.NewEnqueuer(a.Broker, a.Redis)),
		)
	} else {
		log.Warn("REDIS_URL not set; async runs and event replay are disabled")
	}
	if a.NATS != nil {
		conn := a.NATS
		svcOpts = append(svcOpts, generation.WithSinks(func(ctx context.Context, jobID string) stream.Sink {
			return stream.NewNATSSink(conn, jobID)
		}))
	}
	return generation.NewService(orch, a.Store, svcOpts...)
}

// EventSink records a worker run's frames in Redis for API followers.
func (a *App) EventSink(jobID string) stream.Sink {
	if a.Redis == nil {
		return stream.Discard
	}
	return stream.NewRedisSink(a.Redis, jobID).WithTTL(a.Config.JobTTL)
}

// EventReader is nil without Redis.
func (a *App) EventReader() *stream.RedisReader {
	if a.Redis == nil {
		return nil
	}
	return stream.NewRedisReader(a.Redis)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
