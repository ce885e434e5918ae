package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/meetingfeedback/ratings/pkg/database"
	"github.com/meetingfeedback/ratings/pkg/health"
	pkgkafka "github.com/meetingfeedback/ratings/pkg/kafka"
	"github.com/meetingfeedback/ratings/pkg/tracing"
	"github.com/meetingfeedback/ratings/services/rating/internal/bus"
	"github.com/meetingfeedback/ratings/services/rating/internal/composer"
	"github.com/meetingfeedback/ratings/services/rating/internal/config"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
	"github.com/meetingfeedback/ratings/services/rating/internal/event"
	handler "github.com/meetingfeedback/ratings/services/rating/internal/handler/http"
	"github.com/meetingfeedback/ratings/services/rating/internal/mail"
	"github.com/meetingfeedback/ratings/services/rating/internal/mail/graph"
	mockmail "github.com/meetingfeedback/ratings/services/rating/internal/mail/mock"
	"github.com/meetingfeedback/ratings/services/rating/internal/recorder"
	"github.com/meetingfeedback/ratings/services/rating/internal/repository"
	"github.com/meetingfeedback/ratings/services/rating/internal/repository/postgres"
	redisrepo "github.com/meetingfeedback/ratings/services/rating/internal/repository/redis"
	"github.com/meetingfeedback/ratings/services/rating/internal/service"
	"github.com/meetingfeedback/ratings/services/rating/migrations"
)

// ServiceName identifies the rating service in logs, metrics and traces.
const ServiceName = "rating-service"

// App wires together all dependencies and runs the rating service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumers      []*pkgkafka.Consumer
	ratingService  *service.RatingService
	tracerShutdown tracing.Shutdown
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources(context.Background())
		}
	}()

	// Tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracingConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Initialize PostgreSQL connection pool.
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.DBHost
	pgCfg.Port = cfg.DBPort
	pgCfg.User = cfg.DBUser
	pgCfg.Password = cfg.DBPassword
	pgCfg.DBName = cfg.DBName
	pgCfg.SSLMode = cfg.DBSSLMode

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
	)

	if cfg.RunMigrationsOnStart {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, err
		}
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)

	// Initialize Redis client.
	if cfg.RedisEnabled() {
		redisCfg, err := redisConfig(cfg)
		if err != nil {
			return nil, err
		}
		rdb, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
	}

	// Build the dependency graph.
	outcomeBus := bus.NewMemoryBus(logger)

	pgMeetings := postgres.NewMeetingRepository(pool, cfg.Location())
	ratingRepo := postgres.NewRatingRepository(pool)

	var meetings repository.MeetingRepository = pgMeetings
	var outcomes repository.OutcomeRepository
	if a.rdb != nil {
		meetings = redisrepo.NewMeetingCache(a.rdb, pgMeetings, cfg.MeetingCacheTTL, logger)

		outcomeStore := redisrepo.NewOutcomeStore(a.rdb, cfg.OutcomeTTL, logger)
		outcomeBus.Subscribe(outcomeStore.HandleOutcome)
		outcomes = outcomeStore
	}

	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		outcomeProducer := event.NewOutcomeProducer(a.producer, logger)
		outcomeBus.Subscribe(outcomeProducer.HandleOutcome)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	dispatcher := mail.NewDispatcher(
		newMailTransport(cfg, logger),
		mail.NewLimiter(cfg.MailRateLimit, cfg.MailRateBurst),
		logger,
	)
	reviewer := domain.Recipient{Name: cfg.SenderName, Address: cfg.SenderAddress}

	a.ratingService = service.NewRatingService(
		meetings,
		composer.New(reviewer),
		dispatcher,
		newRecorder(cfg, ratingRepo, logger),
		outcomeBus,
		logger,
	)
	meetingService := service.NewMeetingService(meetings, ratingRepo, outcomes, logger)

	// Kafka event consumers.
	if cfg.KafkaEnabled() {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

		var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
		if a.rdb != nil {
			store = pkgkafka.NewRedisIdempotencyStore(a.rdb, cfg.IdempotencyTTL)
		}
		submissions := event.NewSubmissionHandler(a.ratingService, logger)
		a.consumers = append(a.consumers,
			event.NewSubmissionConsumer(cfg.KafkaBrokers, submissions, store, a.dlq, logger),
		)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if a.rdb != nil {
		rdb := a.rdb
		healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		producer := a.producer
		healthHandler.RegisterOptional("kafka", producer.Ping)
	}

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:    ServiceName,
		CORSOrigins:    cfg.CORSOrigins,
		PprofCIDRs:     cfg.PprofCIDRs,
		RequestTimeout: cfg.RequestTimeout,
	}, a.ratingService, meetingService, healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("rating pipeline ready",
		slog.String("mail_transport", dispatcher.TransportName()),
		slog.String("recorder", cfg.RecorderBackend),
		slog.Bool("kafka", cfg.KafkaEnabled()),
		slog.Bool("redis", a.rdb != nil),
	)
	return a, nil
}

// Run starts the HTTP server and Kafka consumers, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	// Start Kafka consumers.
	for _, consumer := range a.consumers {
		go func() {
			if err := consumer.Start(ctx); err != nil {
				a.logger.Error("kafka consumer error",
					slog.String("topic", consumer.Topic()),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. In-flight submissions finish
// before the outcome producer and Redis are closed.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Close Kafka consumers.
	for _, consumer := range a.consumers {
		if err := consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.ratingService.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("rating service shutdown error", slog.String("error", err.Error()))
	}

	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	a.closeResources(shutdownCtx)

	a.logger.Info("application shutdown complete")
	return nil
}

// closeResources closes Redis, the Postgres pool and the tracer provider,
// skipping any that were never opened.
func (a *App) closeResources(ctx context.Context) {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}
}

func tracingConfig(cfg *config.Config) tracing.Config {
	tc := tracing.DefaultConfig(ServiceName)
	tc.Environment = cfg.Environment
	tc.OTLPEndpoint = cfg.OTELEndpoint
	tc.SampleRate = cfg.OTELSampleRate
	tc.Enabled = cfg.OTELEnabled
	return tc
}

func redisConfig(cfg *config.Config) (database.RedisConfig, error) {
	rc := database.DefaultRedisConfig()
	host, port, err := net.SplitHostPort(cfg.RedisAddr)
	if err != nil {
		return rc, fmt.Errorf("parse REDIS_ADDR %q: %w", cfg.RedisAddr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return rc, fmt.Errorf("parse REDIS_ADDR port %q: %w", port, err)
	}
	rc.Host = host
	rc.Port = p
	rc.Password = cfg.RedisPass
	rc.DB = cfg.RedisDB
	return rc, nil
}

func newMailTransport(cfg *config.Config, logger *slog.Logger) mail.Transport {
	if cfg.MailTransport == config.MailTransportGraph {
		return graph.NewTransport(
			graph.NewClient(logger),
			cfg.GraphBaseURL,
			graph.StaticToken(cfg.GraphAccessToken),
			logger,
		)
	}
	return mockmail.NewTransport(logger)
}

func newRecorder(cfg *config.Config, local service.RatingRecorder, logger *slog.Logger) service.RatingRecorder {
	if cfg.RecorderBackend == config.RecorderWebService {
		return recorder.NewWebServiceRecorder(recorder.NewClient(logger), cfg.RatingServiceURL, logger)
	}
	return local
}
