package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	_ "github.com/lib/pq" // PostgreSQL driver

	"relay/internal/broker"
	"relay/internal/config"
	"relay/internal/constants"
	"relay/internal/dedup"
	"relay/internal/delivery"
	"relay/internal/history"
	"relay/internal/ingest"
	"relay/internal/logger"
	"relay/internal/matching"
	"relay/internal/pipeline"
	"relay/internal/rules"
	"relay/pkg/bootstrap"
	"relay/pkg/circuitbreaker"
	"relay/pkg/health"
	"relay/pkg/logging"
	"relay/pkg/metrics"
	"relay/pkg/middleware"
	"relay/pkg/retry"
	"relay/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	tracerProvider *tracing.TracerProvider

	historyRepo history.Repository
	processor   *ingest.Processor
	consumer    broker.Consumer
	producer    broker.Producer

	server *http.Server
	router *gin.Engine
	wg     sync.WaitGroup
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.config.Tracing, "ingest-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.config.Database.RunMigrations {
		if err := bootstrap.RunMigrations(a.db, a.config.Database.MigrationsPath); err != nil {
			return err
		}
		a.logger.InfowCtx(ctx, "Migrations applied")
	}

	if a.config.Dedup.Enabled {
		client, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return fmt.Errorf("dedup enabled but redis unavailable: %w", err)
		}
		a.redisClient = client
	}

	return nil
}

func (a *App) initPipeline(ctx context.Context) error {
	metrics.RegisterPipelineMetrics()

	ruleRepo := rules.NewRepository(a.db)
	a.historyRepo = history.NewRepository(a.db)
	recorder := history.NewRecorder(a.historyRepo, a.logger)
	matcher := matching.New(a.logger)

	engine := delivery.NewEngine(
		time.Duration(a.config.Delivery.TimeoutSeconds)*time.Second,
		a.retryPolicy(),
		a.logger,
	)

	var deliverer delivery.Deliverer = engine
	if a.config.Delivery.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
		deliverer = delivery.NewBreakerDeliverer(engine, a.breakerConfig(), a.logger)
		a.logger.InfowCtx(ctx, "Delivery circuit breaker enabled")
	}

	orchestrator := pipeline.NewOrchestrator(ruleRepo, matcher, deliverer, recorder, a.logger)

	var guard dedup.Guard = dedup.AllowAll{}
	if a.config.Dedup.Enabled {
		guard = dedup.NewRedisGuard(
			a.redisClient,
			time.Duration(a.config.Dedup.TTLSeconds)*time.Second,
			a.config.Dedup.OnRedisError,
			a.logger,
		)
		a.logger.InfowCtx(ctx, "Inbound dedup enabled", "ttl_seconds", a.config.Dedup.TTLSeconds)
	}

	a.processor = ingest.NewProcessor(guard, orchestrator, a.logger)

	if a.config.Broker.Type == "kafka" {
		metrics.RegisterBrokerMetrics()

		if a.config.Broker.Kafka.OutcomeTopic != "" {
			producer, err := broker.NewProducer(a.config.Broker, a.logger)
			if err != nil {
				return err
			}
			a.producer = producer
			a.processor.WithOutcomeProducer(producer, a.config.Broker.Kafka.OutcomeTopic)
		}

		if a.config.Broker.Kafka.InputTopic != "" {
			consumer, err := broker.NewConsumer(a.config.Broker, a.logger)
			if err != nil {
				return err
			}
			a.consumer = consumer
		}
	}

	return nil
}

func (a *App) retryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	cfg := a.config.Delivery.Retry

	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.MaxElapsedTime
	}

	return policy
}

func (a *App) breakerConfig() func(name string) circuitbreaker.Config {
	cb := a.config.Delivery.CircuitBreaker

	return func(name string) circuitbreaker.Config {
		cfg := circuitbreaker.DefaultConfig(name)
		if cb.MaxRequests > 0 {
			cfg.MaxRequests = cb.MaxRequests
		}
		if cb.Interval > 0 {
			cfg.Interval = cb.Interval
		}
		if cb.Timeout > 0 {
			cfg.Timeout = cb.Timeout
		}
		if cb.FailureRatio > 0 && cb.MinRequests > 0 {
			ratio := cb.FailureRatio
			minRequests := cb.MinRequests
			cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= minRequests && failureRatio >= ratio
			}
		}
		return cfg
	}
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("ingest-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	handler := ingest.NewHandler(a.processor, a.logger)
	handler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Server.Port),
		Handler: a.router,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	if a.consumer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			topic := a.config.Broker.Kafka.InputTopic
			err := a.consumer.Consume(ctx, topic, func(msgCtx context.Context, raw broker.RawEvent) error {
				_, err := a.processor.ProcessRaw(msgCtx, raw)
				return err
			})
			if err != nil && ctx.Err() == nil {
				a.logger.ErrorwCtx(ctx, "Kafka consumer stopped", "error", err, "topic", topic)
			}
		}()
	}

	a.startHistoryTrimmer(ctx)

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// startHistoryTrimmer periodically drops everything but the most recent
// retention_keep history rows. Disabled when trim_interval_seconds is zero.
func (a *App) startHistoryTrimmer(ctx context.Context) {
	interval := time.Duration(a.config.History.TrimIntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}

	keep := a.config.History.RetentionKeep
	if keep <= 0 {
		keep = constants.DefaultRetentionKeep
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := a.historyRepo.Trim(ctx, keep)
				if err != nil {
					a.logger.ErrorwCtx(ctx, "History trim failed", "error", err)
					continue
				}
				if removed > 0 {
					a.logger.InfowCtx(ctx, "History trimmed", "removed", removed, "keep", keep)
				}
			}
		}
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, "ingest-service")
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	a.wg.Wait()

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(a.redisClient, a.db)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
