package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"payhook/internal/billingrequest"
	"payhook/internal/config"
	"payhook/internal/constants"
	"payhook/internal/ledger"
	"payhook/internal/logger"
	"payhook/internal/notify"
	"payhook/internal/regions"
	"payhook/internal/router"
	"payhook/internal/webhook"
	"payhook/pkg/bootstrap"
	"payhook/pkg/health"
	"payhook/pkg/logging"
	"payhook/pkg/metrics"
	"payhook/pkg/middleware"
	"payhook/pkg/ratelimit"
	"payhook/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	ledgerRepo     *ledger.CircuitBreakerRepository
	router         *router.Router
	notifier       notify.Notifier
	webhookHandler *webhook.Handler
	engine         *gin.Engine
	server         *http.Server
	tracerProvider *tracing.TracerProvider
	cancelLimiter  context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	if err := a.InitBroker(constants.ServiceName, true); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initEngine(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP engine: %w", err)
	}

	a.initServer()
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db
	a.ledgerRepo = ledger.NewCircuitBreakerRepository(ledger.NewRepository(db), a.Config.CircuitBreaker)
	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	return nil
}

func (a *App) initRouter() error {
	resolver, err := regions.NewResolver(a.Config.Regions, a.Config.App.DefaultRegion, regions.HTTPFactory(a.Config.CircuitBreaker))
	if err != nil {
		return err
	}

	rules, err := router.CompileRules(a.Config.Routing.IgnoreRules)
	if err != nil {
		return err
	}

	var locker ledger.Locker = ledger.NewMemoryLocker()
	if a.redis != nil {
		locker = ledger.NewRedisLocker(a.redis)
	}

	ledgerSvc := ledger.NewService(a.ledgerRepo, a.Logger, a.Config.App.IsProduction(), a.Config.Routing.RetryErroredEvents)
	a.notifier = notify.New(a.Producer, a.Config.Broker, a.Logger)

	a.router = router.New(ledgerSvc, locker, resolver, rules, a.notifier, router.ConfigFrom(a.Config), a.Logger)

	builder := billingrequest.NewBuilder(resolver, a.Config.Billing, a.Logger)
	handler := webhook.NewHandler(a.router, ledgerSvc, builder, resolver, a.Config.Regions, a.Logger,
		webhook.WithMaxBodyBytes(a.Config.Server.MaxBodyBytes),
	)

	a.webhookHandler = handler
	return nil
}

func (a *App) initEngine(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if a.Config.Tracing.Enabled {
		engine.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	engine.Use(middleware.RecoveryMiddleware(a.Logger))
	engine.Use(middleware.LoggerMiddleware(a.Logger))
	engine.Use(middleware.RequestIDMiddleware())

	maxBody := a.Config.Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = constants.DefaultMaxBodyBytes
	}
	engine.Use(middleware.BodyLimitMiddleware(maxBody))

	var limit gin.HandlerFunc
	if a.Config.RateLimit.Enabled {
		limiterCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.cancelLimiter = cancel
		rateLimitConfig := ratelimit.FromConfig(a.Config.RateLimit)
		limit = ratelimit.RateLimitMiddleware(limiterCtx, rateLimitConfig)
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	a.webhookHandler.RegisterRoutes(engine, limit)

	metrics.RegisterWebhookMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterCircuitBreakerMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redis != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	healthRegistry.RegisterOptional(health.NewFuncChecker("ledger_circuit_breaker", func(ctx context.Context) error {
		if state := a.ledgerRepo.State(); state == "open" {
			return fmt.Errorf("ledger circuit breaker is %s", state)
		}
		return nil
	}))

	engine.GET("/health", healthRegistry.Handler())

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.engine = engine
	return nil
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.engine,
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeoutSeconds) * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if a.Consumer != nil {
		topic := a.Config.Broker.Kafka.ReplayTopic
		if topic == "" {
			topic = constants.DefaultReplayTopic
		}
		g.Go(func() error {
			replayCtx := logging.WithServiceName(gCtx, constants.ServiceName)
			a.Logger.InfowCtx(replayCtx, "Starting replay consumer", "topic", topic)
			return a.Consumer.Consume(gCtx, topic, a.router.ReplayHandler())
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down payhook service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.cancelLimiter != nil {
			a.cancelLimiter()
		}

		if kn, ok := a.notifier.(*notify.KafkaNotifier); ok {
			alertCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := kn.Wait(alertCtx); err != nil {
				errs = append(errs, fmt.Errorf("pending alerts not flushed: %w", err))
			}
		}

		if a.tracerProvider != nil {
			tracerCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.tracerProvider.Shutdown(tracerCtx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
