package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	eventapp "github.com/stayops/backend/internal/application/event"
	ledgerapp "github.com/stayops/backend/internal/application/ledger"
	"github.com/stayops/backend/internal/application/monitoring"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/cache"
	"github.com/stayops/backend/internal/infrastructure/config"
	"github.com/stayops/backend/internal/infrastructure/event"
	"github.com/stayops/backend/internal/infrastructure/logger"
	"github.com/stayops/backend/internal/infrastructure/persistence"
	"github.com/stayops/backend/internal/infrastructure/persistence/tenant"
	"github.com/stayops/backend/internal/infrastructure/queue"
	"github.com/stayops/backend/internal/infrastructure/resilience"
	"github.com/stayops/backend/internal/infrastructure/scheduler"
	"github.com/stayops/backend/internal/infrastructure/telemetry"
	"github.com/stayops/backend/internal/interfaces/http/handler"
	"github.com/stayops/backend/internal/interfaces/http/middleware"
	"github.com/stayops/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			StayOps Ledger API
//	@version		1.0
//	@description	Multi-tenant cash ledger service: per-property daily cash balances with transaction approval, balance chain validation and automated repair.
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support
//	@contact.url	https://github.com/stayops/backend
//	@contact.email	support@stayops.example.com

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	TenantID
//	@in							header
//	@name						X-Tenant-ID
//	@description				Tenant scoping header. Every ledger request runs in the context of exactly one tenant.

//	@externalDocs.description	OpenAPI
//	@externalDocs.url			https://swagger.io/resources/open-api/

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting StayOps Ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("storage_mode", cfg.Storage.Mode()),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize OpenTelemetry providers. Telemetry is best-effort: a missing
	// collector degrades to no-op providers instead of blocking startup.
	var tracerProvider *telemetry.TracerProvider
	var meterProvider *telemetry.MeterProvider
	if cfg.Telemetry.Enabled {
		tracerProvider, err = telemetry.NewTracerProvider(context.Background(), telemetry.Config{
			Enabled:           cfg.Telemetry.Enabled,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			SamplingRatio:     cfg.Telemetry.SamplingRatio,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			log.Warn("Failed to initialize tracer provider", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tracerProvider.Shutdown(ctx); err != nil {
					log.Error("Error shutting down tracer provider", zap.Error(err))
				}
			}()
		}

		meterProvider, err = telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
			Enabled:           cfg.Telemetry.Enabled,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			log.Warn("Failed to initialize meter provider", zap.Error(err))
			meterProvider = nil
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := meterProvider.Shutdown(ctx); err != nil {
					log.Error("Error shutting down meter provider", zap.Error(err))
				}
			}()
		}
	}

	// Continuous profiling via Pyroscope (optional)
	if cfg.Telemetry.ProfilingEnabled {
		profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
			Enabled:             true,
			ServerAddress:       cfg.Telemetry.ProfilingAddress,
			ApplicationName:     cfg.Telemetry.ServiceName,
			ProfileCPU:          true,
			ProfileAllocObjects: true,
			ProfileAllocSpace:   true,
			ProfileInuseObjects: true,
			ProfileInuseSpace:   true,
			ProfileGoroutines:   true,
		}, log)
		if err != nil {
			log.Warn("Failed to start profiler", zap.Error(err))
		} else {
			defer func() {
				if err := profiler.Stop(); err != nil {
					log.Error("Error stopping profiler", zap.Error(err))
				}
			}()
		}
	}

	// Install GORM observability plugins
	if tracerProvider != nil && cfg.Telemetry.DBTraceEnabled {
		tracingPlugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := tracingPlugin.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to install database tracing plugin", zap.Error(err))
		}
	}
	if meterProvider != nil {
		dbMetrics, err := telemetry.NewDBMetrics(meterProvider.Meter("gorm"), telemetry.DBMetricsConfig{
			SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err != nil {
			log.Warn("Failed to initialize database metrics", zap.Error(err))
		} else if err := db.DB.Use(telemetry.NewDBMetricsPlugin(dbMetrics, log)); err != nil {
			log.Warn("Failed to install database metrics plugin", zap.Error(err))
		}
	}

	// Tenant guard rail: request-scoped queries on tenant-owned tables that
	// carry no tenant predicate get one injected from the request context.
	// Background workers run without a tenant in context and are unaffected.
	tenant.EnableAutoTenantFilter(db.DB, false)

	// Connect Redis. The ledger stays fully functional without it: report
	// caching drops to L1-only and idempotency falls back to process memory,
	// so a Redis outage degrades latency, never correctness.
	var redisClient *redis.Client
	{
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Warn("Redis unreachable, running degraded", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
			_ = client.Close()
		} else {
			redisClient = client
			defer func() {
				if err := redisClient.Close(); err != nil {
					log.Error("Error closing redis client", zap.Error(err))
				}
			}()
			log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
		}
		cancel()
	}

	// Circuit breaker registry. Breaker state is surfaced on the status
	// endpoint and exported as a gauge.
	breakers := resilience.NewRegistry()
	breakerConfig := resilience.Config{
		FailureThreshold:  cfg.Breaker.FailureThreshold,
		SuccessThreshold:  cfg.Breaker.SuccessThreshold,
		OpenDuration:      cfg.Breaker.OpenDuration,
		HalfOpenMaxProbes: cfg.Breaker.HalfOpenMax,
	}

	// Initialize ledger stores for both physical layouts
	legacyTxnStore := persistence.NewLegacyTransactionStore(db.DB)
	partitionedTxnStore := persistence.NewPartitionedTransactionStore(db.DB)
	legacyBalanceStore := persistence.NewLegacyBalanceStore(db.DB)
	partitionedBalanceStore := persistence.NewPartitionedBalanceStore(db.DB)
	propertyRepo := persistence.NewGormPropertyRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	correctionQueue := queue.NewGormCorrectionQueue(db.DB)
	jobRepo := scheduler.NewLedgerJobRepository(db.DB)

	// Initialize event serializer and register all event types
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)

	// Create outbox publisher for transactional event saving
	outboxPublisher := event.NewOutboxPublisher(eventSerializer)

	// Inject outbox publisher into the stores so domain events commit
	// atomically with the rows that produced them
	legacyTxnStore.SetOutboxEventSaver(outboxPublisher)
	partitionedTxnStore.SetOutboxEventSaver(outboxPublisher)
	legacyBalanceStore.SetOutboxEventSaver(outboxPublisher)
	partitionedBalanceStore.SetOutboxEventSaver(outboxPublisher)

	// Route reads and writes across the legacy and partitioned layouts
	routeMode := persistence.RouteMode(cfg.Storage.Mode())
	txnRepo := persistence.NewTransactionStoreRouter(routeMode, partitionedTxnStore, legacyTxnStore)
	balanceRepo := persistence.NewBalanceStoreRouter(routeMode, partitionedBalanceStore, legacyBalanceStore)
	log.Info("Ledger store router initialized", zap.String("mode", string(routeMode)))

	partitionManager := persistence.NewPartitionManager(db.DB, cfg.Storage)

	// Ledger calendar pins "today" to the business timezone
	calendar, err := ledger.NewCalendar(cfg.Ledger.Timezone)
	if err != nil {
		log.Fatal("Failed to load ledger timezone", zap.String("timezone", cfg.Ledger.Timezone), zap.Error(err))
	}
	chainValidator := ledger.NewChainValidator(cfg.Ledger.DiscrepancyToleranceCents)

	// Tiered report cache: L1 process memory, L2 shared Redis, optional L3
	cacheConfig := ledger.DefaultReportCacheConfig()
	if cfg.Cache.MemoryTTL > 0 {
		cacheConfig.L1TTL = cfg.Cache.MemoryTTL
	}
	if cfg.Cache.MemoryMaxEntries > 0 {
		cacheConfig.L1MaxEntries = cfg.Cache.MemoryMaxEntries
	}
	if cfg.Cache.RedisTTL > 0 {
		cacheConfig.DailyTTL = cfg.Cache.RedisTTL
	}
	if cfg.Cache.InvalidationChannel != "" {
		cacheConfig.PubSubChannel = cfg.Cache.InvalidationChannel
	}

	var tieredCache *cache.TieredReportCache
	if cfg.Cache.Enabled && redisClient != nil {
		l1 := cache.NewInMemoryReportCache(
			cache.WithInMemoryConfig(cacheConfig),
			cache.WithInMemoryLogger(log),
		)
		l2 := cache.NewRedisReportCacheWithClient(redisClient,
			cache.WithCacheConfig(cacheConfig),
			cache.WithCacheLogger(log),
		)
		invalidator := cache.NewRedisReportCacheInvalidatorWithClient(redisClient,
			cache.WithInvalidatorChannel(cacheConfig.PubSubChannel),
			cache.WithInvalidatorLogger(log),
		)
		tieredOpts := []cache.TieredReportCacheOption{
			cache.WithTieredConfig(cacheConfig),
			cache.WithTieredLogger(log),
			cache.WithTieredBreaker(breakers.NewBreaker("report_cache_redis", breakerConfig)),
		}
		if cfg.Cache.L3Enabled {
			l3Config := cacheConfig
			if cfg.Cache.L3TTL > 0 {
				l3Config.DailyTTL = cfg.Cache.L3TTL
			}
			l3, err := cache.NewRedisReportCache(cache.RedisConfig{
				Host:     cfg.Cache.L3Host,
				Port:     cfg.Cache.L3Port,
				Password: cfg.Cache.L3Password,
				DB:       cfg.Cache.L3DB,
			}, cache.WithCacheConfig(l3Config), cache.WithCacheLogger(log))
			if err != nil {
				log.Warn("Report cache L3 unavailable, continuing with two tiers", zap.Error(err))
			} else {
				tieredOpts = append(tieredOpts, cache.WithTieredL3(l3))
			}
		}
		tieredCache = cache.NewTieredReportCache(l1, l2, invalidator, tieredOpts...)
		go func() {
			if err := tieredCache.StartInvalidationSubscription(context.Background()); err != nil {
				log.Warn("Report cache invalidation subscription stopped", zap.Error(err))
			}
		}()
		defer func() {
			if err := tieredCache.Close(); err != nil {
				log.Error("Error closing report cache", zap.Error(err))
			}
		}()
		log.Info("Report cache enabled",
			zap.Duration("l1_ttl", cacheConfig.L1TTL),
			zap.Duration("daily_ttl", cacheConfig.DailyTTL),
			zap.Bool("l3", cfg.Cache.L3Enabled),
		)
	}

	// Initialize application services
	transactionService := ledgerapp.NewTransactionService(txnRepo, propertyRepo, calendar, log)
	calculatorService := ledgerapp.NewCalculatorService(balanceRepo, txnRepo, propertyRepo, calendar, log)
	approvalService := ledgerapp.NewApprovalService(txnRepo, calculatorService, log)
	var reportCache ledger.ReportCache
	if tieredCache != nil {
		reportCache = tieredCache
	}
	reportService := ledgerapp.NewReportService(balanceRepo, propertyRepo, reportCache, log)
	validationService := ledgerapp.NewValidationService(balanceRepo, txnRepo, propertyRepo, chainValidator, log)
	repairService := ledgerapp.NewRepairService(validationService, correctionQueue, log)
	repairApplier := ledgerapp.NewRepairApplier(calculatorService, balanceRepo, log)
	outboxService := eventapp.NewOutboxService(outboxRepo, log)

	// Initialize event bus and handlers
	eventBus := event.NewInMemoryEventBus(log)

	// Event delivery is at-least-once, so every subscriber is wrapped in an
	// idempotency guard. The store prefers Redis and falls back to memory.
	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(true),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	// Transaction approved/rejected -> balance recompute for day and day+1
	recomputeHandler := ledgerapp.NewRecomputeOnApprovalHandler(calculatorService, log)
	eventBus.Subscribe(event.NewIdempotentHandler(recomputeHandler, idempotencyStore, log))

	// Balance recomputed/overridden -> report cache eviction
	if tieredCache != nil {
		invalidationHandler := ledgerapp.NewCacheInvalidationHandler(tieredCache, reportService, ledgerapp.CacheInvalidationConfig{
			Defensive:    cfg.Cache.DefensiveInvalidation,
			WriteThrough: cfg.Cache.WriteThrough,
		}, log)
		eventBus.Subscribe(event.NewIdempotentHandler(invalidationHandler, idempotencyStore, log))
	}

	log.Info("Event handlers registered",
		zap.Strings("recompute_events", recomputeHandler.EventTypes()),
		zap.Bool("cache_invalidation", tieredCache != nil),
	)

	// Start event bus
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Initialize and start outbox processor for guaranteed event delivery
	// The outbox processor reads events from the outbox_events table and publishes them to the event bus
	if cfg.Event.ProcessorEnabled {
		outboxProcessorConfig := event.DefaultOutboxProcessorConfig()
		outboxProcessorConfig.BatchSize = cfg.Event.BatchSize
		outboxProcessorConfig.PollInterval = cfg.Event.PollInterval
		outboxProcessorConfig.CleanupEnabled = cfg.Event.CleanupEnabled
		outboxProcessorConfig.CleanupRetention = cfg.Event.CleanupRetention
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, outboxProcessorConfig, log)
		if err := outboxProcessor.Start(context.Background()); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", outboxProcessorConfig.BatchSize),
			zap.Duration("poll_interval", outboxProcessorConfig.PollInterval),
		)
	}

	// Start the correction queue consumer (if enabled)
	if cfg.CorrectionQueue.ConsumerEnabled {
		consumer := queue.NewConsumer(queue.ConsumerConfig{
			BatchSize:     cfg.CorrectionQueue.BatchSize,
			PollInterval:  cfg.CorrectionQueue.PollInterval,
			MaxConcurrent: cfg.CorrectionQueue.MaxConcurrent,
			LockTimeout:   cfg.CorrectionQueue.LockTimeout,
		}, correctionQueue, repairApplier, log)
		if err := consumer.Start(context.Background()); err != nil {
			log.Fatal("Failed to start correction consumer", zap.Error(err))
		}
		defer func() {
			if err := consumer.Stop(context.Background()); err != nil {
				log.Error("Error stopping correction consumer", zap.Error(err))
			}
		}()
		log.Info("Correction queue consumer started",
			zap.Int("batch_size", cfg.CorrectionQueue.BatchSize),
			zap.Duration("poll_interval", cfg.CorrectionQueue.PollInterval),
		)
	}

	// Initialize maintenance cron (if enabled): nightly validation sweeps,
	// partition upkeep and correction queue cleanup
	var maintenanceCron *scheduler.MaintenanceCron
	if cfg.Scheduler.Enabled {
		cronHour, cronMinute, err := scheduler.ParseCronSchedule(cfg.Scheduler.DailyCronSchedule)
		if err != nil {
			log.Fatal("Invalid maintenance cron schedule",
				zap.String("schedule", cfg.Scheduler.DailyCronSchedule),
				zap.Error(err),
			)
		}
		partitionService := ledgerapp.NewPartitionService(partitionManager, calendar, log)
		janitorService := ledgerapp.NewQueueJanitorService(correctionQueue, cfg.CorrectionQueue.DoneRetention, log)
		executor := scheduler.NewMaintenanceExecutor(repairService, partitionService, janitorService, log)
		maintenanceCron = scheduler.NewMaintenanceCron(scheduler.MaintenanceCronConfig{
			Enabled:              cfg.Scheduler.Enabled,
			CronHour:             cronHour,
			CronMinute:           cronMinute,
			DailyCronSchedule:    cfg.Scheduler.DailyCronSchedule,
			ValidationWindowDays: cfg.Scheduler.ValidationWindowDays,
			PartitionEnsureDay:   cfg.Scheduler.PartitionEnsureDay,
			PartitionCheckEvery:  cfg.Scheduler.PartitionCheckEvery,
			JobTimeout:           cfg.Scheduler.JobTimeout,
			MaxConcurrentJobs:    cfg.Scheduler.MaxConcurrentJobs,
			RetryAttempts:        cfg.Scheduler.RetryAttempts,
			RetryDelay:           cfg.Scheduler.RetryDelay,
		}, executor, propertyRepo, jobRepo, log)
		if err := maintenanceCron.Start(context.Background()); err != nil {
			log.Fatal("Failed to start maintenance cron", zap.Error(err))
		}
		defer func() {
			if err := maintenanceCron.Stop(context.Background()); err != nil {
				log.Error("Error stopping maintenance cron", zap.Error(err))
			}
		}()
		log.Info("Maintenance cron started",
			zap.String("daily_schedule", cfg.Scheduler.DailyCronSchedule),
			zap.Int("validation_window_days", cfg.Scheduler.ValidationWindowDays),
		)
	}

	// Business metrics and the periodic health gauge collector
	metricsProvider := telemetry.NewGormLedgerMetricsProvider(db.DB)
	if meterProvider != nil {
		ledgerMetricsConfig := telemetry.LedgerMetricsConfig{
			Meter:             meterProvider.Meter("ledger"),
			Logger:            log,
			QueueProvider:     metricsProvider,
			PartitionProvider: metricsProvider,
			BreakerProvider:   breakers,
		}
		if tieredCache != nil {
			ledgerMetricsConfig.CacheProvider = tieredCache
		}
		ledgerMetrics, err := telemetry.NewLedgerMetrics(ledgerMetricsConfig)
		if err != nil {
			log.Warn("Failed to initialize ledger metrics", zap.Error(err))
		} else {
			ledgerMetrics.StartPeriodicCollection(context.Background(), time.Minute)
			defer ledgerMetrics.Stop()
			transactionService.SetMetrics(ledgerMetrics)
			approvalService.SetMetrics(ledgerMetrics)
			calculatorService.SetMetrics(ledgerMetrics)
			validationService.SetMetrics(ledgerMetrics)
		}
	}

	// Status and health surfaces
	statusService := monitoring.NewStatusService(calendar, log)
	statusService.SetRouters(balanceRepo, txnRepo)
	statusService.SetBreakerRegistry(breakers)
	statusService.SetCorrectionQueue(correctionQueue)
	statusService.SetParitySource(metricsProvider)
	statusService.SetJobHistory(jobRepo)
	statusService.SetValidationSummary(validationService)
	if tieredCache != nil {
		statusService.SetCacheStats(tieredCache)
	}
	if maintenanceCron != nil {
		statusService.SetCronStatus(maintenanceCron)
	}

	healthService := monitoring.NewHealthService(log)
	healthService.Register("database", func(ctx context.Context) error {
		return db.Ping()
	})
	if redisClient != nil {
		healthService.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// Initialize HTTP handlers
	cashTransactionHandler := handler.NewCashTransactionHandler(transactionService, approvalService)
	ledgerHandler := handler.NewLedgerHandler(reportService, calculatorService, validationService, repairService, correctionQueue)
	statusHandler := handler.NewStatusHandler(statusService, healthService)
	systemHandler := handler.NewSystemHandler()
	outboxHandler := handler.NewOutboxHandler(outboxService)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Tracing/Metrics - Observability (if enabled)
	// 5. Security - Add security headers
	// 6. CORS - Handle cross-origin requests
	// 7. BodyLimit - Limit request body size
	// 8. RateLimit - Apply rate limiting (if enabled)
	// 9. Tenant - Resolve the X-Tenant-ID scope
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if tracerProvider != nil {
		engine.Use(middleware.Tracing())
	}
	if meterProvider != nil {
		engine.Use(middleware.HTTPMetricsWithMeter(meterProvider.Meter("http"), true))
	}
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Tenant scoping middleware. Operational endpoints stay tenant-free.
	tenantConfig := middleware.DefaultTenantConfig()
	tenantConfig.Logger = log
	tenantConfig.SkipPaths = append(tenantConfig.SkipPaths,
		"/api/v1/ping",
		"/api/v1/system/ping",
		"/api/v1/system/info",
		"/api/v1/ledger/status",
	)
	engine.Use(middleware.TenantMiddlewareWithConfig(tenantConfig))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Liveness and readiness probes
	statusHandler.RegisterProbes(engine)

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Register domain route groups
	r.Register(cashTransactionHandler).
		Register(ledgerHandler).
		Register(statusHandler).
		Register(outboxHandler)

	// Register system routes with swagger-documented handlers
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)
	r.Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
