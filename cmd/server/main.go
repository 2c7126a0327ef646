package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	appservice "github.com/turtacn/keytrust/internal/application/service"
	"github.com/turtacn/keytrust/internal/config"
	domainservice "github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/internal/infrastructure/cache"
	"github.com/turtacn/keytrust/internal/infrastructure/consumers"
	"github.com/turtacn/keytrust/internal/infrastructure/crypto"
	"github.com/turtacn/keytrust/internal/infrastructure/events"
	"github.com/turtacn/keytrust/internal/infrastructure/monitoring"
	"github.com/turtacn/keytrust/internal/infrastructure/persistence/postgres"
	pcache "github.com/turtacn/keytrust/internal/infrastructure/persistence/redis"
	"github.com/turtacn/keytrust/internal/infrastructure/policy"
	revocation "github.com/turtacn/keytrust/internal/infrastructure/redis"
	httpserver "github.com/turtacn/keytrust/internal/interfaces/http"
	"github.com/turtacn/keytrust/internal/interfaces/http/handlers"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml (default: ./config.yaml or /etc/keytrust/config.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		log.Fatalf("keytrust: %v", err)
	}
}

func run(ctx context.Context, configFile string) error {
	// Logger for startup
	startupLogger, _ := monitoring.NewZapLogger(&config.LogConfig{Level: "info"})

	// Load config
	loader := config.NewLoader(configFile, startupLogger)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		return err
	}

	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer shutdown(tracing.Shutdown)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	// Initialize database
	db, err := postgres.NewDBConnection(ctx, &cfg.Database, appLogger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	// Shared or in-process key cache and revocation store
	var (
		keyCache         domainservice.KeyCache
		revocations      domainservice.RevocationStore
		localCache       domainservice.KeyCache
		localRevocations domainservice.RevocationStore
		lifecycleOpts    = []appservice.KeyLifecycleOption{appservice.WithMetrics(metrics)}
		health           = map[string]handlers.Pinger{"database": db}
	)
	if cfg.Redis.Enabled() {
		redisConn := pcache.NewRedisConnection(&cfg.Redis, appLogger)
		if err := redisConn.Connect(ctx); err != nil {
			return err
		}
		defer redisConn.Close()
		client := redisConn.GetClient()
		keyCache = pcache.NewKeyCache(client)
		revocations = revocation.NewRevocationStore(client)
		lifecycleOpts = append(lifecycleOpts, appservice.WithLocker(pcache.NewLocker(client)))
		health["redis"] = redisConn
	} else {
		appLogger.Warn(ctx, "Redis not configured, key cache and revocations are local to this instance")
		memCache, memRevocations := cache.NewMemoryKeyCache(), cache.NewMemoryRevocationStore()
		keyCache, revocations = memCache, memRevocations
		localCache, localRevocations = memCache, memRevocations
	}

	// Key events
	source := instanceID()
	var publisher domainservice.KeyEventPublisher = domainservice.NoopPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka, source, appLogger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		lifecycleOpts = append(lifecycleOpts, appservice.WithPublisher(publisher))
	}

	// Initialize application services
	keyManager := crypto.NewKeyManager(&crypto.KeyManagerConfig{
		Algorithm:         constants.JWTAlgorithm(cfg.Keys.Algorithm),
		Bits:              constants.RSAKeySize,
		KeyValidityPeriod: cfg.Keys.ValidityWindow,
	}, appLogger)
	lifecycle := appservice.NewKeyLifecycleService(
		postgres.NewKeyRepository(db.DB()),
		keyCache,
		keyManager,
		appservice.NewKeyLifecycleConfig(cfg),
		appLogger,
		lifecycleOpts...,
	)
	revocations = appservice.NewBoundedRevocationStore(revocations, cfg.Timeouts.Cache)
	issuer := appservice.NewTokenIssuer(lifecycle, cfg.Token, metrics, nil, appLogger)
	verifier := appservice.NewTokenVerifier(lifecycle, revocations, cfg.Token, metrics, nil, appLogger)
	revocationSvc := appservice.NewRevocationService(verifier, revocations, publisher, metrics, nil, appLogger)

	var permissions domainservice.PermissionLoader
	var staticPermissions *policy.StaticPermissionLoader
	if cfg.Auth.PermissionsFile != "" {
		staticPermissions, err = policy.NewStaticPermissionLoader(cfg.Auth.PermissionsFile)
		if err != nil {
			return err
		}
		permissions = staticPermissions
	}

	// Hot reload: log level and permission grants
	loader.Watch(func(next *config.Config) {
		appLogger.SetLevel(constants.LogLevel(next.Log.Level))
		if staticPermissions != nil {
			if err := staticPermissions.Reload(); err != nil {
				appLogger.Error(ctx, "Permission grants reload failed", err)
			}
		}
	})

	// Background workers
	scheduler := appservice.NewRotationScheduler(lifecycle, cfg.Scheduler, cfg.Keys, appLogger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Kafka.Enabled {
		handler := appservice.NewKeyEventHandler(lifecycle, localCache, localRevocations, appLogger)
		consumer := consumers.NewKeyEventConsumer(cfg.Kafka, source, handler, appLogger)
		go consumer.Start(ctx)
		defer consumer.Stop()
	}

	// HTTP
	router := httpserver.NewRouter(cfg, httpserver.Dependencies{
		Lifecycle:   lifecycle,
		Issuer:      issuer,
		Verifier:    verifier,
		Revocation:  revocationSvc,
		Permissions: permissions,
		Health:      health,
		Tracing:     tracing,
		Metrics:     metrics,
		Gatherer:    registry,
	}, appLogger)

	errCh := make(chan error, 1)
	go func() { errCh <- router.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLogger.Info(context.Background(), "Shutting down", logger.String("instance", source))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return router.Stop(shutdownCtx)
}

// instanceID names this process on the key events topic so it can skip its own events.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = constants.ServiceName
	}
	return host + "-" + uuid.NewString()[:8]
}

func shutdown(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultStoreTimeout)
	defer cancel()
	_ = fn(ctx)
}
