package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"officehours/internal/common/auth"
	"officehours/internal/common/cache"
	"officehours/internal/common/db"
	"officehours/internal/common/mq"
	"officehours/internal/common/ratelimit"
	"officehours/internal/queue/controller"
	"officehours/internal/queue/notify"
	"officehours/internal/queue/policy"
	"officehours/internal/queue/realtime"
	"officehours/internal/queue/repository"
	"officehours/internal/queue/service"
	"officehours/migrations"
	"officehours/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/queue_service.yaml"
	defaultEnvFile    = ".env"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", defaultEnvFile, "Optional dotenv file with QUEUE_* overrides")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "queue service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	database, err := db.Open(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()
	applied, err := db.Migrate(ctx, database, migrations.FS)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info(ctx, "database ready", zap.String("driver", appCfg.Database.Driver), zap.Int64("version", applied))

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	table, err := policy.LoadFile(appCfg.Policy.TransitionsFile)
	if err != nil {
		return fmt.Errorf("load transition table: %w", err)
	}

	timeout := appCfg.Store.Timeout
	stores := service.Stores{
		Requests: repository.NewRequestRepository(database, redisCache, timeout),
		Comments: repository.NewCommentRepository(database, timeout),
		Members:  repository.NewMembershipRepository(database, redisCache, timeout),
		Courses:  repository.NewCourseRepository(database, timeout),
		Events:   repository.NewEventRepository(database, timeout),
		Statuses: repository.NewStatusRepository(redisCache, timeout),
		Order:    repository.NewOrderRepository(redisCache, timeout),
	}

	var mqClient *mq.KafkaQueue
	if appCfg.Kafka.Enabled {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.Client)
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer func() {
			_ = mqClient.Close()
		}()
	}

	fanout := realtime.NewFanout(appCfg.Realtime.FanoutWorkers, appCfg.Realtime.FanoutQueue)
	defer fanout.Close()
	hub := realtime.NewHub(fanout)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var publisher notify.Publisher = hub
	if appCfg.Realtime.CrossNode {
		broker := realtime.NewRedisBroker(redisCache, hub)
		publisher = broker
		go func() {
			if err := broker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(runCtx, "realtime broker stopped", zap.Error(err))
			}
		}()
	}
	var recorder notify.LifecycleRecorder
	if mqClient != nil {
		recorder = notify.NewMQLifecycleRecorder(mqClient, appCfg.Kafka.Topic)
	}
	notifier := notify.NewNotifier(publisher, recorder)

	lifecycleService := service.NewLifecycleService(stores, table, notifier)
	requestService := service.NewRequestService(stores, table)
	courseService := service.NewCourseService(database, stores, table)
	resyncService := service.NewResyncService(stores)

	if mqClient != nil && appCfg.Kafka.ConsumeHistory {
		history := service.NewHistoryConsumer(stores.Events)
		if err := history.Register(runCtx, mqClient, appCfg.Kafka.Topic); err != nil {
			return fmt.Errorf("subscribe lifecycle events: %w", err)
		}
		if err := mqClient.Start(); err != nil {
			return fmt.Errorf("start kafka consumers: %w", err)
		}
		defer func() {
			_ = mqClient.Stop()
		}()
	}

	revocations := auth.NewRevocationList(
		cache.NewLRUCache[bool](appCfg.Auth.RevocationLocalSize, appCfg.Auth.RevocationLocalTTL),
		redisCache,
		timeout,
		appCfg.Auth.RevocationLocalTTL,
	)
	authenticator := auth.NewAuthenticator(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer, revocations)
	realtimeHandler := realtime.NewHandler(hub, authenticator, resyncService, appCfg.Realtime.HandlerConfig)

	router := controller.NewRouter(controller.RouterDeps{
		Verifier: authenticator,
		Limiter:  ratelimit.NewLimiter(redisCache, defaultRateLimitWindow, timeout),
		Limits:   appCfg.RateLimit,
		CORS:     appCfg.CORS,
		Requests: controller.NewRequestController(lifecycleService, requestService),
		Courses:  controller.NewCourseController(courseService),
		Auth:     controller.NewAuthController(authenticator),
		Realtime: realtimeHandler.Serve,
		Health: func(ctx context.Context) error {
			if err := database.Ping(ctx); err != nil {
				return err
			}
			return redisCache.Ping(ctx)
		},
	})
	httpServer := buildHTTPServer(appCfg.Server, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "queue http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	cancelRun()
	timeoutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return serveErr
}

func buildHTTPServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
