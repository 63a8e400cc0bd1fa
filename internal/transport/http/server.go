package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockpulse/internal/config"
	"stockpulse/internal/database"
	"stockpulse/internal/dispatcher"
	"stockpulse/internal/handler"
	"stockpulse/internal/queue"
	"stockpulse/internal/redis"
	"stockpulse/internal/repository"
	"stockpulse/internal/service"
	"stockpulse/internal/worker"
)

// Run wires the application together and blocks until shutdown.
func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}

	// 2. Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Repositories
	notifRepo := repository.NewNotificationRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	tokenRepo := repository.NewDeviceTokenRepository(db)
	stockRepo := repository.NewStockRepository(db)
	userRepo := repository.NewUserRepository(db)

	// 4. Push channels
	sseHub := service.NewSSEHub()

	var push dispatcher.Pusher = service.NopPusher{}
	if cfg.FCMProjectID != "" && cfg.FCMClientEmail != "" && cfg.FCMPrivateKey != "" {
		fcm, err := service.NewFCMService(ctx, cfg.FCMProjectID, cfg.FCMClientEmail, cfg.FCMPrivateKey, tokenRepo)
		if err != nil {
			return fmt.Errorf("failed to init FCM: %w", err)
		}
		push = fcm
		log.Println("FCM push channel enabled")
	} else {
		log.Println("FCM credentials not set, push notifications disabled")
	}

	// 5. Services
	notifService := service.NewNotificationService(db, notifRepo, outboxRepo)
	tokenService := service.NewDeviceTokenService(tokenRepo)
	alertService := service.NewStockScoreAlertService(
		notifService, notifRepo, outboxRepo, stockRepo,
		cfg.ScoreAlertThreshold, cfg.AlertHour, loc,
	)

	broadcastService := service.NewBroadcastService(notifService, userRepo, loc)
	broadcastService.Start(ctx)
	defer broadcastService.Stop()

	// 6. Outbox dispatcher
	disp := dispatcher.New(outboxRepo, notifRepo, sseHub, push, alertService, dispatcher.Config{
		ImmediateInterval:  time.Duration(cfg.DispatchImmediateIntervalSeconds) * time.Second,
		RetryInterval:      time.Duration(cfg.DispatchRetryIntervalSeconds) * time.Second,
		AlertHour:          cfg.AlertHour,
		CleanupHour:        cfg.CleanupHour,
		ProcessedRetention: time.Duration(cfg.ProcessedRetentionDays) * 24 * time.Hour,
		RetryRetention:     time.Duration(cfg.RetryRetentionDays) * 24 * time.Hour,
		Location:           loc,
	})
	disp.Start(ctx)
	defer disp.Stop()

	// 7. Score event ingestion (Redis Streams), skipped when Redis is not configured
	var scoreHandler *handler.ScoreHandler
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer redisClient.Close()

		if err := redisClient.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}

		publisher := queue.NewPublisher(redisClient.Client)
		consumer := queue.NewConsumer(redisClient.Client)
		manager := worker.NewManager(consumer, worker.NewHandler(alertService), worker.DefaultManagerConfig())
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		defer manager.Stop()

		scoreHandler = handler.NewScoreHandler(publisher)
	} else {
		log.Println("REDIS_URL not set, score event ingestion disabled")
	}

	// 8. HTTP server
	router := NewRouter(RouterConfig{
		NotificationHandler: handler.NewNotificationHandler(notifService),
		DeviceTokenHandler:  handler.NewDeviceTokenHandler(tokenService),
		SSEHandler:          handler.NewSSEHandler(sseHub),
		ScoreHandler:        scoreHandler,
		JWTSecret:           cfg.JWTSecret,
	})

	srv := &stdhttp.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
