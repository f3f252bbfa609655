package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"cloudvault/config"
	"cloudvault/internal/handler"
	"cloudvault/internal/proxy"
	"cloudvault/internal/redis"
	"cloudvault/internal/repository"
	"cloudvault/internal/server"
	"cloudvault/internal/services"
	"cloudvault/internal/websocket"
	"cloudvault/pkg/database"
	"cloudvault/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	rdb := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := redis.Ping(ctx, rdb); err != nil {
		l.Logger.Warn("redis unavailable at startup", zap.Error(err))
	}

	conversations := repository.NewConversationRepository(db)
	participants := services.NewParticipantService(conversations, redis.NewCacheStore(rdb, cfg.ParticipantCacheTTL), l)
	notifications := services.NewNotificationService(repository.NewNotificationRepository(db), redis.NewPublisher(rdb), l)
	encryptionService := services.NewEncryptionService(
		repository.NewEncryptionRepository(db),
		participants,
		notifications,
		proxy.NewAccessControl(conversations),
		l,
	)
	authService := services.NewAuthService(cfg.JWTSecret, time.Duration(cfg.JWTExpiryMin)*time.Minute)

	limiter := redis.NewRateLimiter(rdb, redis.RateLimitConfig{
		ExchangeLimit:  cfg.ExchangeRateLimit,
		ExchangeWindow: cfg.RateLimitWindow,
		RotationLimit:  cfg.RotationRateLimit,
		RotationWindow: cfg.RateLimitWindow,
	})

	hub := websocket.NewHub()
	go hub.Run(ctx)
	bridge := websocket.NewRedisBridge(redis.NewSubscriber(rdb), hub, l)
	go func() {
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Logger.Error("realtime bridge stopped", zap.Error(err))
		}
	}()

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Encryption: handler.NewEncryptionHandler(encryptionService),
		WebSocket:  websocket.NewHandler(authService, hub, l),
	}, authService, limiter, map[string]server.HealthFunc{
		"database": func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
		"redis":    func(ctx context.Context) error { return redis.Ping(ctx, rdb) },
	})

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
}
