package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"messenger/internal/util"
	"messenger/services/messenger/internal/app"
	"messenger/services/messenger/internal/config"
	"messenger/services/messenger/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse JWT leeway: %v", err)
	}
	presignExpiry, err := config.ParsePresignExpiry(cfg.PresignExpiry)
	if err != nil {
		log.Fatalf("failed to parse presign expiry: %v", err)
	}
	slowQuery, err := config.ParseSlowQueryThreshold(cfg.SlowQueryThreshold)
	if err != nil {
		log.Fatalf("failed to parse slow query threshold: %v", err)
	}
	shutdownTimeout, err := config.ParseShutdownTimeout(cfg.ShutdownTimeout)
	if err != nil {
		log.Fatalf("failed to parse shutdown timeout: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisClient.Close()
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:        cfg.DatabaseURL,
		SlowQueryThreshold: slowQuery,
		Redis:              redisClient,
		JWTSecret:          cfg.JWTSecret,
		JWTIssuer:          cfg.JWTIssuer,
		JWTAudience:        cfg.JWTAudience,
		JWTLeeway:          jwtLeeway,
		SessionTTL:         sessionTTL,
		MinioEndpoint:      cfg.MinioEndpoint,
		MinioAccessKey:     cfg.MinioAccessKey,
		MinioSecretKey:     cfg.MinioSecretKey,
		MinioBucket:        cfg.MinioBucket,
		MinioUseSSL:        cfg.MinioUseSSL,
		PresignExpiry:      presignExpiry,
		FileURLPrefix:      cfg.FileURLPrefix,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		AllowedUploadTypes: cfg.AllowedUploadTypes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer func() {
		if err := appCore.Close(); err != nil {
			logger.Error("close app", "err", err)
		}
	}()

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		Redis:                    redisClient,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
		MaxUploadBytes:           cfg.MaxUploadBytes,
		CORSAllowedOrigins:       cfg.CORSAllowedOrigins,
		TrustedProxies:           cfg.TrustedProxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("messenger server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "timeout", shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
