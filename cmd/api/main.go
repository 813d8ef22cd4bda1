package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"pairStudio/internal/api"
	"pairStudio/internal/auth"
	"pairStudio/internal/autosave"
	"pairStudio/internal/card"
	"pairStudio/internal/catalog"
	"pairStudio/internal/config"
	"pairStudio/internal/database"
	"pairStudio/internal/sessionstore"
	"pairStudio/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database, logger)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password})
	defer asynqClient.Close()

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	catalogClient, err := catalog.New(catalog.Options{
		BaseURL: cfg.Catalog.BaseURL,
		Token:   cfg.Catalog.Token,
		Timeout: cfg.Catalog.Timeout,
	})
	if err != nil {
		log.Fatalf("init catalog client: %v", err)
	}

	verifier, err := auth.LoadVerifier(cfg.Auth.PublicKeyPEM, cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("load token verifier: %v", err)
	}

	debouncer := autosave.New(cfg.Editor.AutosaveDelay)

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, api.Deps{
		DB:             db,
		Redis:          redisClient,
		Catalog:        catalogClient,
		Sessions:       sessionstore.New(redisClient, cfg.Editor.SessionTTL, cfg.Editor.LockTTL),
		Ledger:         database.NewLedger(db),
		Autosave:       debouncer,
		Queue:          asynqClient,
		Downloads:      storageClient,
		Validator:      verifier,
		Scanner:        api.NewClamdScanner(cfg.Clamd.Address),
		Renderer:       card.NewRenderer(),
		AllowedOrigins: cfg.API.Origins(),
		UploadsPerMin:  cfg.Editor.UploadsPerMinute,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown", slog.Any("error", err))
	}
	// 退出前把尚未触发的样式草稿保存掉。
	debouncer.Stop()
	logger.Info("api stopped")
}
