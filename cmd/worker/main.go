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

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"pairStudio/internal/card"
	"pairStudio/internal/catalog"
	"pairStudio/internal/config"
	"pairStudio/internal/database"
	"pairStudio/internal/metrics"
	"pairStudio/internal/pdf"
	"pairStudio/internal/storage"
	"pairStudio/internal/tasks"
	"pairStudio/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database, logger)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	catalogClient, err := catalog.New(catalog.Options{
		BaseURL: cfg.Catalog.BaseURL,
		Token:   cfg.Catalog.Token,
		Timeout: cfg.Catalog.Timeout,
	})
	if err != nil {
		log.Fatalf("init catalog client: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	generator := pdf.NewGenerator(cfg.Worker.RenderTimeout)
	exportHandler := worker.NewSheetExportHandler(
		db,
		catalogClient,
		card.NewRenderer(),
		generator,
		storageClient,
		redisClient,
		logger,
	)
	sweepHandler := worker.NewSweepHandler(database.NewLedger(db), catalogClient, worker.SweepOptions{
		StaleAfter:  cfg.Worker.SweepStaleAfter,
		MaxAttempts: cfg.Worker.SweepMaxAttempts,
		Batch:       cfg.Worker.SweepBatch,
	}, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.TaskMiddleware())
	mux.Handle(tasks.TypeSheetExport, exportHandler)
	mux.Handle(tasks.TypeSubPairSweep, sweepHandler)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: newAsynqLogger(logger)})
	sweepTask, err := tasks.NewSubPairSweepTask(0)
	if err != nil {
		log.Fatalf("build sweep task: %v", err)
	}
	if _, err := scheduler.Register(cfg.Worker.SweepCron, sweepTask); err != nil {
		log.Fatalf("register sweep schedule %q: %v", cfg.Worker.SweepCron, err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer scheduler.Shutdown()

	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Worker.MetricsPort), Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server stopped", slog.Any("error", err))
		}
	}()

	if err := server.Start(mux); err != nil {
		log.Fatalf("start worker server: %v", err)
	}
	logger.Info("worker service started",
		slog.String("redis_addr", cfg.Redis.Addr()),
		slog.String("sweep_cron", cfg.Worker.SweepCron),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	server.Shutdown()
	generator.Close()
	_ = metricsServer.Close()
	logger.Info("worker service stopped")
}

// asynqLogger 把 asynq 的日志接到 slog。
type asynqLogger struct{ l *slog.Logger }

func newAsynqLogger(l *slog.Logger) asynqLogger {
	return asynqLogger{l: l.With(slog.String("component", "asynq"))}
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
