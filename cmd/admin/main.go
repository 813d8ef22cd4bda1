package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"pairStudio/internal/catalog"
	"pairStudio/internal/config"
	"pairStudio/internal/database"
	"pairStudio/internal/worker"
)

// admin 手动执行一次孤儿子配对清扫，适合在定时任务停摆或排障时使用。
func main() {
	var (
		limit   = flag.Int("limit", 0, "本次最多处理的子配对数量（默认读 WORKER_SWEEP_BATCH）")
		dryRun  = flag.Bool("dry-run", false, "只列出待清理的子配对，不删除")
		timeout = flag.Duration("timeout", 5*time.Minute, "整体超时")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.InitDatabase(cfg.Database, logger)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	ledger := database.NewLedger(db)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *dryRun {
		n := *limit
		if n <= 0 {
			n = cfg.Worker.SweepBatch
		}
		rows, err := ledger.DueForSweep(ctx, time.Now().Add(-cfg.Worker.SweepStaleAfter), cfg.Worker.SweepMaxAttempts, n)
		if err != nil {
			log.Fatalf("list sweep candidates: %v", err)
		}
		for _, row := range rows {
			fmt.Printf("%d\tsession=%s\tstate=%s\tattempts=%d\n", row.SubPairID, row.SessionID, row.State, row.Attempts)
		}
		fmt.Printf("%d sub-pair(s) due for cleanup\n", len(rows))
		return
	}

	catalogClient, err := catalog.New(catalog.Options{
		BaseURL: cfg.Catalog.BaseURL,
		Token:   cfg.Catalog.Token,
		Timeout: cfg.Catalog.Timeout,
	})
	if err != nil {
		log.Fatalf("init catalog client: %v", err)
	}

	sweeper := worker.NewSweepHandler(ledger, catalogClient, worker.SweepOptions{
		StaleAfter:  cfg.Worker.SweepStaleAfter,
		MaxAttempts: cfg.Worker.SweepMaxAttempts,
		Batch:       cfg.Worker.SweepBatch,
	}, logger)

	report, err := sweeper.Run(ctx, *limit)
	if err != nil {
		log.Fatalf("sweep: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("print report: %v", err)
	}
	if len(report.Failed) > 0 {
		os.Exit(2)
	}
}
