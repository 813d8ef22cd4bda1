package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"pairStudio/internal/catalog"
	"pairStudio/internal/database"
	"pairStudio/internal/metrics"
	"pairStudio/internal/tasks"
)

// PairDeleter 删除目录中的子配对。
type PairDeleter interface {
	DeletePair(ctx context.Context, id int64) error
}

// SweepOptions bounds one sweep.
type SweepOptions struct {
	StaleAfter  time.Duration
	MaxAttempts int
	Batch       int
}

// SweepReport 汇总一次清扫的结果。
type SweepReport struct {
	Deleted []int64 `json:"deleted"`
	Failed  []int64 `json:"failed"`
}

// SweepHandler deletes sub-pairs that no session will ever clean up: orphans from failed
// deletes and leftovers of sessions that expired without closing.
type SweepHandler struct {
	ledger  *database.Ledger
	catalog PairDeleter
	opts    SweepOptions
	logger  *slog.Logger
	now     func() time.Time
}

// NewSweepHandler 创建清扫处理器。
func NewSweepHandler(ledger *database.Ledger, deleter PairDeleter, opts SweepOptions, logger *slog.Logger) *SweepHandler {
	return &SweepHandler{ledger: ledger, catalog: deleter, opts: opts, logger: logger, now: time.Now}
}

// ProcessTask 实现 asynq.Handler。
func (h *SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SubPairSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal sweep payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := h.Run(ctx, payload.Limit)
	return err
}

// Run performs one sweep. A zero limit uses the configured batch size.
func (h *SweepHandler) Run(ctx context.Context, limit int) (SweepReport, error) {
	if limit <= 0 {
		limit = h.opts.Batch
	}
	rows, err := h.ledger.DueForSweep(ctx, h.now().Add(-h.opts.StaleAfter), h.opts.MaxAttempts, limit)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Deleted: []int64{}, Failed: []int64{}}
	for _, row := range rows {
		err := h.catalog.DeletePair(ctx, row.SubPairID)
		if err != nil && !catalog.IsNotFound(err) {
			report.Failed = append(report.Failed, row.SubPairID)
			metrics.SubPairCleanup("sweep", false)
			h.logger.Warn("sweep delete sub-pair failed",
				slog.Int64("sub_pair_id", row.SubPairID),
				slog.Int("attempts", row.Attempts+1),
				slog.Any("error", err),
			)
			if recErr := h.ledger.RecordFailure(ctx, row.SubPairID, err.Error()); recErr != nil {
				return report, recErr
			}
			continue
		}
		if err := h.ledger.Release(ctx, row.SubPairID); err != nil {
			return report, err
		}
		report.Deleted = append(report.Deleted, row.SubPairID)
		metrics.SubPairCleanup("sweep", true)
	}

	h.logger.Info("sub-pair sweep finished",
		slog.Int("candidates", len(rows)),
		slog.Int("deleted", len(report.Deleted)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}
