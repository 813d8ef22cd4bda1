// Package worker 消费 asynq 任务：卡片页 PDF 导出与孤儿子配对清扫。
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"pairStudio/internal/card"
	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
	"pairStudio/internal/database"
	"pairStudio/internal/errcode"
	"pairStudio/internal/notify"
	"pairStudio/internal/storage"
	"pairStudio/internal/style"
	"pairStudio/internal/tasks"
)

// PairReader 读取导出所需的配对。
type PairReader interface {
	GetPair(ctx context.Context, id int64) (content.Pair, error)
}

// PDFRenderer turns an HTML document into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, html []byte) ([]byte, error)
}

// ObjectStore 是导出结果的对象存储。
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

// SheetExportHandler 负责消费卡片页导出任务。
type SheetExportHandler struct {
	db       *gorm.DB
	pairs    PairReader
	cards    *card.Renderer
	pdf      PDFRenderer
	store    ObjectStore
	notifier notify.Publisher
	logger   *slog.Logger
}

// NewSheetExportHandler 创建任务处理器。
func NewSheetExportHandler(
	db *gorm.DB,
	pairs PairReader,
	cards *card.Renderer,
	pdf PDFRenderer,
	store ObjectStore,
	notifier notify.Publisher,
	logger *slog.Logger,
) *SheetExportHandler {
	return &SheetExportHandler{
		db:       db,
		pairs:    pairs,
		cards:    cards,
		pdf:      pdf,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *SheetExportHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.SheetExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("export_id", uint64(payload.ExportID)),
	)

	var export database.SheetExport
	if err := h.db.WithContext(ctx).First(&export, payload.ExportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("sheet export not found, skipping task")
			return nil
		}
		log.Error("query sheet export failed", slog.Any("error", err))
		return err
	}
	log = log.With(slog.Uint64("user_id", uint64(export.UserID)))
	log.Info("starting sheet export")

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) && !errors.Is(retErr, asynq.SkipRetry) {
			return
		}
		h.fail(ctx, log, &export, payload.CorrelationID, retErr)
	}()

	if err := h.setStatus(ctx, &export, map[string]any{"status": database.ExportStatusProcessing}); err != nil {
		return err
	}

	var pairIDs []int64
	if err := json.Unmarshal(export.PairIDs, &pairIDs); err != nil {
		return fmt.Errorf("decode pair ids: %v: %w", err, asynq.SkipRetry)
	}

	opts := card.Options{Size: card.ParseSize(export.Size), Direction: style.ParseDirection(export.Direction)}
	rendered, missing, err := h.renderPairs(ctx, pairIDs, opts)
	if err != nil {
		log.Error("render pairs failed", slog.Any("error", err))
		return err
	}
	if len(rendered) == 0 {
		return fmt.Errorf("none of the %d pairs could be loaded: %w", len(pairIDs), asynq.SkipRetry)
	}

	doc, err := h.cards.Sheet(card.Sheet{Title: export.Title, Pairs: rendered})
	if err != nil {
		return err
	}
	pdfBytes, err := h.pdf.Render(ctx, doc)
	if err != nil {
		log.Error("render pdf failed", slog.Any("error", err))
		return err
	}

	objectKey := storage.SheetKey(export.UserID, export.ID, uuid.NewString())
	if err := h.store.UploadFile(ctx, objectKey, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.setStatus(ctx, &export, map[string]any{
		"status":     database.ExportStatusCompleted,
		"object_key": objectKey,
		"error":      "",
	}); err != nil {
		return err
	}

	msg := notify.SheetExportMessage{
		Type:          notify.TypeSheetExport,
		Status:        database.ExportStatusCompleted,
		ExportID:      export.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if len(missing) > 0 {
		msg.ErrorCode = errcode.PairMissing
		msg.ErrorMessage = "some pairs no longer exist and were skipped"
		msg.MissingPairs = missing
		log.Warn("sheet exported with missing pairs", slog.Any("missing_pairs", missing))
	}
	if err := notify.Send(ctx, h.notifier, export.UserID, msg); err != nil {
		// PDF 已经可下载，通知失败不重试整条任务。
		log.Error("publish export notification failed", slog.Any("error", err))
	}

	log.Info("sheet export completed", slog.Int("pairs", len(rendered)))
	return nil
}

// renderPairs renders every pair that still exists. Pairs the catalog reports as gone are
// returned in missing; any other catalog error aborts the export so asynq can retry.
func (h *SheetExportHandler) renderPairs(ctx context.Context, ids []int64, opts card.Options) ([]template.HTML, []int64, error) {
	var (
		out     []template.HTML
		missing []int64
	)
	for _, id := range ids {
		pair, err := h.pairs.GetPair(ctx, id)
		if catalog.IsNotFound(err) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("load pair %d: %w", id, err)
		}
		view, err := h.cards.PairPreview(ctx, h.pairs, pair, opts)
		if errors.Is(err, content.ErrMalformedPair) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("preview pair %d: %w", id, err)
		}
		html, err := h.cards.HTML(view)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, html)
	}
	return out, missing, nil
}

func (h *SheetExportHandler) setStatus(ctx context.Context, export *database.SheetExport, fields map[string]any) error {
	if err := h.db.WithContext(ctx).Model(export).Updates(fields).Error; err != nil {
		return fmt.Errorf("update sheet export: %w", err)
	}
	return nil
}

func (h *SheetExportHandler) fail(ctx context.Context, log *slog.Logger, export *database.SheetExport, correlationID string, cause error) {
	reason := strings.TrimSpace(cause.Error())
	if err := h.setStatus(ctx, export, map[string]any{
		"status": database.ExportStatusFailed,
		"error":  truncate(reason, 1024),
	}); err != nil {
		log.Error("mark sheet export failed", slog.Any("error", err))
	}

	msg := notify.SheetExportMessage{
		Type:          notify.TypeSheetExport,
		Status:        database.ExportStatusFailed,
		ExportID:      export.ID,
		CorrelationID: correlationID,
		ErrorCode:     errcode.RenderFailed,
		ErrorMessage:  reason,
	}
	var apiErr *catalog.APIError
	if errors.As(cause, &apiErr) {
		msg.ErrorCode = errcode.CatalogFailed
	}
	if err := notify.Send(ctx, h.notifier, export.UserID, msg); err != nil {
		log.Error("publish export error notification failed", slog.Any("error", err))
	}
}

// isFinalAsynqAttempt 判断当前是否为最后一次重试。
func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
