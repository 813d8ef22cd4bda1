package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pairStudio/internal/api/middleware"
	"pairStudio/internal/card"
	"pairStudio/internal/database"
	"pairStudio/internal/style"
	"pairStudio/internal/tasks"
)

// maxExportPairs 限制单次导出的配对数量。
const maxExportPairs = 60

// TaskEnqueuer is the slice of asynq.Client used to schedule exports.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExportFiles is the slice of the object store holding rendered sheets.
type ExportFiles interface {
	DownloadURL(ctx context.Context, objectKey, filename string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// ExportHandler 管理卡片页 PDF 导出。
type ExportHandler struct {
	db      *gorm.DB
	queue   TaskEnqueuer
	files   ExportFiles
	linkTTL time.Duration
	logger  *slog.Logger
}

func NewExportHandler(db *gorm.DB, queue TaskEnqueuer, files ExportFiles, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{db: db, queue: queue, files: files, linkTTL: 10 * time.Minute, logger: logger}
}

type createExportRequest struct {
	PairIDs   []int64 `json:"pairIds"`
	Title     string  `json:"title"`
	Size      string  `json:"size"`
	Direction string  `json:"direction"`
}

type exportView struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	PairIDs     []int64   `json:"pairIds"`
	Error       string    `json:"error,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateExport records the export and queues it for the worker.
func (h *ExportHandler) CreateExport(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	pairIDs := dedupeIDs(req.PairIDs)
	if len(pairIDs) == 0 {
		BadRequest(c, "pairIds is required")
		return
	}
	if len(pairIDs) > maxExportPairs {
		BadRequest(c, fmt.Sprintf("at most %d pairs per export", maxExportPairs))
		return
	}
	for _, id := range pairIDs {
		if id <= 0 {
			BadRequest(c, "invalid pair id")
			return
		}
	}

	raw, err := json.Marshal(pairIDs)
	if err != nil {
		Internal(c, "failed to encode pair ids")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Memory cards"
	}

	export := database.SheetExport{
		UserID:    userID,
		Title:     title,
		PairIDs:   datatypes.JSON(raw),
		Direction: string(style.ParseDirection(req.Direction)),
		Size:      string(card.ParseSize(req.Size)),
		Status:    database.ExportStatusPending,
	}
	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Create(&export).Error; err != nil {
		middleware.LoggerFromContext(c).Error("create sheet export", "error", err)
		Internal(c, "failed to create export")
		return
	}

	task, err := tasks.NewSheetExportTask(export.ID, middleware.GetCorrelationID(c))
	if err != nil {
		Internal(c, "failed to create task")
		return
	}
	info, err := h.queue.EnqueueContext(ctx, task)
	if err != nil {
		middleware.LoggerFromContext(c).Error("enqueue sheet export", "export_id", export.ID, "error", err)
		h.db.WithContext(ctx).Model(&export).Updates(map[string]any{
			"status": database.ExportStatusFailed,
			"error":  "enqueue failed",
		})
		Internal(c, "failed to enqueue export")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"export":  h.view(ctx, export),
		"task_id": info.ID,
	})
}

// GetExport 返回导出状态，完成后附带限时下载链接。
func (h *ExportHandler) GetExport(c *gin.Context) {
	export, ok := h.ownedExport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.view(c.Request.Context(), export))
}

// DeleteExport removes the rendered PDF and then the export record.
// 正在处理中的导出不允许删除。
func (h *ExportHandler) DeleteExport(c *gin.Context) {
	export, ok := h.ownedExport(c)
	if !ok {
		return
	}
	if export.Status == database.ExportStatusPending || export.Status == database.ExportStatusProcessing {
		Conflict(c, "export is still being generated")
		return
	}
	ctx := c.Request.Context()
	if export.ObjectKey != "" && h.files != nil {
		if err := h.files.DeleteObject(ctx, export.ObjectKey); err != nil {
			middleware.LoggerFromContext(c).Error("delete export object", "export_id", export.ID, "error", err)
			Internal(c, "failed to delete export file")
			return
		}
	}
	if err := h.db.WithContext(ctx).Delete(&export).Error; err != nil {
		Internal(c, "failed to delete export")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ExportHandler) ownedExport(c *gin.Context) (database.SheetExport, bool) {
	var export database.SheetExport
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return export, false
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return export, false
	}

	err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&export).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "export not found")
			return export, false
		}
		Internal(c, "failed to query export")
		return export, false
	}
	return export, true
}

func (h *ExportHandler) view(ctx context.Context, export database.SheetExport) exportView {
	v := exportView{
		ID:        export.ID,
		Title:     export.Title,
		Status:    export.Status,
		Error:     export.Error,
		CreatedAt: export.CreatedAt,
	}
	_ = json.Unmarshal(export.PairIDs, &v.PairIDs)

	if export.Status == database.ExportStatusCompleted && export.ObjectKey != "" && h.files != nil {
		url, err := h.files.DownloadURL(ctx, export.ObjectKey, export.Title+".pdf", h.linkTTL)
		if err != nil {
			h.logger.Warn("sign export download", "export_id", export.ID, "error", err)
		} else {
			v.DownloadURL = url
		}
	}
	return v
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
