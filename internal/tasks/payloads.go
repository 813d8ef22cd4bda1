package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeSheetExport  = "sheet:export"
	TypeSubPairSweep = "subpair:sweep"
)

// SheetExportPayload 描述一次卡片页导出。
type SheetExportPayload struct {
	ExportID      uint   `json:"export_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewSheetExportTask 构造 PDF 导出任务。
func NewSheetExportTask(exportID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SheetExportPayload{
		ExportID:      exportID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSheetExport, payload, asynq.MaxRetry(3), asynq.Timeout(2*time.Minute)), nil
}

// SubPairSweepPayload 控制一次孤儿子配对清扫；零值使用 worker 配置。
type SubPairSweepPayload struct {
	Limit int `json:"limit,omitempty"`
}

// NewSubPairSweepTask builds the sweep task. Unique keeps overlapping schedules from piling up.
func NewSubPairSweepTask(limit int) (*asynq.Task, error) {
	payload, err := json.Marshal(SubPairSweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSubPairSweep, payload, asynq.MaxRetry(0), asynq.Unique(10*time.Minute)), nil
}
