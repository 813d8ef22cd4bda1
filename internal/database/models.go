package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 导出任务状态。
const (
	ExportStatusPending    = "pending"
	ExportStatusProcessing = "processing"
	ExportStatusCompleted  = "completed"
	ExportStatusFailed     = "failed"
)

// SheetExport 表示一次把若干配对打印成 PDF 卡片页的导出任务。
type SheetExport struct {
	gorm.Model
	UserID    uint           `gorm:"index"`
	Title     string         `gorm:"size:255"`
	PairIDs   datatypes.JSON `gorm:"type:jsonb"` // []int64
	Direction string         `gorm:"size:8"`
	Size      string         `gorm:"size:16"`
	Status    string         `gorm:"size:32;index"`
	ObjectKey string         `gorm:"size:512"`
	Error     string         `gorm:"size:1024"`
}

// 子配对台账状态。
const (
	SubPairPending  = "pending"
	SubPairOrphaned = "orphaned"
)

// PendingSubPair mirrors a session's pending list in durable storage so that sub-pairs left
// behind by expired sessions or failed deletes can be swept later.
type PendingSubPair struct {
	gorm.Model
	SubPairID int64  `gorm:"uniqueIndex"`
	SessionID string `gorm:"size:64;index"`
	UserID    uint   `gorm:"index"`
	State     string `gorm:"size:16;index"`
	Attempts  int
	LastError string `gorm:"size:1024"`
}

// Migrate 创建或更新本服务拥有的表。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&SheetExport{}, &PendingSubPair{})
}
