package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger records sub-pairs that exist in the catalog but are not yet owned by a saved pair.
type Ledger struct {
	db *gorm.DB
}

// NewLedger 包装数据库连接。
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Track adds a freshly created sub-pair. Tracking the same id twice is a no-op.
func (l *Ledger) Track(ctx context.Context, sessionID string, userID uint, subPairID int64) error {
	row := PendingSubPair{
		SubPairID: subPairID,
		SessionID: sessionID,
		UserID:    userID,
		State:     SubPairPending,
	}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sub_pair_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("track sub-pair %d: %w", subPairID, err)
	}
	return nil
}

// Release forgets sub-pairs that were deleted or now belong to a saved pair.
func (l *Ledger) Release(ctx context.Context, subPairIDs ...int64) error {
	if len(subPairIDs) == 0 {
		return nil
	}
	err := l.db.WithContext(ctx).Unscoped().
		Where("sub_pair_id IN ?", subPairIDs).
		Delete(&PendingSubPair{}).Error
	if err != nil {
		return fmt.Errorf("release sub-pairs: %w", err)
	}
	return nil
}

// MarkOrphaned flags sub-pairs whose cleanup delete failed.
func (l *Ledger) MarkOrphaned(ctx context.Context, reason string, subPairIDs ...int64) error {
	if len(subPairIDs) == 0 {
		return nil
	}
	err := l.db.WithContext(ctx).Model(&PendingSubPair{}).
		Where("sub_pair_id IN ?", subPairIDs).
		Updates(map[string]any{"state": SubPairOrphaned, "last_error": truncate(reason, 1024)}).Error
	if err != nil {
		return fmt.Errorf("mark sub-pairs orphaned: %w", err)
	}
	return nil
}

// DueForSweep returns orphaned rows plus pending rows untouched since staleBefore,
// i.e. sessions that expired without closing. Rows that failed maxAttempts times are skipped.
func (l *Ledger) DueForSweep(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]PendingSubPair, error) {
	var rows []PendingSubPair
	q := l.db.WithContext(ctx).
		Where("state = ? OR (state = ? AND updated_at < ?)", SubPairOrphaned, SubPairPending, staleBefore)
	if maxAttempts > 0 {
		q = q.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query sub-pairs due for sweep: %w", err)
	}
	return rows, nil
}

// RecordFailure bumps the attempt counter of a row the sweep could not delete.
func (l *Ledger) RecordFailure(ctx context.Context, subPairID int64, reason string) error {
	err := l.db.WithContext(ctx).Model(&PendingSubPair{}).
		Where("sub_pair_id = ?", subPairID).
		Updates(map[string]any{
			"state":      SubPairOrphaned,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncate(reason, 1024),
		}).Error
	if err != nil {
		return fmt.Errorf("record sweep failure for %d: %w", subPairID, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Touch marks the rows of a live session as recently used so the sweep leaves them alone.
func (l *Ledger) Touch(ctx context.Context, sessionID string) error {
	err := l.db.WithContext(ctx).Model(&PendingSubPair{}).
		Where("session_id = ? AND state = ?", sessionID, SubPairPending).
		Update("updated_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("touch session sub-pairs: %w", err)
	}
	return nil
}
