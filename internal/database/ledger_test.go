package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestLedgerTrackIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Track(ctx, "s1", 3, 101); err != nil {
			t.Fatalf("track: %v", err)
		}
	}
	var count int64
	db.Model(&PendingSubPair{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}

func TestLedgerSweepSelection(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	ctx := context.Background()

	_ = l.Track(ctx, "live", 1, 1)
	_ = l.Track(ctx, "expired", 1, 2)
	_ = l.Track(ctx, "closed", 1, 3)
	_ = l.Track(ctx, "saved", 1, 4)

	old := time.Now().Add(-2 * time.Hour)
	db.Model(&PendingSubPair{}).Where("sub_pair_id = ?", 2).Update("updated_at", old)
	if err := l.MarkOrphaned(ctx, "delete failed", 3); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := l.Release(ctx, 4); err != nil {
		t.Fatalf("release: %v", err)
	}

	due, err := l.DueForSweep(ctx, time.Now().Add(-time.Hour), 5, 0)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	got := map[int64]bool{}
	for _, row := range due {
		got[row.SubPairID] = true
	}
	if len(got) != 2 || !got[2] || !got[3] {
		t.Fatalf("expected the expired and orphaned rows, got %+v", got)
	}
}

func TestLedgerRecordFailureStopsAfterMaxAttempts(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	ctx := context.Background()
	_ = l.Track(ctx, "s", 1, 9)

	for i := 0; i < 3; i++ {
		if err := l.RecordFailure(ctx, 9, "502"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	due, _ := l.DueForSweep(ctx, time.Now(), 3, 0)
	if len(due) != 0 {
		t.Fatalf("rows past max attempts must be skipped, got %+v", due)
	}
	due, _ = l.DueForSweep(ctx, time.Now(), 0, 0)
	if len(due) != 1 || due[0].Attempts != 3 || due[0].State != SubPairOrphaned {
		t.Fatalf("unexpected row %+v", due)
	}
}

func TestLedgerTouchKeepsLiveSessions(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	ctx := context.Background()
	_ = l.Track(ctx, "s", 1, 5)
	db.Model(&PendingSubPair{}).Where("sub_pair_id = ?", 5).Update("updated_at", time.Now().Add(-3*time.Hour))

	if err := l.Touch(ctx, "s"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	due, _ := l.DueForSweep(ctx, time.Now().Add(-time.Hour), 0, 0)
	if len(due) != 0 {
		t.Fatalf("touched session should not be swept: %+v", due)
	}
}
