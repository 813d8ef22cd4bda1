package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pairStudio/internal/card"
	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
	"pairStudio/internal/database"
	"pairStudio/internal/errcode"
	"pairStudio/internal/notify"
	"pairStudio/internal/tasks"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePairs struct {
	pairs   map[int64]content.Pair
	failErr error
	deletes []int64
	delErr  map[int64]error
}

func (f *fakePairs) GetPair(_ context.Context, id int64) (content.Pair, error) {
	if f.failErr != nil {
		return content.Pair{}, f.failErr
	}
	p, ok := f.pairs[id]
	if !ok {
		return content.Pair{}, &catalog.APIError{Op: "get pair", Status: 404, Message: "not found"}
	}
	return p, nil
}

func (f *fakePairs) DeletePair(_ context.Context, id int64) error {
	f.deletes = append(f.deletes, id)
	return f.delErr[id]
}

type fakePDF struct{ html []byte }

func (f *fakePDF) Render(_ context.Context, html []byte) ([]byte, error) {
	f.html = html
	return []byte("%PDF-1.7"), nil
}

type fakeStore struct {
	keys []string
	data []byte
}

func (f *fakeStore) UploadFile(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if contentType != "application/pdf" {
		return errors.New("unexpected content type " + contentType)
	}
	f.keys = append(f.keys, key)
	f.data, _ = io.ReadAll(r)
	return nil
}

type fakePublisher struct {
	channels []string
	messages [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channels = append(f.channels, channel)
	f.messages = append(f.messages, message.([]byte))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func textEntry(id int64, s string) content.Entry {
	return content.Entry{ID: id, Source: content.SourceCatalog, Item: &content.Item{ID: id, ElementType: content.ElementData, Content: s}}
}

func createExport(t *testing.T, db *gorm.DB, ids []int64) database.SheetExport {
	t.Helper()
	raw, _ := json.Marshal(ids)
	export := database.SheetExport{UserID: 8, Title: "Fruit", PairIDs: datatypes.JSON(raw), Status: database.ExportStatusPending}
	if err := db.Create(&export).Error; err != nil {
		t.Fatalf("create export: %v", err)
	}
	return export
}

func exportTask(t *testing.T, id uint) *asynq.Task {
	t.Helper()
	task, err := tasks.NewSheetExportTask(id, "corr-1")
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestSheetExportSkipsMissingPairs(t *testing.T) {
	db := newTestDB(t)
	pairs := &fakePairs{pairs: map[int64]content.Pair{
		1: {ID: 1, Contents: []content.Entry{textEntry(10, "apple"), textEntry(11, "תפוח")}},
	}}
	pdf, store, pub := &fakePDF{}, &fakeStore{}, &fakePublisher{}
	h := NewSheetExportHandler(db, pairs, card.NewRenderer(), pdf, store, pub, discardLogger())

	export := createExport(t, db, []int64{1, 2})
	if err := h.ProcessTask(context.Background(), exportTask(t, export.ID)); err != nil {
		t.Fatalf("process: %v", err)
	}

	var got database.SheetExport
	db.First(&got, export.ID)
	if got.Status != database.ExportStatusCompleted || len(store.keys) != 1 || got.ObjectKey != store.keys[0] {
		t.Fatalf("unexpected export row %+v (keys %v)", got, store.keys)
	}
	if !strings.HasPrefix(got.ObjectKey, "card-sheets/8/") || string(store.data) != "%PDF-1.7" {
		t.Fatalf("unexpected object %q", got.ObjectKey)
	}
	if !strings.Contains(string(pdf.html), "apple") || !strings.Contains(string(pdf.html), "Fruit") {
		t.Fatalf("sheet html missing content")
	}

	if len(pub.channels) != 1 || pub.channels[0] != notify.Channel(8) {
		t.Fatalf("unexpected notifications %v", pub.channels)
	}
	var msg notify.SheetExportMessage
	_ = json.Unmarshal(pub.messages[0], &msg)
	if msg.ErrorCode != errcode.PairMissing || len(msg.MissingPairs) != 1 || msg.MissingPairs[0] != 2 {
		t.Fatalf("unexpected notification %+v", msg)
	}
}

func TestSheetExportFailsWhenNothingRenders(t *testing.T) {
	db := newTestDB(t)
	pub := &fakePublisher{}
	h := NewSheetExportHandler(db, &fakePairs{}, card.NewRenderer(), &fakePDF{}, &fakeStore{}, pub, discardLogger())

	export := createExport(t, db, []int64{5})
	err := h.ProcessTask(context.Background(), exportTask(t, export.ID))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	var got database.SheetExport
	db.First(&got, export.ID)
	if got.Status != database.ExportStatusFailed || got.Error == "" {
		t.Fatalf("export should be marked failed: %+v", got)
	}
	var msg notify.SheetExportMessage
	_ = json.Unmarshal(pub.messages[0], &msg)
	if msg.Status != database.ExportStatusFailed || msg.ErrorCode != errcode.RenderFailed {
		t.Fatalf("unexpected notification %+v", msg)
	}
}

func TestSheetExportRetriesCatalogErrors(t *testing.T) {
	db := newTestDB(t)
	pub := &fakePublisher{}
	pairs := &fakePairs{failErr: &catalog.APIError{Op: "get pair", Status: 503, Message: "down"}}
	h := NewSheetExportHandler(db, pairs, card.NewRenderer(), &fakePDF{}, &fakeStore{}, pub, discardLogger())

	export := createExport(t, db, []int64{1})
	err := h.ProcessTask(context.Background(), exportTask(t, export.ID))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("catalog outage should be retried, got %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("no notification before the final attempt")
	}
}

func TestSheetExportIgnoresUnknownExport(t *testing.T) {
	db := newTestDB(t)
	h := NewSheetExportHandler(db, &fakePairs{}, card.NewRenderer(), &fakePDF{}, &fakeStore{}, &fakePublisher{}, discardLogger())
	if err := h.ProcessTask(context.Background(), exportTask(t, 999)); err != nil {
		t.Fatalf("unknown export should be skipped, got %v", err)
	}
}

func TestSweepDeletesDueSubPairs(t *testing.T) {
	db := newTestDB(t)
	ledger := database.NewLedger(db)
	ctx := context.Background()

	_ = ledger.Track(ctx, "live", 1, 1)
	_ = ledger.Track(ctx, "expired", 1, 2)
	_ = ledger.Track(ctx, "gone", 1, 3)
	_ = ledger.Track(ctx, "broken", 1, 4)
	db.Model(&database.PendingSubPair{}).Where("sub_pair_id IN ?", []int64{2, 3, 4}).
		Update("updated_at", time.Now().Add(-5*time.Hour))

	pairs := &fakePairs{delErr: map[int64]error{
		3: &catalog.APIError{Op: "delete pair", Status: 404},
		4: &catalog.APIError{Op: "delete pair", Status: 500},
	}}
	h := NewSweepHandler(ledger, pairs, SweepOptions{StaleAfter: 3 * time.Hour, MaxAttempts: 5, Batch: 50}, discardLogger())

	report, err := h.Run(ctx, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Deleted) != 2 || len(report.Failed) != 1 || report.Failed[0] != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	for _, id := range pairs.deletes {
		if id == 1 {
			t.Fatal("a live session's sub-pair must not be deleted")
		}
	}

	var rows []database.PendingSubPair
	db.Order("sub_pair_id").Find(&rows)
	if len(rows) != 2 || rows[0].SubPairID != 1 || rows[1].SubPairID != 4 || rows[1].Attempts != 1 {
		t.Fatalf("unexpected ledger %+v", rows)
	}
}

func TestSweepTaskPayload(t *testing.T) {
	db := newTestDB(t)
	h := NewSweepHandler(database.NewLedger(db), &fakePairs{}, SweepOptions{StaleAfter: time.Hour, Batch: 10}, discardLogger())
	task, err := tasks.NewSubPairSweepTask(5)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
}
