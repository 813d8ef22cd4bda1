package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"pairStudio/internal/card"
	"pairStudio/internal/content"
	"pairStudio/internal/database"
	"pairStudio/internal/tasks"
)

func TestPairPreviewRendersCompositeSide(t *testing.T) {
	cat := newFakeCatalog()
	cat.pairs[10] = content.Pair{
		ID:      10,
		UseType: content.UsePair,
		Contents: []content.Entry{
			{ID: 11, Source: content.SourceSubPair, SubPair: &content.Pair{
				ID:      11,
				UseType: content.UseMixedContents,
				Contents: []content.Entry{
					{ID: 1, Source: content.SourceCatalog, Item: &content.Item{ID: 1, ElementType: content.ElementBackgroundImage, FileURL: "https://cdn/sky.png"}},
					{ID: 2, Source: content.SourceCatalog, Item: &content.Item{ID: 2, ElementType: content.ElementData, Content: "שמיים"}},
				},
			}},
			{ID: 3, Source: content.SourceCatalog, Item: &content.Item{ID: 3, ElementType: content.ElementData, Content: "sky"}},
		},
	}
	h := NewPairHandler(cat, card.NewRenderer(), slog.Default())
	r := gin.New()
	r.GET("/v1/pairs/:id/preview", withUser(1), h.Preview)
	r.DELETE("/v1/pairs/:id", withUser(1), h.DeletePair)

	w := doJSON(t, r, http.MethodGet, "/v1/pairs/10/preview?size=small&dir=ltr", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview: %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Pair-Type"); got != string(content.PairCompositeCard) {
		t.Fatalf("unexpected pair type %q", got)
	}
	html := w.Body.String()
	for _, want := range []string{`dir="ltr"`, "https://cdn/sky.png", "שמיים", "card-composite"} {
		if !strings.Contains(html, want) {
			t.Fatalf("preview missing %q: %s", want, html)
		}
	}

	if w := doJSON(t, r, http.MethodGet, "/v1/pairs/99/preview", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/v1/pairs/abc/preview", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	if w := doJSON(t, r, http.MethodDelete, "/v1/pairs/10", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if len(cat.deletes) != 1 || cat.deletes[0] != 10 {
		t.Fatalf("unexpected deletes %v", cat.deletes)
	}
}

func newExportRouter(h *ExportHandler, userID uint) *gin.Engine {
	r := gin.New()
	g := r.Group("/v1/exports", withUser(userID))
	g.POST("", h.CreateExport)
	g.GET("/:id", h.GetExport)
	g.DELETE("/:id", h.DeleteExport)
	return r
}

func TestCreateExportQueuesTask(t *testing.T) {
	db := newTestDB(t)
	queue := &fakeQueue{}
	h := NewExportHandler(db, queue, &fakeSigner{}, slog.Default())
	r := newExportRouter(h, 4)

	w := doJSON(t, r, http.MethodPost, "/v1/exports", gin.H{"pairIds": []int64{3, 5, 3}, "title": "Animals", "size": "large"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("create export: %d %s", w.Code, w.Body.String())
	}

	var export database.SheetExport
	if err := db.First(&export).Error; err != nil {
		t.Fatalf("load export: %v", err)
	}
	var ids []int64
	_ = json.Unmarshal(export.PairIDs, &ids)
	if export.UserID != 4 || export.Status != database.ExportStatusPending || len(ids) != 2 || export.Size != string(card.Large) || export.Direction != "rtl" {
		t.Fatalf("unexpected export row %+v ids=%v", export, ids)
	}

	if len(queue.tasks) != 1 || queue.tasks[0].Type() != tasks.TypeSheetExport {
		t.Fatalf("expected one export task, got %d", len(queue.tasks))
	}
	var payload tasks.SheetExportPayload
	if err := json.Unmarshal(queue.tasks[0].Payload(), &payload); err != nil || payload.ExportID != export.ID {
		t.Fatalf("unexpected payload %+v (%v)", payload, err)
	}
}

func TestCreateExportValidation(t *testing.T) {
	h := NewExportHandler(newTestDB(t), &fakeQueue{}, nil, slog.Default())
	r := newExportRouter(h, 4)

	for _, body := range []gin.H{{"pairIds": []int64{}}, {"pairIds": []int64{0}}} {
		if w := doJSON(t, r, http.MethodPost, "/v1/exports", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%v: expected 400, got %d", body, w.Code)
		}
	}
}

func TestCreateExportMarksFailedWhenQueueIsDown(t *testing.T) {
	db := newTestDB(t)
	h := NewExportHandler(db, &fakeQueue{err: errors.New("redis down")}, nil, slog.Default())
	r := newExportRouter(h, 4)

	if w := doJSON(t, r, http.MethodPost, "/v1/exports", gin.H{"pairIds": []int64{1}}); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var export database.SheetExport
	db.First(&export)
	if export.Status != database.ExportStatusFailed {
		t.Fatalf("expected failed export, got %q", export.Status)
	}
}

func TestGetExportSignsCompletedDownloads(t *testing.T) {
	db := newTestDB(t)
	signer := &fakeSigner{}
	h := NewExportHandler(db, &fakeQueue{}, signer, slog.Default())

	done := database.SheetExport{UserID: 4, Title: "Animals", PairIDs: []byte(`[1]`), Status: database.ExportStatusCompleted, ObjectKey: "card-sheets/4/1-x.pdf"}
	pending := database.SheetExport{UserID: 4, Title: "Later", PairIDs: []byte(`[2]`), Status: database.ExportStatusPending}
	db.Create(&done)
	db.Create(&pending)

	r := newExportRouter(h, 4)
	w := doJSON(t, r, http.MethodGet, "/v1/exports/"+itoa(done.ID), nil)
	view := decode[exportView](t, w)
	if w.Code != http.StatusOK || !strings.Contains(view.DownloadURL, done.ObjectKey) || !strings.Contains(view.DownloadURL, "Animals.pdf") {
		t.Fatalf("unexpected completed view %d %+v", w.Code, view)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/exports/"+itoa(pending.ID), nil)
	if view := decode[exportView](t, w); view.DownloadURL != "" || view.Status != database.ExportStatusPending {
		t.Fatalf("pending export must not be signed: %+v", view)
	}
	if len(signer.keys) != 1 {
		t.Fatalf("expected one signature, got %d", len(signer.keys))
	}

	other := newExportRouter(h, 5)
	if w := doJSON(t, other, http.MethodGet, "/v1/exports/"+itoa(done.ID), nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user, got %d", w.Code)
	}
}

func TestDeleteExportRemovesFileAndRecord(t *testing.T) {
	db := newTestDB(t)
	files := &fakeSigner{}
	h := NewExportHandler(db, &fakeQueue{}, files, slog.Default())

	done := database.SheetExport{UserID: 4, Title: "Animals", PairIDs: []byte(`[1]`), Status: database.ExportStatusCompleted, ObjectKey: "card-sheets/4/1-x.pdf"}
	running := database.SheetExport{UserID: 4, Title: "Busy", PairIDs: []byte(`[2]`), Status: database.ExportStatusProcessing}
	db.Create(&done)
	db.Create(&running)

	if w := doJSON(t, newExportRouter(h, 5), http.MethodDelete, "/v1/exports/"+itoa(done.ID), nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user, got %d", w.Code)
	}

	r := newExportRouter(h, 4)
	if w := doJSON(t, r, http.MethodDelete, "/v1/exports/"+itoa(running.ID), nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while processing, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/v1/exports/"+itoa(done.ID), nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if len(files.deleted) != 1 || files.deleted[0] != done.ObjectKey {
		t.Fatalf("expected the sheet object to be removed, got %v", files.deleted)
	}
	var count int64
	db.Model(&database.SheetExport{}).Where("id = ?", done.ID).Count(&count)
	if count != 0 {
		t.Fatal("export record must be deleted")
	}
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
