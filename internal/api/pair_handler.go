package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pairStudio/internal/api/middleware"
	"pairStudio/internal/card"
	"pairStudio/internal/style"
)

// PreviewCatalog 读取与删除已保存的配对。
type PreviewCatalog interface {
	card.PairGetter
	DeletePair(ctx context.Context, id int64) error
}

// PairHandler serves pair previews and deletes.
type PairHandler struct {
	Catalog  PreviewCatalog
	Renderer *card.Renderer
	Logger   *slog.Logger
}

func NewPairHandler(cat PreviewCatalog, renderer *card.Renderer, logger *slog.Logger) *PairHandler {
	return &PairHandler{Catalog: cat, Renderer: renderer, Logger: logger}
}

// Preview renders a saved pair as an HTML fragment; sub-pairs are shown as composite cards.
func (h *PairHandler) Preview(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	pair, err := h.Catalog.GetPair(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	opts := card.Options{
		Size:      card.ParseSize(c.Query("size")),
		Direction: style.ParseDirection(c.Query("dir")),
	}
	view, err := h.Renderer.PairPreview(ctx, h.Catalog, pair, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	html, err := h.Renderer.HTML(view)
	if err != nil {
		middleware.LoggerFromContext(c).Error("render pair preview", "pair_id", id, "error", err)
		Internal(c, "failed to render pair")
		return
	}

	c.Header("X-Pair-Type", string(view.Type))
	c.Data(http.StatusOK, "text/html; charset=utf-8", bytes.TrimSpace([]byte(html)))
}

// DeletePair 删除目录中的配对。
func (h *PairHandler) DeletePair(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.DeletePair(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
