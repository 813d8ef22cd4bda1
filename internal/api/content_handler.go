package api

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pairStudio/internal/api/middleware"
	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
	"pairStudio/internal/editor"
	"pairStudio/internal/errcode"
	"pairStudio/internal/metrics"
	"pairStudio/internal/notify"
)

// ContentCatalog is what the contents endpoints need from the catalog.
type ContentCatalog interface {
	editor.Searcher
	editor.Uploader
}

// ContentHandler 处理内容检索与新建。
type ContentHandler struct {
	Catalog   ContentCatalog
	Creator   *editor.Creator
	Scanner   VirusScanner
	Publisher notify.Publisher
	Limiter   *uploadRateLimiter
	Logger    *slog.Logger
}

// NewContentHandler wires the handler. scanner and publisher may be nil.
func NewContentHandler(cat ContentCatalog, scanner VirusScanner, publisher notify.Publisher, limiter *uploadRateLimiter, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		Catalog:   cat,
		Creator:   editor.NewCreator(cat),
		Scanner:   scanner,
		Publisher: publisher,
		Limiter:   limiter,
		Logger:    logger,
	}
}

// ListContents 返回一页可选内容，exclude=1,2 中的条目不会出现。
func (h *ContentHandler) ListContents(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		page = 0
	}
	elementType, err := content.ParseElementType(c.Query("elementType"))
	if err != nil {
		BadRequest(c, "invalid elementType")
		return
	}
	exclude, err := parseIDList(c.Query("exclude"))
	if err != nil {
		BadRequest(c, "invalid exclude list")
		return
	}

	selector := editor.NewSelector(h.Catalog, exclude...)
	result, err := selector.Search(c.Request.Context(), editor.SelectorQuery{
		Search:      strings.TrimSpace(c.Query("search")),
		ElementType: elementType,
		Page:        page,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateContent accepts a JSON body for text items or a multipart form for file items.
func (h *ContentHandler) CreateContent(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var (
		draft  editor.Draft
		header *multipart.FileHeader
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var err error
		draft, header, err = draftFromForm(c)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
	} else if err := c.ShouldBindJSON(&draft); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	if header != nil {
		// 校验阶段只需要文件元信息，真正的读取在扫描之后。
		draft.File = &editor.File{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        http.NoBody,
		}
	}
	if err := h.Creator.Validate(draft); err != nil {
		metrics.Upload("invalid")
		respondError(c, err)
		return
	}

	if !draft.ElementType.RequiresFile() {
		item, err := h.Creator.Create(c.Request.Context(), draft, nil)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"item": item})
		return
	}

	if !h.Limiter.Allow(c.Request.Context(), userID) {
		Error(c, http.StatusTooManyRequests, "too many uploads, please retry later")
		return
	}

	uploadID := c.PostForm("uploadId")
	if uploadID == "" {
		uploadID = uuid.NewString()
	}
	correlationID := middleware.GetCorrelationID(c)

	log := middleware.LoggerFromContext(c)
	if h.Scanner != nil {
		if err := h.scanUpload(header); err != nil {
			if errors.Is(err, ErrInfected) {
				metrics.Upload("infected")
				log.Warn("upload rejected by virus scan", "filename", header.Filename)
				h.uploadFailed(userID, uploadID, correlationID, errcode.UploadRejected)
				Error(c, http.StatusUnprocessableEntity, "malicious file detected")
				return
			}
			metrics.Upload("error")
			log.Error("scan upload", "error", err)
			h.uploadFailed(userID, uploadID, correlationID, errcode.SystemError)
			Internal(c, "failed to scan file")
			return
		}
	}

	file, err := header.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer file.Close()
	draft.File.Body = file

	progress := h.progressFunc(userID, uploadID, correlationID)

	item, err := h.Creator.Create(c.Request.Context(), draft, progress)
	if err != nil {
		metrics.Upload("error")
		h.uploadFailed(userID, uploadID, correlationID, errcode.CatalogFailed)
		respondError(c, err)
		return
	}
	metrics.Upload("ok")
	c.JSON(http.StatusCreated, gin.H{"item": item, "uploadId": uploadID})
}

func (h *ContentHandler) scanUpload(header *multipart.FileHeader) error {
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	return h.Scanner.Scan(file)
}

// progressFunc publishes upload progress on the user's channel. Only changed percentages
// are sent; the catalog client may call it from its form-writer goroutine.
func (h *ContentHandler) progressFunc(userID uint, uploadID, correlationID string) catalog.ProgressFunc {
	if h.Publisher == nil {
		return nil
	}
	var (
		mu   sync.Mutex
		last = -1
	)
	return func(percent int) {
		mu.Lock()
		defer mu.Unlock()
		if percent == last {
			return
		}
		last = percent
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		msg := notify.UploadProgressMessage{
			Type:          notify.TypeUploadProgress,
			UploadID:      uploadID,
			CorrelationID: correlationID,
			Progress:      percent,
		}
		if err := notify.Send(ctx, h.Publisher, userID, msg); err != nil {
			h.Logger.Warn("publish upload progress", "upload_id", uploadID, "error", err)
		}
	}
}

// uploadFailed tells the uploading client to stop waiting for progress.
func (h *ContentHandler) uploadFailed(userID uint, uploadID, correlationID string, code int) {
	if h.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg := notify.UploadProgressMessage{
		Type:          notify.TypeUploadProgress,
		UploadID:      uploadID,
		CorrelationID: correlationID,
		ErrorCode:     code,
	}
	if err := notify.Send(ctx, h.Publisher, userID, msg); err != nil {
		h.Logger.Warn("publish upload failure", "upload_id", uploadID, "error", err)
	}
}

func draftFromForm(c *gin.Context) (editor.Draft, *multipart.FileHeader, error) {
	draft := editor.Draft{
		ElementType: content.ElementType(c.PostForm("elementType")),
		Name:        c.PostForm("content"),
	}
	if raw := c.PostForm("contentMetadata"); raw != "" {
		if err := bindJSONString(raw, &draft.Metadata); err != nil {
			return editor.Draft{}, nil, errors.New("invalid contentMetadata")
		}
	}
	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return draft, nil, nil
		}
		return editor.Draft{}, nil, errors.New("invalid file")
	}
	return draft, header, nil
}
