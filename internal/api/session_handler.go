package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"pairStudio/internal/api/middleware"
	"pairStudio/internal/autosave"
	"pairStudio/internal/content"
	"pairStudio/internal/editor"
	"pairStudio/internal/metrics"
	"pairStudio/internal/sessionstore"
	"pairStudio/internal/style"
)

// SessionStore persists editor sessions between requests.
type SessionStore interface {
	Create(ctx context.Context, userID uint, st editor.State) (sessionstore.Session, error)
	Load(ctx context.Context, id string) (sessionstore.Session, error)
	Save(ctx context.Context, sess sessionstore.Session) error
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (func(), error)
}

// PairCatalog 编辑会话对目录服务的读写。
type PairCatalog interface {
	editor.PairService
	GetPair(ctx context.Context, id int64) (content.Pair, error)
}

// SubPairLedger mirrors the pending sub-pairs of each session in the database.
type SubPairLedger interface {
	Track(ctx context.Context, sessionID string, userID uint, subPairID int64) error
	Release(ctx context.Context, subPairIDs ...int64) error
	MarkOrphaned(ctx context.Context, reason string, subPairIDs ...int64) error
	Touch(ctx context.Context, sessionID string) error
}

// SessionHandler 处理配对编辑会话。
type SessionHandler struct {
	Store    SessionStore
	Catalog  PairCatalog
	Ledger   SubPairLedger
	Autosave *autosave.Debouncer
	Logger   *slog.Logger

	flushTimeout time.Duration
}

func NewSessionHandler(store SessionStore, cat PairCatalog, ledger SubPairLedger, debouncer *autosave.Debouncer, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		Store:        store,
		Catalog:      cat,
		Ledger:       ledger,
		Autosave:     debouncer,
		Logger:       logger,
		flushTimeout: 15 * time.Second,
	}
}

type sessionView struct {
	ID        string           `json:"id"`
	State     editor.State     `json:"state"`
	PairType  content.PairType `json:"pairType,omitempty"`
	Complete  bool             `json:"complete"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func newSessionView(sess sessionstore.Session) sessionView {
	pairType, complete := sess.State.PairType()
	if complete {
		for _, side := range sess.State.Sides {
			if side.Phase != editor.PhaseCommitted {
				complete = false
			}
		}
	}
	return sessionView{
		ID:        sess.ID,
		State:     sess.State,
		PairType:  pairType,
		Complete:  complete,
		UpdatedAt: sess.UpdatedAt,
	}
}

type createSessionRequest struct {
	PairID *int64 `json:"pairId"`
}

// CreateSession 打开创建模式或编辑模式（带 pairId）的会话。
func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "invalid request body")
			return
		}
	}

	state := editor.NewState()
	if req.PairID != nil {
		if *req.PairID <= 0 {
			BadRequest(c, "invalid pairId")
			return
		}
		pair, err := h.Catalog.GetPair(c.Request.Context(), *req.PairID)
		if err != nil {
			respondError(c, err)
			return
		}
		state, err = editor.StateFromPair(c.Request.Context(), h.Catalog, pair)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	sess, err := h.Store.Create(c.Request.Context(), userID, state)
	if err != nil {
		middleware.LoggerFromContext(c).Error("create editor session", "error", err)
		Internal(c, "failed to create editor session")
		return
	}
	metrics.SessionOpened()
	middleware.LoggerFromContext(c).Info("editor session opened",
		slog.String("session_id", sess.ID),
		slog.Int64("pair_id", state.PairID),
	)
	c.JSON(http.StatusCreated, newSessionView(sess))
}

// GetSession returns the state and derived pair type.
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	sess, err := h.Store.Load(c.Request.Context(), c.Param("id"))
	if err == nil && sess.UserID != userID {
		err = sessionstore.ErrNotFound
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionView(sess))
}

type pickRequest struct {
	Item    content.Item `json:"item"`
	Compose bool         `json:"compose"`
}

// PickSide feeds a selected catalog item to one side.
func (h *SessionHandler) PickSide(c *gin.Context) {
	var req pickRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Item.ID <= 0 {
		BadRequest(c, "invalid request body")
		return
	}
	if !req.Item.ElementType.Valid() {
		BadRequest(c, "invalid elementType")
		return
	}
	h.withSide(c, func(ctx context.Context, ed *editor.Editor, side editor.SideID) (any, error) {
		result, err := ed.Pick(ctx, side, req.Item, req.Compose)
		if err != nil {
			return nil, err
		}
		return gin.H{"side": result}, nil
	})
}

// CancelSide 取消一侧未完成的合成。
func (h *SessionHandler) CancelSide(c *gin.Context) {
	h.withSide(c, func(_ context.Context, ed *editor.Editor, side editor.SideID) (any, error) {
		result, err := ed.CancelSide(side)
		if err != nil {
			return nil, err
		}
		return gin.H{"side": result}, nil
	})
}

type styleView struct {
	Style     style.Config     `json:"style"`
	Placement placementView    `json:"placement"`
	Anchors   []style.Position `json:"anchors,omitempty"`
	Autosave  bool             `json:"autosave,omitempty"`
}

type placementView struct {
	Justify   string `json:"justify"`
	Align     string `json:"align"`
	TextAlign string `json:"textAlign"`
}

func newStyleView(cfg style.Config, dir style.Direction) styleView {
	p := style.Place(cfg.Position, dir)
	return styleView{
		Style:     cfg,
		Placement: placementView{Justify: p.Justify, Align: p.Align, TextAlign: p.TextAlign},
	}
}

// GetStyle opens the style editor of a composite side: defaults merged with the saved
// style and any unsaved draft.
func (h *SessionHandler) GetStyle(c *gin.Context) {
	dir := style.ParseDirection(c.Query("dir"))
	h.withSide(c, func(_ context.Context, ed *editor.Editor, side editor.SideID) (any, error) {
		se, err := ed.OpenStyleEditor(side)
		if err != nil {
			return nil, err
		}
		view := newStyleView(se.Config(), dir)
		view.Anchors = style.Anchors()
		return view, nil
	})
}

// SaveStyle 立即保存样式；保存成功后才取消该侧的自动保存，失败时草稿仍由计时器兜底。
func (h *SessionHandler) SaveStyle(c *gin.Context) {
	var req style.Partial
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	dir := style.ParseDirection(c.Query("dir"))
	h.withSide(c, func(ctx context.Context, ed *editor.Editor, side editor.SideID) (any, error) {
		se, err := ed.OpenStyleEditor(side)
		if err != nil {
			return nil, err
		}
		if err := se.Apply(req); err != nil {
			return nil, err
		}
		cfg, err := se.Save(ctx)
		if err != nil {
			return nil, err
		}
		h.cancelAutosave(c.Param("id"), side)
		return newStyleView(cfg, dir), nil
	})
}

// SaveStyleDraft records a draft and schedules a debounced save.
func (h *SessionHandler) SaveStyleDraft(c *gin.Context) {
	var req style.Partial
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if req.Position != nil && !req.Position.Valid() {
		respondError(c, editor.ErrInvalidStyleValue)
		return
	}
	userID, _ := userIDFromContext(c)
	sessionID := c.Param("id")
	dir := style.ParseDirection(c.Query("dir"))
	h.withSide(c, func(_ context.Context, ed *editor.Editor, side editor.SideID) (any, error) {
		cfg, err := ed.SetStyleDraft(side, req)
		if err != nil {
			return nil, err
		}
		view := newStyleView(cfg, dir)
		view.Autosave = h.scheduleFlush(sessionID, userID, side)
		return view, nil
	})
}

func autosaveKey(sessionID string, side editor.SideID) string {
	return sessionID + ":" + side.String()
}

func (h *SessionHandler) cancelAutosave(sessionID string, sides ...editor.SideID) {
	if h.Autosave == nil {
		return
	}
	for _, side := range sides {
		h.Autosave.Cancel(autosaveKey(sessionID, side))
	}
}

func (h *SessionHandler) scheduleFlush(sessionID string, userID uint, side editor.SideID) bool {
	if h.Autosave == nil {
		return false
	}
	return h.Autosave.Trigger(autosaveKey(sessionID, side), func() {
		h.flushDraft(sessionID, userID, side)
	})
}

// flushDraft runs outside any request. A busy session reschedules the flush.
func (h *SessionHandler) flushDraft(sessionID string, userID uint, side editor.SideID) {
	ctx, cancel := context.WithTimeout(context.Background(), h.flushTimeout)
	defer cancel()
	log := h.Logger.With(slog.String("session_id", sessionID), slog.String("side", side.String()))

	unlock, err := h.Store.Lock(ctx, sessionID)
	if errors.Is(err, sessionstore.ErrLocked) {
		if !h.scheduleFlush(sessionID, userID, side) {
			log.Warn("autosave skipped: session locked and autosave stopped, draft stays on the session")
		}
		return
	}
	if err != nil {
		log.Error("autosave lock session", "error", err)
		return
	}
	defer unlock()

	sess, err := h.Store.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sessionstore.ErrNotFound) {
			log.Error("autosave load session", "error", err)
		}
		return
	}
	ed := h.newEditor(ctx, sess, log)
	_, flushed, err := ed.FlushStyleDraft(ctx, side)
	if err != nil {
		log.Warn("autosave style draft failed", "error", err)
		return
	}
	if !flushed {
		return
	}
	sess.State = ed.State()
	if err := h.Store.Save(ctx, sess); err != nil {
		log.Error("autosave persist session", "error", err)
		return
	}
	log.Debug("style draft saved")
}

// SaveSession creates or updates the outer pair. Unsaved style drafts are flushed first.
func (h *SessionHandler) SaveSession(c *gin.Context) {
	sessionID := c.Param("id")
	h.withSession(c, func(ctx context.Context, sess sessionstore.Session, ed *editor.Editor) (any, error) {
		h.cancelAutosave(sessionID, editor.SideA, editor.SideB)
		for _, side := range []editor.SideID{editor.SideA, editor.SideB} {
			if _, _, err := ed.FlushStyleDraft(ctx, side); err != nil {
				return nil, err
			}
		}

		pending := ed.State().Pending
		result, err := ed.Save(ctx)
		if err != nil {
			return nil, err
		}

		// 保存后未删除成功的子配对交给清理任务，其余都已有归属或已删除。
		released := slices.DeleteFunc(slices.Clone(pending), func(id int64) bool {
			return slices.Contains(result.Orphaned, id)
		})
		h.settleLedger(ctx, released, result.Orphaned, "delete after save failed")
		recordCleanup("save", result.Discarded, result.Orphaned)

		return gin.H{"pair": result.Pair, "discarded": result.Discarded, "orphaned": result.Orphaned}, nil
	})
}

// CloseSession 删除未提交的子配对并结束会话。
func (h *SessionHandler) CloseSession(c *gin.Context) {
	sessionID := c.Param("id")
	h.withSession(c, func(ctx context.Context, sess sessionstore.Session, ed *editor.Editor) (any, error) {
		h.cancelAutosave(sessionID, editor.SideA, editor.SideB)
		report, err := ed.Close(ctx)
		if err != nil {
			return nil, err
		}
		h.settleLedger(ctx, report.Deleted, report.Failed, "delete on close failed")
		recordCleanup("close", report.Deleted, report.Failed)

		if err := h.Store.Delete(ctx, sess.ID); err != nil {
			return nil, fmt.Errorf("delete editor session: %w", err)
		}
		metrics.SessionClosed()
		return report, nil
	})
}

func (h *SessionHandler) settleLedger(ctx context.Context, released, orphaned []int64, reason string) {
	if h.Ledger == nil {
		return
	}
	if err := h.Ledger.Release(ctx, released...); err != nil {
		h.Logger.Error("release pending sub-pairs", "ids", released, "error", err)
	}
	if err := h.Ledger.MarkOrphaned(ctx, reason, orphaned...); err != nil {
		h.Logger.Error("mark sub-pairs orphaned", "ids", orphaned, "error", err)
	}
}

func recordCleanup(origin string, deleted, failed []int64) {
	for range deleted {
		metrics.SubPairCleanup(origin, true)
	}
	for range failed {
		metrics.SubPairCleanup(origin, false)
	}
}

type sessionOp func(ctx context.Context, sess sessionstore.Session, ed *editor.Editor) (any, error)

// withSession 加锁、加载并校验归属，执行 op 后写回状态。
// Close deletes the session inside op, so its state is not written back.
func (h *SessionHandler) withSession(c *gin.Context, op sessionOp) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	unlock, err := h.Store.Lock(ctx, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer unlock()

	sess, err := h.Store.Load(ctx, sessionID)
	if err == nil && sess.UserID != userID {
		err = sessionstore.ErrNotFound
	}
	if err != nil {
		respondError(c, err)
		return
	}

	log := middleware.LoggerFromContext(c).With(slog.String("session_id", sessionID))
	ed := h.newEditor(ctx, sess, log)
	body, opErr := op(ctx, sess, ed)

	closed := c.Request.Method == http.MethodDelete && opErr == nil
	if !closed {
		// 失败时状态也可能已推进（例如子配对创建后保存失败），一律写回。
		sess.State = ed.State()
		if err := h.Store.Save(ctx, sess); err != nil {
			log.Error("persist editor session", "error", err)
			if opErr == nil {
				Internal(c, "failed to persist editor session")
				return
			}
		}
		if h.Ledger != nil {
			if err := h.Ledger.Touch(ctx, sessionID); err != nil {
				log.Warn("touch sub-pair ledger", "error", err)
			}
		}
	}

	if opErr != nil {
		respondError(c, opErr)
		return
	}
	resp := gin.H{"data": body}
	if !closed {
		resp["session"] = newSessionView(sess)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) withSide(c *gin.Context, op func(ctx context.Context, ed *editor.Editor, side editor.SideID) (any, error)) {
	side, err := editor.ParseSide(c.Param("side"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.withSession(c, func(ctx context.Context, _ sessionstore.Session, ed *editor.Editor) (any, error) {
		return op(ctx, ed, side)
	})
}

// newEditor 为一次请求构造编辑器，新建的子配对立即记入台账。
func (h *SessionHandler) newEditor(ctx context.Context, sess sessionstore.Session, log *slog.Logger) *editor.Editor {
	return editor.New(h.Catalog, sess.State, log, editor.Hooks{
		SubPairCreated: func(id int64) {
			metrics.SubPairCreated()
			if h.Ledger == nil {
				return
			}
			if err := h.Ledger.Track(ctx, sess.ID, sess.UserID, id); err != nil {
				log.Error("track pending sub-pair", "sub_pair_id", id, "error", err)
			}
		},
	})
}
