// Package editor 实现配对编辑流程：两侧选择、子配对合成、样式编辑与清理。
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"pairStudio/internal/content"
	"pairStudio/internal/style"
)

// PairService is the part of the catalog the editor writes to.
type PairService interface {
	CreatePair(ctx context.Context, req content.PairRequest) (content.Pair, error)
	UpdatePair(ctx context.Context, id int64, req content.PairRequest) (content.Pair, error)
	DeletePair(ctx context.Context, id int64) error
}

// Hooks 用于指标等旁路观察，均可为空。
type Hooks struct {
	SubPairCreated func(id int64)
	CleanupFailed  func(id int64, err error)
}

// Editor drives one session. Every mutating call holds an in-flight guard;
// a concurrent call returns ErrBusy instead of queueing.
type Editor struct {
	svc    PairService
	logger *slog.Logger
	hooks  Hooks

	mu    sync.Mutex
	state State
}

// New wraps an existing state (create mode: NewState()).
func New(svc PairService, st State, logger *slog.Logger, hooks Hooks) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{svc: svc, logger: logger, hooks: hooks, state: st.Clone()}
}

// State returns a copy of the current state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *Editor) acquire() error {
	if !e.mu.TryLock() {
		return ErrBusy
	}
	return nil
}

// Pick feeds a selected item to one side. When the pick completes a background+text
// sequence exactly one sub-pair is created; on failure the side stays awaiting.
func (e *Editor) Pick(ctx context.Context, id SideID, item content.Item, compose bool) (Side, error) {
	if err := e.acquire(); err != nil {
		return Side{}, err
	}
	defer e.mu.Unlock()

	side, err := e.state.Side(id)
	if err != nil {
		return Side{}, err
	}

	next, req, err := side.apply(pickEvent{item: item, compose: compose})
	if err != nil {
		return cloneSide(*side), err
	}
	if req == nil {
		*side = next
		return cloneSide(*side), nil
	}

	sub, err := e.createSubPair(ctx, *req)
	if err != nil {
		return cloneSide(*side), err
	}

	committed, _, err := side.apply(committedEvent{subPair: sub})
	if err != nil {
		return cloneSide(*side), err
	}
	*side = committed
	e.state.appendPending(sub.ID)
	if e.hooks.SubPairCreated != nil {
		e.hooks.SubPairCreated(sub.ID)
	}
	e.logger.Info("sub-pair created",
		slog.Int64("sub_pair_id", sub.ID),
		slog.String("side", id.String()),
	)
	return cloneSide(*side), nil
}

func (e *Editor) createSubPair(ctx context.Context, req composeRequest) (SubPair, error) {
	sub := SubPair{Background: req.background, Text: req.text, Style: style.Defaults()}
	full := sub.Style.Full()
	pair, err := e.svc.CreatePair(ctx, content.PairRequest{
		UseType:       content.UseMixedContents,
		Contents:      sub.Refs(),
		UsageMetadata: &content.UsageMetadata{TextStyles: &full},
	})
	if err != nil {
		return SubPair{}, fmt.Errorf("create sub-pair: %w", err)
	}
	sub.ID = pair.ID
	return sub, nil
}

// CancelSide abandons a half-finished composite selection on one side.
func (e *Editor) CancelSide(id SideID) (Side, error) {
	if err := e.acquire(); err != nil {
		return Side{}, err
	}
	defer e.mu.Unlock()

	side, err := e.state.Side(id)
	if err != nil {
		return Side{}, err
	}
	next, _, err := side.apply(cancelEvent{})
	if err != nil {
		return cloneSide(*side), err
	}
	*side = next
	return cloneSide(*side), nil
}

// SaveStyle persists a style for a composite side. The catalog requires the content ids
// on every style update, so both halves are re-sent with the style.
func (e *Editor) SaveStyle(ctx context.Context, id SideID, p style.Partial) (style.Config, error) {
	if err := e.acquire(); err != nil {
		return style.Config{}, err
	}
	defer e.mu.Unlock()
	return e.saveStyleLocked(ctx, id, p)
}

func (e *Editor) saveStyleLocked(ctx context.Context, id SideID, p style.Partial) (style.Config, error) {
	side, err := e.state.Side(id)
	if err != nil {
		return style.Config{}, err
	}
	if side.Phase != PhaseCommitted || side.Value == nil || side.Value.SubPair == nil {
		return style.Config{}, ErrNotSubPair
	}
	sub := side.Value.SubPair
	// 样式更新必须带上两半的真实内容 ID。
	if sub.Background.ID == 0 || sub.Text.ID == 0 {
		return style.Config{}, fmt.Errorf("save sub-pair %d style: %w", sub.ID, content.ErrMalformedPair)
	}

	cfg := style.Merge(sub.Style, p).Normalize()
	full := cfg.Full()
	if _, err := e.svc.UpdatePair(ctx, sub.ID, content.PairRequest{
		UseType:       content.UseMixedContents,
		Contents:      sub.Refs(),
		UsageMetadata: &content.UsageMetadata{TextStyles: &full},
	}); err != nil {
		return style.Config{}, fmt.Errorf("save sub-pair style: %w", err)
	}
	sub.Style = cfg
	side.StyleDraft = nil
	return cfg, nil
}

// SetStyleDraft 记录尚未保存的样式草稿，供自动保存合并。
func (e *Editor) SetStyleDraft(id SideID, p style.Partial) (style.Config, error) {
	if err := e.acquire(); err != nil {
		return style.Config{}, err
	}
	defer e.mu.Unlock()

	side, err := e.state.Side(id)
	if err != nil {
		return style.Config{}, err
	}
	if side.Phase != PhaseCommitted || side.Value == nil || side.Value.SubPair == nil {
		return style.Config{}, ErrNotSubPair
	}
	merged := p
	if side.StyleDraft != nil {
		merged = overlay(*side.StyleDraft, p)
	}
	side.StyleDraft = &merged
	return style.Merge(side.Value.SubPair.Style, merged).Normalize(), nil
}

// FlushStyleDraft saves the pending draft of a side, if any.
func (e *Editor) FlushStyleDraft(ctx context.Context, id SideID) (style.Config, bool, error) {
	if err := e.acquire(); err != nil {
		return style.Config{}, false, err
	}
	defer e.mu.Unlock()

	side, err := e.state.Side(id)
	if err != nil {
		return style.Config{}, false, err
	}
	if side.StyleDraft == nil {
		return style.Config{}, false, nil
	}
	cfg, err := e.saveStyleLocked(ctx, id, *side.StyleDraft)
	if err != nil {
		return style.Config{}, false, err
	}
	return cfg, true, nil
}

// overlay merges two partials; fields set in top win.
func overlay(base, top style.Partial) style.Partial {
	out := base
	if top.Position != nil {
		out.Position = top.Position
	}
	if top.TextColor != nil {
		out.TextColor = top.TextColor
	}
	if top.TextOpacity != nil {
		out.TextOpacity = top.TextOpacity
	}
	if top.FontSizeMultiplier != nil {
		out.FontSizeMultiplier = top.FontSizeMultiplier
	}
	if top.FontWeight != nil {
		out.FontWeight = top.FontWeight
	}
	if top.FontFamily != nil {
		out.FontFamily = top.FontFamily
	}
	if top.TextShadowEnabled != nil {
		out.TextShadowEnabled = top.TextShadowEnabled
	}
	if top.BackgroundOverlayOpacity != nil {
		out.BackgroundOverlayOpacity = top.BackgroundOverlayOpacity
	}
	return out
}

// OpenStyleEditor opens a style editor seeded with the side's current style.
// Saving it goes through SaveStyle.
func (e *Editor) OpenStyleEditor(id SideID) (*StyleEditor, error) {
	e.mu.Lock()
	side, err := e.state.Side(id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if side.Phase != PhaseCommitted || side.Value == nil || side.Value.SubPair == nil {
		e.mu.Unlock()
		return nil, ErrNotSubPair
	}
	initial := side.Value.SubPair.Style.Full()
	if side.StyleDraft != nil {
		initial = overlay(initial, *side.StyleDraft)
	}
	e.mu.Unlock()

	se := NewStyleEditor(func(ctx context.Context, cfg style.Config) error {
		_, err := e.SaveStyle(ctx, id, cfg.Full())
		return err
	})
	se.Open(&initial)
	return se, nil
}

// SaveResult 是保存成功后的结果。
type SaveResult struct {
	Pair      content.Pair `json:"pair"`
	Discarded []int64      `json:"discarded,omitempty"`
	Orphaned  []int64      `json:"orphaned,omitempty"`
}

// Save creates or updates the outer pair. Identical content on both sides is allowed.
// Pending sub-pairs the saved pair does not reference are deleted best-effort,
// then the pending list is cleared.
func (e *Editor) Save(ctx context.Context) (SaveResult, error) {
	if err := e.acquire(); err != nil {
		return SaveResult{}, err
	}
	defer e.mu.Unlock()

	refs := make([]content.SideRef, 0, 2)
	for _, side := range e.state.Sides {
		if side.Phase != PhaseCommitted || side.Value == nil {
			return SaveResult{}, ErrIncompleteSide
		}
		refs = append(refs, side.Value.Ref())
	}
	req := content.PairRequest{UseType: content.UsePair, Contents: refs}

	var (
		pair content.Pair
		err  error
	)
	if e.state.PairID != 0 {
		pair, err = e.svc.UpdatePair(ctx, e.state.PairID, req)
		if err != nil {
			return SaveResult{}, fmt.Errorf("update pair: %w", err)
		}
	} else {
		pair, err = e.svc.CreatePair(ctx, req)
		if err != nil {
			return SaveResult{}, fmt.Errorf("create pair: %w", err)
		}
	}
	e.state.PairID = pair.ID

	used := e.state.referenced()
	var discarded []int64
	for _, id := range e.state.drainPending() {
		if used[id] {
			continue
		}
		discarded = append(discarded, id)
	}
	report := e.deleteBestEffort(ctx, discarded)

	e.logger.Info("pair saved",
		slog.Int64("pair_id", pair.ID),
		slog.Int("discarded_sub_pairs", len(report.Deleted)),
	)
	return SaveResult{Pair: pair, Discarded: report.Deleted, Orphaned: report.Failed}, nil
}

// CleanupReport 汇总关闭时对未提交子配对的删除结果。
type CleanupReport struct {
	Deleted []int64 `json:"deleted"`
	Failed  []int64 `json:"failed"`
}

// Close drains the pending sub-pairs with one delete each and resets the selection.
// Failed deletes are logged and otherwise ignored.
func (e *Editor) Close(ctx context.Context) (CleanupReport, error) {
	if err := e.acquire(); err != nil {
		return CleanupReport{}, err
	}
	defer e.mu.Unlock()

	report := e.deleteBestEffort(ctx, e.state.drainPending())
	pairID := e.state.PairID
	e.state = NewState()
	e.state.PairID = pairID
	return report, nil
}

func (e *Editor) deleteBestEffort(ctx context.Context, ids []int64) CleanupReport {
	report := CleanupReport{Deleted: []int64{}, Failed: []int64{}}
	for _, id := range ids {
		if err := e.svc.DeletePair(ctx, id); err != nil {
			report.Failed = append(report.Failed, id)
			e.logger.Warn("delete pending sub-pair failed",
				slog.Int64("sub_pair_id", id),
				slog.Any("error", err),
			)
			if e.hooks.CleanupFailed != nil {
				e.hooks.CleanupFailed(id, err)
			}
			continue
		}
		report.Deleted = append(report.Deleted, id)
	}
	return report
}
