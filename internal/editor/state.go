package editor

import (
	"context"
	"fmt"
	"slices"

	"pairStudio/internal/content"
	"pairStudio/internal/style"
)

// State is the serialisable state of one pair-editing session.
type State struct {
	PairID  int64   `json:"pairId,omitempty"`
	Sides   [2]Side `json:"sides"`
	Pending []int64 `json:"pending,omitempty"`
}

// NewState 返回创建模式下的空状态。
func NewState() State {
	return State{Sides: [2]Side{{Phase: PhaseIdle}, {Phase: PhaseIdle}}}
}

// PairGetter loads a stored pair by id.
type PairGetter interface {
	GetPair(ctx context.Context, id int64) (content.Pair, error)
}

// StateFromPair builds an edit-mode state whose sides are already committed.
// Sub-pairs of a saved pair are not pending: they belong to that pair.
// 目录可能只返回子配对的 id，此时通过 getter 取回两半内容。
func StateFromPair(ctx context.Context, getter PairGetter, p content.Pair) (State, error) {
	a, b, err := p.Sides()
	if err != nil {
		return State{}, err
	}
	st := NewState()
	st.PairID = p.ID
	for i, e := range []content.Entry{a, b} {
		v, err := valueFromEntry(ctx, getter, e)
		if err != nil {
			return State{}, err
		}
		st.Sides[i] = Side{Phase: PhaseCommitted, Value: &v}
	}
	return st, nil
}

func valueFromEntry(ctx context.Context, getter PairGetter, e content.Entry) (SideValue, error) {
	if e.SubPair == nil {
		item := content.Item{ID: e.ID}
		if e.Item != nil {
			item = *e.Item
		}
		return SideValue{Item: &item}, nil
	}

	stored := *e.SubPair
	if len(stored.Contents) == 0 && getter != nil {
		fetched, err := getter.GetPair(ctx, e.ID)
		if err != nil {
			return SideValue{}, fmt.Errorf("load sub-pair %d: %w", e.ID, err)
		}
		if fetched.UsageMetadata == nil || fetched.UsageMetadata.TextStyles == nil {
			fetched.UsageMetadata = stored.UsageMetadata
		}
		stored = fetched
	}
	bg, text, _ := stored.Composite()
	if bg == nil || text == nil || bg.ID == 0 || text.ID == 0 {
		return SideValue{}, fmt.Errorf("sub-pair %d has no background or text half: %w", e.ID, content.ErrMalformedPair)
	}

	var styles *style.Partial
	if stored.UsageMetadata != nil {
		styles = stored.UsageMetadata.TextStyles
	}
	sub := SubPair{ID: e.ID, Background: *bg, Text: *text, Style: style.Resolve(styles)}
	return SideValue{SubPair: &sub}, nil
}

// Side returns the state of one side.
func (s *State) Side(id SideID) (*Side, error) {
	if id != SideA && id != SideB {
		return nil, ErrUnknownSide
	}
	return &s.Sides[id], nil
}

// PairType derives the pair type; ok is false until both sides have a kind.
func (s State) PairType() (content.PairType, bool) {
	a, b := s.Sides[SideA].Kind(), s.Sides[SideB].Kind()
	if a == content.KindUnknown || b == content.KindUnknown {
		return "", false
	}
	return content.DerivePairType(a, b), true
}

// appendPending records a sub-pair created in this session and not yet saved.
func (s *State) appendPending(id int64) {
	s.Pending = append(s.Pending, id)
}

// drainPending empties the pending list and returns what it held.
func (s *State) drainPending() []int64 {
	out := s.Pending
	s.Pending = nil
	return out
}

// referenced 返回当前两侧引用的子配对 ID。
func (s State) referenced() map[int64]bool {
	refs := make(map[int64]bool, 2)
	for _, side := range s.Sides {
		if side.Value != nil && side.Value.SubPair != nil {
			refs[side.Value.SubPair.ID] = true
		}
	}
	return refs
}

// Clone 深拷贝可变部分，供会话存储与快照使用。
func (s State) Clone() State {
	out := s
	out.Pending = slices.Clone(s.Pending)
	for i := range out.Sides {
		out.Sides[i] = cloneSide(s.Sides[i])
	}
	return out
}

func cloneSide(s Side) Side {
	out := s
	if s.Held != nil {
		held := *s.Held
		out.Held = &held
	}
	if s.Value != nil {
		v := *s.Value
		if v.Item != nil {
			item := *v.Item
			v.Item = &item
		}
		if v.SubPair != nil {
			sub := *v.SubPair
			v.SubPair = &sub
		}
		out.Value = &v
	}
	if s.StyleDraft != nil {
		draft := *s.StyleDraft
		out.StyleDraft = &draft
	}
	return out
}
