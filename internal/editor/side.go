package editor

import (
	"fmt"
	"strings"

	"pairStudio/internal/content"
	"pairStudio/internal/style"
)

// SideID 标识配对的两侧。
type SideID int

const (
	SideA SideID = iota
	SideB
)

// ParseSide accepts "a"/"b" (case-insensitive) or "0"/"1".
func ParseSide(raw string) (SideID, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "a", "0":
		return SideA, nil
	case "b", "1":
		return SideB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSide, raw)
}

func (s SideID) String() string {
	if s == SideB {
		return "b"
	}
	return "a"
}

// Phase 是单侧状态机的状态。
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAwaiting  Phase = "awaitingComplement"
	PhaseCommitted Phase = "committed"
)

// SubPair is a background image and a text item joined into one composite card.
type SubPair struct {
	ID         int64        `json:"id"`
	Background content.Item `json:"background"`
	Text       content.Item `json:"text"`
	Style      style.Config `json:"style"`
}

// Refs returns the two halves in the order the catalog expects: background, then text.
func (s SubPair) Refs() []content.SideRef {
	return []content.SideRef{
		{ID: s.Background.ID, Source: content.SourceCatalog},
		{ID: s.Text.ID, Source: content.SourceCatalog},
	}
}

// SideValue 是已提交的一侧：目录条目或子配对之一。
type SideValue struct {
	Item    *content.Item `json:"item,omitempty"`
	SubPair *SubPair      `json:"subPair,omitempty"`
}

// Ref builds the {id, source} descriptor for this side.
func (v SideValue) Ref() content.SideRef {
	if v.SubPair != nil {
		return content.SideRef{ID: v.SubPair.ID, Source: content.SourceSubPair}
	}
	return content.SideRef{ID: v.Item.ID, Source: content.SourceCatalog}
}

// Kind classifies the value for pair-type derivation.
func (v SideValue) Kind() content.SideKind {
	if v.SubPair != nil {
		return content.KindComposite
	}
	if v.Item != nil {
		return content.KindOf(v.Item.ElementType)
	}
	return content.KindUnknown
}

// Side holds one side's state. While awaiting a complement, Value keeps the previously
// committed value so that cancelling can restore it.
type Side struct {
	Phase      Phase          `json:"phase"`
	Held       *content.Item  `json:"held,omitempty"`
	Value      *SideValue     `json:"value,omitempty"`
	StyleDraft *style.Partial `json:"styleDraft,omitempty"`
}

// Kind 返回当前有效的分类：等待中看持有项，已提交看值。
func (s Side) Kind() content.SideKind {
	switch s.Phase {
	case PhaseAwaiting:
		if s.Held != nil {
			return content.KindOf(s.Held.ElementType)
		}
	case PhaseCommitted:
		if s.Value != nil {
			return s.Value.Kind()
		}
	}
	return content.KindUnknown
}

// event is one of pickEvent, cancelEvent, committedEvent.
type event interface{ isEvent() }

type pickEvent struct {
	item    content.Item
	compose bool
}

type cancelEvent struct{}

type committedEvent struct {
	subPair SubPair
}

func (pickEvent) isEvent()      {}
func (cancelEvent) isEvent()    {}
func (committedEvent) isEvent() {}

// composeRequest asks the caller to create a sub-pair from both halves.
type composeRequest struct {
	background content.Item
	text       content.Item
}

// apply is the pure transition function of a side.
func (s Side) apply(ev event) (Side, *composeRequest, error) {
	switch ev := ev.(type) {
	case pickEvent:
		return s.applyPick(ev)
	case cancelEvent:
		if s.Phase != PhaseAwaiting {
			return s, nil, fmt.Errorf("%w: cancel while %s", ErrIllegalTransition, s.Phase)
		}
		next := Side{Phase: PhaseIdle, Value: s.Value, StyleDraft: s.StyleDraft}
		if s.Value != nil {
			next.Phase = PhaseCommitted
		}
		return next, nil, nil
	case committedEvent:
		if s.Phase != PhaseAwaiting {
			return s, nil, fmt.Errorf("%w: commit while %s", ErrIllegalTransition, s.Phase)
		}
		sub := ev.subPair
		return Side{Phase: PhaseCommitted, Value: &SideValue{SubPair: &sub}}, nil, nil
	}
	return s, nil, fmt.Errorf("%w: unknown event %T", ErrIllegalTransition, ev)
}

func (s Side) applyPick(ev pickEvent) (Side, *composeRequest, error) {
	item := ev.item
	kind := content.KindOf(item.ElementType)
	if kind == content.KindUnknown {
		return s, nil, fmt.Errorf("%w: element type %q", ErrIllegalTransition, item.ElementType)
	}

	if s.Phase == PhaseAwaiting {
		held := content.KindOf(s.Held.ElementType)
		switch {
		case kind == held:
			next := s
			next.Held = &item
			return next, nil, nil
		case kind == content.KindBackground && held == content.KindText:
			return s, &composeRequest{background: item, text: *s.Held}, nil
		case kind == content.KindText && held == content.KindBackground:
			return s, &composeRequest{background: *s.Held, text: item}, nil
		}
		return s, nil, fmt.Errorf("%w: awaiting complement of %s", ErrIllegalTransition, held)
	}

	switch {
	case kind == content.KindBackground, kind == content.KindText && ev.compose:
		return Side{Phase: PhaseAwaiting, Held: &item, Value: s.Value}, nil, nil
	case kind == content.KindImage && ev.compose:
		return s, nil, ErrNotComposable
	}
	return Side{Phase: PhaseCommitted, Value: &SideValue{Item: &item}}, nil, nil
}
