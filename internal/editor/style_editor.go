package editor

import (
	"context"
	"fmt"
	"strings"

	"pairStudio/internal/style"
)

// PersistFunc saves a finished style configuration.
type PersistFunc func(ctx context.Context, cfg style.Config) error

// StyleEditor holds the working copy of a composite card style between Open and Save.
type StyleEditor struct {
	persist PersistFunc
	current style.Config
	open    bool
	saving  bool
	err     error
}

// NewStyleEditor 创建一个关闭状态的编辑器。
func NewStyleEditor(persist PersistFunc) *StyleEditor {
	return &StyleEditor{persist: persist, current: style.Defaults()}
}

// Open resets the working copy to the defaults merged with initial, discarding earlier edits.
func (s *StyleEditor) Open(initial *style.Partial) {
	s.current = style.Resolve(initial)
	s.open = true
	s.saving = false
	s.err = nil
}

func (s *StyleEditor) IsOpen() bool { return s.open }

// Err 返回上一次保存失败的错误，供内联展示。
func (s *StyleEditor) Err() error { return s.err }

// Config returns the configuration that Save would emit.
func (s *StyleEditor) Config() style.Config { return s.current.Normalize() }

func (s *StyleEditor) SetPosition(p style.Position) error {
	if !p.Valid() {
		return fmt.Errorf("%w: position %q", ErrInvalidStyleValue, p)
	}
	s.current.Position = p
	return nil
}

func (s *StyleEditor) SetTextColor(hex string) error {
	candidate := s.current
	candidate.TextColor = hex
	if !strings.EqualFold(candidate.Normalize().TextColor, strings.TrimSpace(hex)) {
		return fmt.Errorf("%w: color %q", ErrInvalidStyleValue, hex)
	}
	s.current.TextColor = strings.ToLower(strings.TrimSpace(hex))
	return nil
}

func (s *StyleEditor) SetTextOpacity(v float64) {
	s.current.TextOpacity = style.ClampTextOpacity(v)
}

func (s *StyleEditor) SetFontSize(v float64) {
	s.current.FontSizeMultiplier = style.ClampFontSize(v)
}

func (s *StyleEditor) SetOverlayOpacity(v float64) {
	s.current.BackgroundOverlayOpacity = style.ClampOverlayOpacity(v)
}

func (s *StyleEditor) SetTextShadow(on bool) {
	s.current.TextShadowEnabled = on
}

func (s *StyleEditor) SetFontFamily(f string) {
	s.current.FontFamily = strings.TrimSpace(f)
}

func (s *StyleEditor) SetFontWeight(w string) error {
	candidate := s.current
	candidate.FontWeight = w
	if candidate.Normalize().FontWeight != strings.ToLower(strings.TrimSpace(w)) {
		return fmt.Errorf("%w: font weight %q", ErrInvalidStyleValue, w)
	}
	s.current.FontWeight = strings.ToLower(strings.TrimSpace(w))
	return nil
}

// Apply sets every non-nil field of p through the setters above.
func (s *StyleEditor) Apply(p style.Partial) error {
	if p.Position != nil {
		if err := s.SetPosition(*p.Position); err != nil {
			return err
		}
	}
	if p.TextColor != nil {
		if err := s.SetTextColor(*p.TextColor); err != nil {
			return err
		}
	}
	if p.FontWeight != nil {
		if err := s.SetFontWeight(*p.FontWeight); err != nil {
			return err
		}
	}
	if p.TextOpacity != nil {
		s.SetTextOpacity(*p.TextOpacity)
	}
	if p.FontSizeMultiplier != nil {
		s.SetFontSize(*p.FontSizeMultiplier)
	}
	if p.BackgroundOverlayOpacity != nil {
		s.SetOverlayOpacity(*p.BackgroundOverlayOpacity)
	}
	if p.TextShadowEnabled != nil {
		s.SetTextShadow(*p.TextShadowEnabled)
	}
	if p.FontFamily != nil {
		s.SetFontFamily(*p.FontFamily)
	}
	return nil
}

// Save hands the clamped configuration to the persistence callback. The editor closes
// only when the callback succeeds; on failure it stays open and keeps the error.
func (s *StyleEditor) Save(ctx context.Context) (style.Config, error) {
	if !s.open {
		return style.Config{}, ErrStyleEditorClosed
	}
	if s.saving {
		return style.Config{}, ErrBusy
	}

	cfg := s.Config()
	s.saving = true
	err := s.persist(ctx, cfg)
	s.saving = false
	if err != nil {
		s.err = err
		return style.Config{}, err
	}
	s.err = nil
	s.open = false
	return cfg, nil
}

// Close discards the working copy without saving.
func (s *StyleEditor) Close() {
	s.open = false
	s.err = nil
}
