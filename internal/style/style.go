// Package style 定义合成卡片文字叠加层的样式配置。
package style

import (
	"math"
	"strings"
)

// Position is one of the nine named anchors of the 3x3 grid.
type Position string

const (
	TopLeft      Position = "top-left"
	TopCenter    Position = "top-center"
	TopRight     Position = "top-right"
	MiddleLeft   Position = "middle-left"
	Center       Position = "center"
	MiddleRight  Position = "middle-right"
	BottomLeft   Position = "bottom-left"
	BottomCenter Position = "bottom-center"
	BottomRight  Position = "bottom-right"
)

// Anchors 按网格行优先顺序返回九个锚点。
func Anchors() []Position {
	return []Position{
		TopLeft, TopCenter, TopRight,
		MiddleLeft, Center, MiddleRight,
		BottomLeft, BottomCenter, BottomRight,
	}
}

// Valid reports whether p is one of the nine anchors.
func (p Position) Valid() bool {
	for _, a := range Anchors() {
		if a == p {
			return true
		}
	}
	return false
}

// 数值范围，编辑器在保存前夹紧到这些区间。
const (
	MinTextOpacity    = 0.1
	MaxTextOpacity    = 1.0
	MinOverlayOpacity = 0.0
	MaxOverlayOpacity = 0.8
	MinFontSize       = 0.5
	MaxFontSize       = 3.0
)

var fontWeights = map[string]struct{}{
	"normal": {}, "bold": {}, "lighter": {}, "bolder": {},
	"100": {}, "200": {}, "300": {}, "400": {}, "500": {}, "600": {}, "700": {}, "800": {}, "900": {},
}

// Config is a fully populated style configuration.
type Config struct {
	Position                 Position `json:"position"`
	TextColor                string   `json:"textColor"`
	TextOpacity              float64  `json:"textOpacity"`
	FontSizeMultiplier       float64  `json:"fontSizeMultiplier"`
	FontWeight               string   `json:"fontWeight"`
	FontFamily               string   `json:"fontFamily"`
	TextShadowEnabled        bool     `json:"textShadowEnabled"`
	BackgroundOverlayOpacity float64  `json:"backgroundOverlayOpacity"`
}

// Defaults 返回编辑器的默认样式。
func Defaults() Config {
	return Config{
		Position:                 Center,
		TextColor:                "#ffffff",
		TextOpacity:              1.0,
		FontSizeMultiplier:       1.0,
		FontWeight:               "bold",
		FontFamily:               "inherit",
		TextShadowEnabled:        true,
		BackgroundOverlayOpacity: 0.3,
	}
}

// Partial carries caller-supplied overrides; nil fields keep the base value.
type Partial struct {
	Position                 *Position `json:"position,omitempty"`
	TextColor                *string   `json:"textColor,omitempty"`
	TextOpacity              *float64  `json:"textOpacity,omitempty"`
	FontSizeMultiplier       *float64  `json:"fontSizeMultiplier,omitempty"`
	FontWeight               *string   `json:"fontWeight,omitempty"`
	FontFamily               *string   `json:"fontFamily,omitempty"`
	TextShadowEnabled        *bool     `json:"textShadowEnabled,omitempty"`
	BackgroundOverlayOpacity *float64  `json:"backgroundOverlayOpacity,omitempty"`
}

// Full converts a Config into a Partial that overrides every field.
func (c Config) Full() Partial {
	return Partial{
		Position:                 &c.Position,
		TextColor:                &c.TextColor,
		TextOpacity:              &c.TextOpacity,
		FontSizeMultiplier:       &c.FontSizeMultiplier,
		FontWeight:               &c.FontWeight,
		FontFamily:               &c.FontFamily,
		TextShadowEnabled:        &c.TextShadowEnabled,
		BackgroundOverlayOpacity: &c.BackgroundOverlayOpacity,
	}
}

// Merge overrides base field by field with the non-nil fields of p. It does not clamp.
func Merge(base Config, p Partial) Config {
	out := base
	if p.Position != nil {
		out.Position = *p.Position
	}
	if p.TextColor != nil {
		out.TextColor = *p.TextColor
	}
	if p.TextOpacity != nil {
		out.TextOpacity = *p.TextOpacity
	}
	if p.FontSizeMultiplier != nil {
		out.FontSizeMultiplier = *p.FontSizeMultiplier
	}
	if p.FontWeight != nil {
		out.FontWeight = *p.FontWeight
	}
	if p.FontFamily != nil {
		out.FontFamily = *p.FontFamily
	}
	if p.TextShadowEnabled != nil {
		out.TextShadowEnabled = *p.TextShadowEnabled
	}
	if p.BackgroundOverlayOpacity != nil {
		out.BackgroundOverlayOpacity = *p.BackgroundOverlayOpacity
	}
	return out
}

// Resolve 是 Merge(Defaults(), p) 的简写，nil 视为空覆盖。
func Resolve(p *Partial) Config {
	if p == nil {
		return Defaults()
	}
	return Merge(Defaults(), *p)
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ClampTextOpacity(v float64) float64    { return Clamp(v, MinTextOpacity, MaxTextOpacity) }
func ClampOverlayOpacity(v float64) float64 { return Clamp(v, MinOverlayOpacity, MaxOverlayOpacity) }
func ClampFontSize(v float64) float64       { return Clamp(v, MinFontSize, MaxFontSize) }

// Normalize returns c with numeric fields clamped and invalid enumerations reset to defaults.
// It is idempotent.
func (c Config) Normalize() Config {
	def := Defaults()
	out := c
	out.TextOpacity = ClampTextOpacity(c.TextOpacity)
	out.BackgroundOverlayOpacity = ClampOverlayOpacity(c.BackgroundOverlayOpacity)
	out.FontSizeMultiplier = ClampFontSize(c.FontSizeMultiplier)
	if !out.Position.Valid() {
		out.Position = def.Position
	}
	if _, _, _, ok := parseHex(out.TextColor); !ok {
		out.TextColor = def.TextColor
	} else {
		out.TextColor = strings.ToLower(strings.TrimSpace(out.TextColor))
	}
	if _, ok := fontWeights[strings.ToLower(strings.TrimSpace(out.FontWeight))]; !ok {
		out.FontWeight = def.FontWeight
	} else {
		out.FontWeight = strings.ToLower(strings.TrimSpace(out.FontWeight))
	}
	if strings.TrimSpace(out.FontFamily) == "" {
		out.FontFamily = def.FontFamily
	}
	return out
}
