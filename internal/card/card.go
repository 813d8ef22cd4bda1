// Package card 把配对与复合卡片渲染成 HTML，预览接口与导出的 PDF 共用同一套模板。
package card

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"pairStudio/internal/content"
	"pairStudio/internal/style"
)

// Size 是卡片的展示尺寸。
type Size string

const (
	Small  Size = "small"
	Medium Size = "medium"
	Large  Size = "large"
)

type dimensions struct {
	width, height int
	fontPx        float64
}

var sizes = map[Size]dimensions{
	Small:  {width: 120, height: 160, fontPx: 14},
	Medium: {width: 200, height: 266, fontPx: 20},
	Large:  {width: 300, height: 400, fontPx: 28},
}

// ParseSize falls back to Medium for unknown input.
func ParseSize(raw string) Size {
	s := Size(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := sizes[s]; ok {
		return s
	}
	return Medium
}

// FallbackText is shown when a composite card has no text half.
const FallbackText = "…"

// Options control one rendering.
type Options struct {
	Size      Size
	Direction style.Direction
}

func (o Options) normalized() Options {
	o.Size = ParseSize(string(o.Size))
	if o.Direction != style.LTR {
		o.Direction = style.RTL
	}
	return o
}

// compositeView is the template data of a composite card.
type compositeView struct {
	Dir         string
	BoxStyle    template.CSS
	ImageURL    string
	HasImage    bool
	Overlay     template.CSS
	HasOverlay  bool
	LayerStyle  template.CSS
	TextStyle   template.CSS
	Text        string
	HasText     bool
	Placeholder string
}

const compositeTemplate = `<div class="card card-composite" dir="{{.Dir}}" style="{{.BoxStyle}}">
  {{- if .HasImage}}
  <img class="card-bg" src="{{.ImageURL}}" alt="" style="position:absolute;inset:0;width:100%;height:100%;object-fit:cover;">
  {{- else}}
  <div class="card-placeholder" style="position:absolute;inset:0;background:#e5e7eb;color:#9ca3af;display:flex;align-items:center;justify-content:center;font-size:12px;">{{.Placeholder}}</div>
  {{- end}}
  {{- if .HasOverlay}}
  <div class="card-overlay" style="{{.Overlay}}"></div>
  {{- end}}
  <div class="card-layer" style="{{.LayerStyle}}">
    <span class="card-text{{if not .HasText}} card-text-fallback{{end}}" style="{{.TextStyle}}">{{.Text}}</span>
  </div>
</div>`

// itemView is the template data of a plain catalog item side.
type itemView struct {
	Dir      string
	BoxStyle template.CSS
	Kind     string
	ImageURL string
	HasImage bool
	Text     string
}

const itemTemplate = `<div class="card card-{{.Kind}}" dir="{{.Dir}}" style="{{.BoxStyle}}">
  {{- if .HasImage}}
  <img src="{{.ImageURL}}" alt="{{.Text}}" style="width:100%;height:100%;object-fit:cover;">
  {{- else}}
  <div style="display:flex;align-items:center;justify-content:center;width:100%;height:100%;padding:8px;box-sizing:border-box;text-align:center;">{{.Text}}</div>
  {{- end}}
</div>`

// Renderer holds the parsed templates. It is safe for concurrent use.
type Renderer struct {
	composite *template.Template
	item      *template.Template
	pair      *template.Template
	sheet     *template.Template
}

// NewRenderer 解析全部模板，模板是常量，解析失败直接 panic。
func NewRenderer() *Renderer {
	return &Renderer{
		composite: template.Must(template.New("composite").Parse(compositeTemplate)),
		item:      template.Must(template.New("item").Parse(itemTemplate)),
		pair:      template.Must(template.New("pair").Parse(pairTemplate)),
		sheet:     template.Must(template.New("sheet").Parse(sheetTemplate)),
	}
}

// Composite renders a background image with styled text on top. It is a pure function of its
// inputs: a missing or unusable image gives a neutral placeholder, a missing text half gives
// FallbackText.
func (r *Renderer) Composite(background, text *content.Item, cfg style.Config, opts Options) (template.HTML, error) {
	opts = opts.normalized()
	cfg = cfg.Normalize()
	dim := sizes[opts.Size]

	view := compositeView{
		Dir:         string(opts.Direction),
		BoxStyle:    boxStyle(dim, "position:relative;overflow:hidden;"),
		Placeholder: "No image",
	}
	if background != nil {
		view.ImageURL, view.HasImage = imageURL(background.FileURL)
	}
	if cfg.BackgroundOverlayOpacity > 0 {
		view.HasOverlay = true
		view.Overlay = template.CSS("position:absolute;inset:0;background:" + style.RGBA("#000000", cfg.BackgroundOverlayOpacity) + ";")
	}

	place := style.Place(cfg.Position, opts.Direction)
	view.LayerStyle = template.CSS(fmt.Sprintf(
		"position:absolute;inset:0;display:flex;padding:8%%;box-sizing:border-box;justify-content:%s;align-items:%s;text-align:%s;",
		place.Justify, place.Align, place.TextAlign,
	))

	view.Text = FallbackText
	if text != nil {
		if t := plainText(text.Content); t != "" {
			view.Text = t
			view.HasText = true
		}
	}
	view.TextStyle = textStyle(cfg, dim)

	var buf bytes.Buffer
	if err := r.composite.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render composite card: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Item renders a plain catalog item: images as a picture, text as a text tile.
func (r *Renderer) Item(item content.Item, opts Options) (template.HTML, error) {
	opts = opts.normalized()
	dim := sizes[opts.Size]

	view := itemView{
		Dir:      string(opts.Direction),
		BoxStyle: boxStyle(dim, fmt.Sprintf("overflow:hidden;background:#ffffff;font-size:%spx;", formatPx(dim.fontPx))),
		Kind:     string(content.KindOf(item.ElementType)),
		Text:     plainText(item.Content),
	}
	if item.ElementType.RequiresFile() {
		view.ImageURL, view.HasImage = imageURL(item.FileURL)
	}

	var buf bytes.Buffer
	if err := r.item.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render item card: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// 目录文本偶尔带有富文本标签，卡片上只显示纯文本。
var textPolicy = bluemonday.StrictPolicy()

// plainText strips markup; the template escapes the result again.
func plainText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(raw)))
}

func boxStyle(dim dimensions, extra string) template.CSS {
	return template.CSS(fmt.Sprintf("width:%dpx;height:%dpx;border-radius:12px;%s", dim.width, dim.height, extra))
}

// textStyle builds the inline CSS of the text span. The color is the hex color with the text
// opacity as alpha.
func textStyle(cfg style.Config, dim dimensions) template.CSS {
	var b strings.Builder
	b.WriteString("color:" + style.RGBA(cfg.TextColor, cfg.TextOpacity) + ";")
	b.WriteString("font-size:" + formatPx(dim.fontPx*cfg.FontSizeMultiplier) + "px;")
	b.WriteString("font-weight:" + cfg.FontWeight + ";")
	b.WriteString("font-family:" + fontFamily(cfg.FontFamily) + ";")
	b.WriteString("line-height:1.2;word-break:break-word;")
	if cfg.TextShadowEnabled {
		b.WriteString("text-shadow:0 1px 3px rgba(0, 0, 0, 0.8);")
	}
	return template.CSS(b.String())
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// fontFamily 只保留字体名中常见的字符，避免样式注入。
func fontFamily(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == ',', r == '-', r == '_', r == '\'', r == '"':
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "inherit"
	}
	return out
}

// imageURL accepts absolute http(s) URLs only.
func imageURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}
