package card

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"pairStudio/internal/content"
	"pairStudio/internal/style"
)

// PairGetter 读取一个配对，用于补全只带 ID 的子配对。
type PairGetter interface {
	GetPair(ctx context.Context, id int64) (content.Pair, error)
}

// maxDepth bounds sub-pair resolution; a sub-pair never contains another sub-pair in practice.
const maxDepth = 2

// SideView is one rendered side of a pair.
type SideView struct {
	Kind content.SideKind
	HTML template.HTML
}

// PairView is a rendered pair, ready for a page or a sheet.
type PairView struct {
	ID    int64
	Type  content.PairType
	Dir   string
	Sides [2]SideView
}

const pairTemplate = `<div class="pair pair-{{.Type}}" data-pair-id="{{.ID}}" dir="{{.Dir}}" style="display:flex;gap:16px;align-items:center;">
  {{- range .Sides}}
  <div class="pair-side side-{{.Kind}}">{{.HTML}}</div>
  {{- end}}
</div>`

// PairPreview renders a saved pair. Sub-pairs are shown as composite cards; sub-pairs that
// arrive without their halves are fetched through getter (which may be nil).
func (r *Renderer) PairPreview(ctx context.Context, getter PairGetter, pair content.Pair, opts Options) (PairView, error) {
	opts = opts.normalized()
	a, b, err := pair.Sides()
	if err != nil {
		return PairView{}, err
	}

	view := PairView{ID: pair.ID, Dir: string(opts.Direction)}
	for i, entry := range []content.Entry{a, b} {
		resolved, err := resolveEntry(ctx, getter, entry, 0)
		if err != nil {
			return PairView{}, err
		}
		side, err := r.renderEntry(resolved, opts)
		if err != nil {
			return PairView{}, err
		}
		view.Sides[i] = side
	}
	view.Type = content.DerivePairType(view.Sides[0].Kind, view.Sides[1].Kind)
	return view, nil
}

// HTML renders the pair wrapper around both sides.
func (r *Renderer) HTML(view PairView) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.pair.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render pair: %w", err)
	}
	return template.HTML(buf.String()), nil
}

func resolveEntry(ctx context.Context, getter PairGetter, e content.Entry, depth int) (content.Entry, error) {
	if e.SubPair == nil {
		return e, nil
	}
	if depth >= maxDepth {
		return content.Entry{}, fmt.Errorf("resolve sub-pair %d: nested too deeply: %w", e.ID, content.ErrMalformedPair)
	}

	sub := *e.SubPair
	if len(sub.Contents) == 0 && getter != nil {
		fetched, err := getter.GetPair(ctx, e.ID)
		if err != nil {
			return content.Entry{}, fmt.Errorf("resolve sub-pair %d: %w", e.ID, err)
		}
		if sub.UsageMetadata != nil && (fetched.UsageMetadata == nil || fetched.UsageMetadata.TextStyles == nil) {
			fetched.UsageMetadata = sub.UsageMetadata
		}
		sub = fetched
	}

	contents := make([]content.Entry, 0, len(sub.Contents))
	for _, inner := range sub.Contents {
		resolved, err := resolveEntry(ctx, getter, inner, depth+1)
		if err != nil {
			return content.Entry{}, err
		}
		contents = append(contents, resolved)
	}
	sub.Contents = contents
	e.SubPair = &sub
	return e, nil
}

func (r *Renderer) renderEntry(e content.Entry, opts Options) (SideView, error) {
	if e.SubPair != nil {
		bg, text, _ := e.SubPair.Composite()
		var styles *style.Partial
		if e.SubPair.UsageMetadata != nil {
			styles = e.SubPair.UsageMetadata.TextStyles
		}
		html, err := r.Composite(bg, text, style.Resolve(styles), opts)
		if err != nil {
			return SideView{}, err
		}
		return SideView{Kind: content.KindComposite, HTML: html}, nil
	}

	item := content.Item{ID: e.ID}
	if e.Item != nil {
		item = *e.Item
	}
	html, err := r.Item(item, opts)
	if err != nil {
		return SideView{}, err
	}
	return SideView{Kind: content.KindOf(item.ElementType), HTML: html}, nil
}
