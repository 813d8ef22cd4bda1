package content

import (
	"encoding/json"
	"errors"

	"pairStudio/internal/style"
)

// ErrMalformedPair 表示目录返回的配对结构不满足两侧约束。
var ErrMalformedPair = errors.New("pair must have exactly two sides")

// UsageMetadata 随配对保存的附加信息，目前只有文字样式。
type UsageMetadata struct {
	TextStyles *style.Partial `json:"textStyles,omitempty"`
}

// PairRequest is the body of the create/update pair calls.
type PairRequest struct {
	UseType       UseType        `json:"useType"`
	Contents      []SideRef      `json:"contents"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

// Entry is one resolved side of a stored pair: either a catalog item or a nested pair.
type Entry struct {
	ID      int64  `json:"id"`
	Source  Source `json:"source"`
	Item    *Item  `json:"-"`
	SubPair *Pair  `json:"-"`
}

type entryWire struct {
	ID            int64          `json:"id"`
	Source        Source         `json:"source"`
	ElementType   ElementType    `json:"elementType,omitempty"`
	Content       string         `json:"content,omitempty"`
	FileURL       string         `json:"fileUrl,omitempty"`
	Metadata      map[string]any `json:"contentMetadata,omitempty"`
	UseType       UseType        `json:"useType,omitempty"`
	ContentItems  []Entry        `json:"contentItems,omitempty"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

// UnmarshalJSON 根据 source 区分目录条目与嵌套配对。
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.Source = w.Source
	e.Item, e.SubPair = nil, nil
	if w.Source == SourceSubPair {
		e.SubPair = &Pair{
			ID:            w.ID,
			UseType:       w.UseType,
			Contents:      w.ContentItems,
			UsageMetadata: w.UsageMetadata,
		}
		return nil
	}
	if e.Source == "" {
		e.Source = SourceCatalog
	}
	e.Item = &Item{
		ID:          w.ID,
		ElementType: w.ElementType,
		Content:     w.Content,
		FileURL:     w.FileURL,
		Metadata:    w.Metadata,
	}
	return nil
}

// MarshalJSON 输出与目录服务一致的扁平结构。
func (e Entry) MarshalJSON() ([]byte, error) {
	w := entryWire{ID: e.ID, Source: e.Source}
	switch {
	case e.SubPair != nil:
		w.Source = SourceSubPair
		w.UseType = e.SubPair.UseType
		w.ContentItems = e.SubPair.Contents
		w.UsageMetadata = e.SubPair.UsageMetadata
	case e.Item != nil:
		w.ElementType = e.Item.ElementType
		w.Content = e.Item.Content
		w.FileURL = e.Item.FileURL
		w.Metadata = e.Item.Metadata
	}
	return json.Marshal(w)
}

// Kind classifies the entry for pair-type derivation.
func (e Entry) Kind() SideKind {
	if e.SubPair != nil {
		return KindComposite
	}
	if e.Item != nil {
		return KindOf(e.Item.ElementType)
	}
	return KindUnknown
}

// Pair 是目录服务中保存的配对记录。
type Pair struct {
	ID            int64          `json:"id"`
	UseType       UseType        `json:"useType"`
	Contents      []Entry        `json:"contentItems"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

// Sides returns the two sides of the pair or ErrMalformedPair.
func (p Pair) Sides() (Entry, Entry, error) {
	if len(p.Contents) != 2 {
		return Entry{}, Entry{}, ErrMalformedPair
	}
	return p.Contents[0], p.Contents[1], nil
}

// Composite splits a sub-pair into its background and text halves, in either stored order.
func (p Pair) Composite() (background, text *Item, ok bool) {
	for _, e := range p.Contents {
		if e.Item == nil {
			continue
		}
		switch e.Item.ElementType {
		case ElementBackgroundImage:
			if background == nil {
				background = e.Item
			}
		case ElementData:
			if text == nil {
				text = e.Item
			}
		}
	}
	return background, text, background != nil || text != nil
}
