package content

import (
	"fmt"
	"strings"
)

// ElementType 表示目录内容条目的语义类型。
type ElementType string

const (
	ElementData            ElementType = "data"
	ElementBackgroundImage ElementType = "backgroundImage"
	ElementCompleteCard    ElementType = "completeCard"
)

// Valid 判断是否为目录可识别的类型。
func (t ElementType) Valid() bool {
	switch t {
	case ElementData, ElementBackgroundImage, ElementCompleteCard:
		return true
	}
	return false
}

// RequiresFile reports whether items of this type must be created from an uploaded file.
func (t ElementType) RequiresFile() bool {
	return t != ElementData
}

// ParseElementType 解析查询参数中的类型，空字符串表示不过滤。
func ParseElementType(raw string) (ElementType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	t := ElementType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("unknown element type %q", raw)
	}
	return t, nil
}

// Item 是目录服务持有的内容条目，本服务只读。
type Item struct {
	ID          int64          `json:"id"`
	ElementType ElementType    `json:"elementType"`
	Content     string         `json:"content"`
	FileURL     string         `json:"fileUrl,omitempty"`
	Metadata    map[string]any `json:"contentMetadata,omitempty"`
}

// Source 区分一侧引用的是目录条目还是子配对。
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceSubPair Source = "subpair"
)

// UseType 是配对在目录服务中的用途标记。
type UseType string

const (
	UsePair          UseType = "pair"
	UseMixedContents UseType = "mixedContents"
)

// SideRef is the {id, source} descriptor sent for each side of a pair.
type SideRef struct {
	ID     int64  `json:"id"`
	Source Source `json:"source"`
}
