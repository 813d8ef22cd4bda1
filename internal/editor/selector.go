package editor

import (
	"context"
	"fmt"

	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
)

// PageSize is the fixed number of catalog items per selector page.
const PageSize = 12

// Searcher is the read side of the catalog.
type Searcher interface {
	SearchContents(ctx context.Context, q catalog.SearchQuery) (catalog.SearchResult, error)
}

// SelectorQuery 是选择器的一次查询。Page 从 0 开始。
type SelectorQuery struct {
	Search      string
	ElementType content.ElementType
	Page        int
}

// Page is one page of selectable items.
type Page struct {
	Items     []content.Item `json:"items"`
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	PageCount int            `json:"pageCount"`
}

// Selector lists catalog items while hiding an explicit set of ids.
type Selector struct {
	src     Searcher
	exclude map[int64]struct{}
}

// NewSelector 返回排除给定 ID 的选择器。
func NewSelector(src Searcher, exclude ...int64) *Selector {
	set := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		set[id] = struct{}{}
	}
	return &Selector{src: src, exclude: set}
}

// Search fetches one page. Excluded items are dropped from the page; Total stays the
// catalog's count.
func (s *Selector) Search(ctx context.Context, q SelectorQuery) (Page, error) {
	if q.Page < 0 {
		q.Page = 0
	}
	res, err := s.src.SearchContents(ctx, catalog.SearchQuery{
		Limit:       PageSize,
		Offset:      q.Page * PageSize,
		Search:      q.Search,
		ElementType: q.ElementType,
	})
	if err != nil {
		return Page{}, fmt.Errorf("search contents: %w", err)
	}

	items := make([]content.Item, 0, len(res.Data))
	for _, item := range res.Data {
		if _, skip := s.exclude[item.ID]; skip {
			continue
		}
		items = append(items, item)
	}

	total := res.Pagination.Total
	return Page{
		Items:     items,
		Total:     total,
		Page:      q.Page,
		PageCount: (total + PageSize - 1) / PageSize,
	}, nil
}

// CreateAndSelect creates an item through the creator and returns it as the selection.
func (s *Selector) CreateAndSelect(ctx context.Context, c *Creator, d Draft, progress catalog.ProgressFunc) (content.Item, error) {
	item, err := c.Create(ctx, d, progress)
	if err != nil {
		return content.Item{}, err
	}
	s.exclude[item.ID] = struct{}{}
	return item, nil
}
