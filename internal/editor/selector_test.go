package editor

import (
	"context"
	"testing"

	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
)

type fakeSearcher struct {
	last  catalog.SearchQuery
	items []content.Item
	total int
}

func (f *fakeSearcher) SearchContents(_ context.Context, q catalog.SearchQuery) (catalog.SearchResult, error) {
	f.last = q
	var res catalog.SearchResult
	res.Data = f.items
	res.Pagination.Total = f.total
	return res, nil
}

func TestSelectorPagesAndExcludes(t *testing.T) {
	src := &fakeSearcher{items: []content.Item{text(1), text(2), text(3)}, total: 25}
	sel := NewSelector(src, 2)

	page, err := sel.Search(context.Background(), SelectorQuery{Search: "w", ElementType: content.ElementData, Page: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if src.last.Limit != PageSize || src.last.Offset != 2*PageSize || src.last.ElementType != content.ElementData {
		t.Fatalf("unexpected query %+v", src.last)
	}
	if len(page.Items) != 2 || page.Items[0].ID != 1 || page.Items[1].ID != 3 {
		t.Fatalf("excluded id leaked: %+v", page.Items)
	}
	if page.Total != 25 || page.PageCount != 3 || page.Page != 2 {
		t.Fatalf("unexpected paging %+v", page)
	}
}

func TestCreateAndSelectReturnsNewItem(t *testing.T) {
	sel := NewSelector(&fakeSearcher{})
	item, err := sel.CreateAndSelect(context.Background(), NewCreator(&fakeUploader{}), Draft{ElementType: content.ElementData, Name: "pear"}, nil)
	if err != nil || item.ID != 900 {
		t.Fatalf("create and select: %+v %v", item, err)
	}
}

func TestUserMessageLocalizes(t *testing.T) {
	if got := UserMessage(ErrIncompleteSide, "en"); got != messages["en"]["incomplete"] {
		t.Fatalf("en message = %q", got)
	}
	if got := UserMessage(errRemote, "he"); got != messages["he"]["remote"] {
		t.Fatalf("he message = %q", got)
	}
	if got := UserMessage(&ValidationError{}, "fr"); got != messages["en"]["validation"] {
		t.Fatalf("fallback message = %q", got)
	}
}
