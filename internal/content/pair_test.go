package content

import (
	"encoding/json"
	"testing"
)

const storedPair = `{
  "id": 40,
  "useType": "pair",
  "contentItems": [
    {"id": 7, "source": "subpair", "useType": "mixedContents",
     "usageMetadata": {"textStyles": {"position": "top-left", "textColor": "#112233"}},
     "contentItems": [
       {"id": 1, "source": "catalog", "elementType": "backgroundImage", "content": "sky", "fileUrl": "https://cdn.example/sky.png"},
       {"id": 2, "source": "catalog", "elementType": "data", "content": "cloud"}
     ]},
    {"id": 3, "elementType": "data", "content": "nube"}
  ]
}`

func TestPairDecodesNestedSubPairs(t *testing.T) {
	var p Pair
	if err := json.Unmarshal([]byte(storedPair), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	a, b, err := p.Sides()
	if err != nil {
		t.Fatalf("sides: %v", err)
	}
	if a.SubPair == nil || a.Kind() != KindComposite {
		t.Fatalf("expected first side to be a sub-pair, got %+v", a)
	}
	if b.Item == nil || b.Source != SourceCatalog || b.Kind() != KindText {
		t.Fatalf("expected second side to default to a catalog text item, got %+v", b)
	}

	bg, text, ok := a.SubPair.Composite()
	if !ok || bg == nil || text == nil {
		t.Fatalf("expected both composite halves")
	}
	if bg.ID != 1 || text.Content != "cloud" {
		t.Fatalf("unexpected halves bg=%+v text=%+v", bg, text)
	}
	if a.SubPair.UsageMetadata == nil || *a.SubPair.UsageMetadata.TextStyles.TextColor != "#112233" {
		t.Fatalf("expected text styles to survive decoding")
	}

	if typ := DerivePairType(a.Kind(), b.Kind()); typ != PairCompositeCard {
		t.Fatalf("pair type = %q", typ)
	}
}

func TestSidesRejectsWrongSideCount(t *testing.T) {
	p := Pair{Contents: []Entry{{ID: 1, Item: &Item{ID: 1, ElementType: ElementData}}}}
	if _, _, err := p.Sides(); err != ErrMalformedPair {
		t.Fatalf("expected ErrMalformedPair, got %v", err)
	}
}
