package editor

import (
	"context"
	"sync"

	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
)

type fakeCatalog struct {
	mu sync.Mutex

	nextID    int64
	creates   []content.PairRequest
	updates   map[int64][]content.PairRequest
	deletes   []int64
	failNext  map[string]error
	failOnIDs map[int64]error
	stored    map[int64]content.Pair
	gets      []int64
	block     chan struct{}
	entered   chan struct{}
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		nextID:    100,
		updates:   map[int64][]content.PairRequest{},
		failNext:  map[string]error{},
		failOnIDs: map[int64]error{},
		stored:    map[int64]content.Pair{},
	}
}

func (f *fakeCatalog) takeFailure(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failNext[op]
	delete(f.failNext, op)
	return err
}

func (f *fakeCatalog) CreatePair(_ context.Context, req content.PairRequest) (content.Pair, error) {
	if f.block != nil {
		if f.entered != nil {
			f.entered <- struct{}{}
		}
		<-f.block
	}
	if err := f.takeFailure("create"); err != nil {
		return content.Pair{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.creates = append(f.creates, req)
	return content.Pair{ID: f.nextID, UseType: req.UseType}, nil
}

func (f *fakeCatalog) UpdatePair(_ context.Context, id int64, req content.PairRequest) (content.Pair, error) {
	if err := f.takeFailure("update"); err != nil {
		return content.Pair{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = append(f.updates[id], req)
	return content.Pair{ID: id, UseType: req.UseType}, nil
}

func (f *fakeCatalog) GetPair(_ context.Context, id int64) (content.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	pair, ok := f.stored[id]
	if !ok {
		return content.Pair{}, &catalog.APIError{Op: "get pair", Status: 404}
	}
	return pair, nil
}

func (f *fakeCatalog) DeletePair(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	if err, ok := f.failOnIDs[id]; ok {
		return err
	}
	return nil
}

func (f *fakeCatalog) createsOf(use content.UseType) []content.PairRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []content.PairRequest
	for _, c := range f.creates {
		if c.UseType == use {
			out = append(out, c)
		}
	}
	return out
}

var errRemote = &catalog.APIError{Op: "test", Status: 502, Message: "bad gateway"}

func bg(id int64) content.Item {
	return content.Item{ID: id, ElementType: content.ElementBackgroundImage, Content: "bg", FileURL: "https://cdn/bg.png"}
}

func text(id int64) content.Item {
	return content.Item{ID: id, ElementType: content.ElementData, Content: "word"}
}

func card(id int64) content.Item {
	return content.Item{ID: id, ElementType: content.ElementCompleteCard, Content: "card", FileURL: "https://cdn/card.png"}
}
