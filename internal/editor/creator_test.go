package editor

import (
	"bytes"
	"context"
	"testing"

	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
)

type fakeUploader struct {
	textCalls int
	fileCalls int
	lastFile  catalog.FileUpload
}

func (f *fakeUploader) CreateTextContent(_ context.Context, in catalog.NewContent) (content.Item, error) {
	f.textCalls++
	return content.Item{ID: 900, ElementType: in.ElementType, Content: in.Content}, nil
}

func (f *fakeUploader) CreateFileContent(_ context.Context, in catalog.NewContent, file catalog.FileUpload, progress catalog.ProgressFunc) (content.Item, error) {
	f.fileCalls++
	f.lastFile = file
	progress(0)
	progress(100)
	return content.Item{ID: 901, ElementType: in.ElementType, Content: in.Content, FileURL: "https://cdn/x.png"}, nil
}

func TestCreatorRequiresFileForImageTypes(t *testing.T) {
	up := &fakeUploader{}
	c := NewCreator(up)

	_, err := c.Create(context.Background(), Draft{ElementType: content.ElementBackgroundImage, Name: "forest"}, nil)
	verr, ok := err.(*ValidationError)
	if !ok || !verr.Has("file") {
		t.Fatalf("expected a file-required validation error, got %v", err)
	}
	if up.textCalls+up.fileCalls != 0 {
		t.Fatalf("no network call may be issued for an invalid draft")
	}
}

func TestCreatorValidation(t *testing.T) {
	c := NewCreator(&fakeUploader{})
	img := func(mime string, size int64) *File {
		return &File{Filename: "x", ContentType: mime, Size: size, Body: bytes.NewReader(nil)}
	}

	cases := map[string]struct {
		draft Draft
		field string
	}{
		"blank name":   {Draft{ElementType: content.ElementData, Name: "   "}, "content"},
		"missing type": {Draft{Name: "x"}, "elementType"},
		"unknown type": {Draft{ElementType: "video", Name: "x"}, "elementType"},
		"not an image": {Draft{ElementType: content.ElementCompleteCard, Name: "x", File: img("application/pdf", 10)}, "file"},
		"too large":    {Draft{ElementType: content.ElementCompleteCard, Name: "x", File: img("image/png", MaxUploadBytes+1)}, "file"},
		"missing file": {Draft{ElementType: content.ElementCompleteCard, Name: "x"}, "file"},
	}
	for name, tc := range cases {
		err := c.Validate(tc.draft)
		verr, ok := err.(*ValidationError)
		if !ok || !verr.Has(tc.field) {
			t.Errorf("%s: expected error on %q, got %v", name, tc.field, err)
		}
	}

	if err := c.Validate(Draft{ElementType: content.ElementData, Name: "hello"}); err != nil {
		t.Fatalf("text draft should be valid: %v", err)
	}
	if err := c.Validate(Draft{ElementType: content.ElementBackgroundImage, Name: "x", File: img("image/jpeg", MaxUploadBytes)}); err != nil {
		t.Fatalf("50MB image should be valid: %v", err)
	}
}

func TestCreatorRoutesByElementType(t *testing.T) {
	up := &fakeUploader{}
	c := NewCreator(up)
	ctx := context.Background()

	item, err := c.Create(ctx, Draft{ElementType: content.ElementData, Name: " apple "}, nil)
	if err != nil || up.textCalls != 1 || item.Content != "apple" {
		t.Fatalf("text create: %+v %v", item, err)
	}

	var progress []int
	item, err = c.Create(ctx, Draft{
		ElementType: content.ElementCompleteCard,
		Name:        "apple card",
		File:        &File{Filename: "a.png", ContentType: "image/png", Size: 3, Body: bytes.NewReader([]byte("png"))},
	}, func(p int) { progress = append(progress, p) })
	if err != nil || up.fileCalls != 1 || item.ID != 901 {
		t.Fatalf("file create: %+v %v", item, err)
	}
	if len(progress) != 2 || progress[1] != 100 || up.lastFile.Filename != "a.png" {
		t.Fatalf("unexpected progress %v / file %+v", progress, up.lastFile)
	}
}
