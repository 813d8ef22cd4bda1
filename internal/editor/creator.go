package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
)

// MaxUploadBytes caps uploaded image files.
const MaxUploadBytes int64 = 50 << 20

// Uploader is the write side of the catalog used by the creator.
type Uploader interface {
	CreateTextContent(ctx context.Context, in catalog.NewContent) (content.Item, error)
	CreateFileContent(ctx context.Context, in catalog.NewContent, file catalog.FileUpload, progress catalog.ProgressFunc) (content.Item, error)
}

// File 是待上传的文件。
type File struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Draft is the input of the content creator.
type Draft struct {
	ElementType content.ElementType `json:"elementType" validate:"required,oneof=data backgroundImage completeCard"`
	Name        string              `json:"content" validate:"required,max=500"`
	Metadata    map[string]any      `json:"contentMetadata"`
	File        *File               `json:"-"`
}

const (
	fileRequiredText = "a file is required for this content type"
	fileTypeText     = "only image files are allowed"
	fileSizeText     = "the file must be 50MB or smaller"
	requiredText     = "this field is required"
)

// Creator validates drafts and registers new catalog items.
type Creator struct {
	up         Uploader
	validate   *validator.Validate
	translator ut.Translator
}

// NewCreator 初始化校验器与英文翻译。
func NewCreator(up Uploader) *Creator {
	v := validator.New()
	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterTranslation("required", translator,
		func(t ut.Translator) error { return t.Add("required", requiredText, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T("required", fe.Field())
			return s
		},
	)

	return &Creator{up: up, validate: v, translator: translator}
}

// Validate checks a draft without touching the network. It returns nil or a *ValidationError.
func (c *Creator) Validate(d Draft) error {
	d.Name = strings.TrimSpace(d.Name)

	var fields []FieldError
	if err := c.validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate draft: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Message: fe.Translate(c.translator)})
		}
	}

	if d.ElementType.Valid() && d.ElementType.RequiresFile() {
		switch {
		case d.File == nil || d.File.Body == nil:
			fields = append(fields, FieldError{Field: "file", Message: fileRequiredText})
		case !strings.HasPrefix(strings.ToLower(strings.TrimSpace(d.File.ContentType)), "image/"):
			fields = append(fields, FieldError{Field: "file", Message: fileTypeText})
		case d.File.Size > MaxUploadBytes:
			fields = append(fields, FieldError{Field: "file", Message: fileSizeText})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Create validates and then registers the item, returning the catalog record unmodified.
// Progress is only reported for file uploads.
func (c *Creator) Create(ctx context.Context, d Draft, progress catalog.ProgressFunc) (content.Item, error) {
	if err := c.Validate(d); err != nil {
		return content.Item{}, err
	}

	in := catalog.NewContent{
		ElementType: d.ElementType,
		Content:     strings.TrimSpace(d.Name),
		Metadata:    d.Metadata,
	}
	if !d.ElementType.RequiresFile() {
		item, err := c.up.CreateTextContent(ctx, in)
		if err != nil {
			return content.Item{}, fmt.Errorf("create text content: %w", err)
		}
		return item, nil
	}

	item, err := c.up.CreateFileContent(ctx, in, catalog.FileUpload{
		Filename:    d.File.Filename,
		ContentType: d.File.ContentType,
		Size:        d.File.Size,
		Body:        d.File.Body,
	}, progress)
	if err != nil {
		return content.Item{}, fmt.Errorf("upload content: %w", err)
	}
	return item, nil
}
