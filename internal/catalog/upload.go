package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"pairStudio/internal/content"
)

// FileUpload is the file part of a multipart content creation.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ProgressFunc receives upload progress as a whole percentage, 0–100.
type ProgressFunc func(percent int)

// progressReader 只在百分比变化时回调；100 留给服务端确认之后。
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	last     int
	progress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		if pct != p.last {
			p.last = pct
			p.progress(pct)
		}
	}
	return n, err
}

// CreateFileContent uploads an item as multipart form data and reports progress.
func (c *Client) CreateFileContent(ctx context.Context, in NewContent, file FileUpload, progress ProgressFunc) (content.Item, error) {
	const op = "create file content"
	if progress == nil {
		progress = func(int) {}
	}
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return content.Item{}, fmt.Errorf("%s: marshal metadata: %w", op, err)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	progress(0)
	go func() {
		pw.CloseWithError(writeForm(form, in, metadata, file, progress))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+contentsPath, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return content.Item{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var item content.Item
	if err := c.send(op, req, &item); err != nil {
		_ = pr.CloseWithError(err)
		return content.Item{}, err
	}
	progress(100)
	return item, nil
}

func writeForm(form *multipart.Writer, in NewContent, metadata []byte, file FileUpload, progress ProgressFunc) error {
	fields := [][2]string{
		{"elementType", string(in.ElementType)},
		{"content", in.Content},
		{"contentMetadata", string(metadata)},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Filename))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	src := &progressReader{r: file.Body, total: file.Size, last: 0, progress: progress}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	return form.Close()
}
