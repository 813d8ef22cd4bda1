package card

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Sheet is a printable page of pairs.
type Sheet struct {
	Title       string
	GeneratedAt time.Time
	Pairs       []template.HTML
}

const sheetTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        @page { size: A4; margin: 12mm; }
        body {
            margin: 0;
            font-family: 'Noto Sans Hebrew', 'Noto Sans', sans-serif;
            color: #111827;
        }
        h1 { font-size: 18pt; margin: 0 0 4px; }
        .generated { font-size: 9pt; color: #6b7280; margin-bottom: 12px; }
        .sheet {
            display: grid;
            grid-template-columns: repeat(2, 1fr);
            gap: 18px;
        }
        .pair { break-inside: avoid; justify-content: center; }
        .pair-side { border: 1px dashed #9ca3af; border-radius: 12px; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <div class="generated">{{.GeneratedAt.Format "2006-01-02 15:04"}}</div>
    <div class="sheet">
        {{range .Pairs}}{{.}}
        {{end}}
    </div>
</body>
</html>
`

// Sheet renders a full HTML document for PDF export.
func (r *Renderer) Sheet(s Sheet) ([]byte, error) {
	if s.GeneratedAt.IsZero() {
		s.GeneratedAt = time.Now()
	}
	var buf bytes.Buffer
	if err := r.sheet.Execute(&buf, s); err != nil {
		return nil, fmt.Errorf("render sheet: %w", err)
	}
	return buf.Bytes(), nil
}
