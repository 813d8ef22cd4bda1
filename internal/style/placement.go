package style

import "strings"

// Direction 是卡片的书写方向。
type Direction string

const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

// ParseDirection 默认返回 RTL。
func ParseDirection(raw string) Direction {
	if strings.EqualFold(strings.TrimSpace(raw), string(LTR)) {
		return LTR
	}
	return RTL
}

// Placement holds the flexbox values that put the text block on an anchor.
type Placement struct {
	Justify   string
	Align     string
	TextAlign string
}

// Place maps an anchor to flexbox alignment. Under RTL the main axis starts on the right,
// so left and right anchors swap their flex-start/flex-end values.
func Place(p Position, dir Direction) Placement {
	if !p.Valid() {
		p = Center
	}
	row, col := splitAnchor(p)

	out := Placement{Align: "center", Justify: "center", TextAlign: "center"}
	switch row {
	case "top":
		out.Align = "flex-start"
	case "bottom":
		out.Align = "flex-end"
	}

	start, end := "flex-start", "flex-end"
	if dir == RTL {
		start, end = end, start
	}
	switch col {
	case "left":
		out.Justify = start
		out.TextAlign = "left"
	case "right":
		out.Justify = end
		out.TextAlign = "right"
	}
	return out
}

func splitAnchor(p Position) (row, col string) {
	switch p {
	case Center:
		return "middle", "center"
	}
	parts := strings.SplitN(string(p), "-", 2)
	return parts[0], parts[1]
}
