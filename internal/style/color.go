package style

import (
	"fmt"
	"strconv"
	"strings"
)

// parseHex 解析 #rgb 或 #rrggbb。
func parseHex(hex string) (r, g, b uint8, ok bool) {
	h := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6:
	default:
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}

// RGBA converts a hex color and an opacity into an rgba() value with the same channels.
// Colors that are not hex are returned unchanged.
func RGBA(hex string, opacity float64) string {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return hex
	}
	alpha := Clamp(opacity, 0, 1)
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, strconv.FormatFloat(alpha, 'f', -1, 64))
}
