package editor

import (
	"errors"
	"strings"

	"pairStudio/internal/catalog"
)

var (
	ErrBusy              = errors.New("another editor action is still in flight")
	ErrUnknownSide       = errors.New("unknown pair side")
	ErrIllegalTransition = errors.New("illegal side transition")
	ErrNotComposable     = errors.New("complete cards cannot be composed with text")
	ErrNotSubPair        = errors.New("side is not a composite card")
	ErrIncompleteSide    = errors.New("both sides must be selected before saving")
	ErrStyleEditorClosed = errors.New("style editor is not open")
	ErrInvalidStyleValue = errors.New("invalid style value")
)

// FieldError 描述单个字段的校验失败。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any network call when input is invalid.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

var messages = map[string]map[string]string{
	"en": {
		"busy":       "Please wait for the previous action to finish.",
		"side":       "Unknown card side.",
		"transition": "Finish or cancel the current selection first.",
		"composable": "A complete card cannot be combined with text.",
		"subpair":    "Styles can only be edited on composite cards.",
		"incomplete": "Choose content for both sides before saving.",
		"closed":     "The style editor is not open.",
		"style":      "One of the style values is invalid.",
		"validation": "Please fix the highlighted fields.",
		"notfound":   "The item no longer exists.",
		"remote":     "The content service could not complete the request. Please try again.",
	},
	"he": {
		"busy":       "יש להמתין לסיום הפעולה הקודמת.",
		"side":       "צד הכרטיס אינו מוכר.",
		"transition": "יש להשלים או לבטל את הבחירה הנוכחית.",
		"composable": "לא ניתן לשלב כרטיס מלא עם טקסט.",
		"subpair":    "ניתן לערוך עיצוב רק בכרטיס משולב.",
		"incomplete": "יש לבחור תוכן לשני הצדדים לפני השמירה.",
		"closed":     "עורך העיצוב אינו פתוח.",
		"style":      "אחד מערכי העיצוב אינו תקין.",
		"validation": "יש לתקן את השדות המסומנים.",
		"notfound":   "הפריט כבר אינו קיים.",
		"remote":     "שירות התוכן לא הצליח להשלים את הבקשה. נסו שוב.",
	},
}

// UserMessage maps an editor or catalog error to a message for the given locale.
// Unknown locales fall back to English.
func UserMessage(err error, locale string) string {
	table, ok := messages[strings.ToLower(strings.TrimSpace(locale))]
	if !ok {
		table = messages["en"]
	}

	var validation *ValidationError
	switch {
	case errors.Is(err, ErrBusy):
		return table["busy"]
	case errors.Is(err, ErrUnknownSide):
		return table["side"]
	case errors.Is(err, ErrIllegalTransition):
		return table["transition"]
	case errors.Is(err, ErrNotComposable):
		return table["composable"]
	case errors.Is(err, ErrNotSubPair):
		return table["subpair"]
	case errors.Is(err, ErrIncompleteSide):
		return table["incomplete"]
	case errors.Is(err, ErrStyleEditorClosed):
		return table["closed"]
	case errors.Is(err, ErrInvalidStyleValue):
		return table["style"]
	case errors.As(err, &validation):
		return table["validation"]
	case catalog.IsNotFound(err):
		return table["notfound"]
	}
	return table["remote"]
}
