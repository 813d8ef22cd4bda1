package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pairStudio/internal/api/middleware"
	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
	"pairStudio/internal/editor"
	"pairStudio/internal/sessionstore"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// requestLocale 取 Accept-Language 的首选语言，只区分 he 与 en。
func requestLocale(c *gin.Context) string {
	header := strings.ToLower(c.GetHeader("Accept-Language"))
	first := strings.TrimSpace(strings.SplitN(header, ",", 2)[0])
	first = strings.SplitN(first, ";", 2)[0]
	switch {
	case strings.HasPrefix(first, "he"), strings.HasPrefix(first, "iw"):
		return "he"
	}
	return "en"
}

// statusFor maps editor, session and catalog errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		validation *editor.ValidationError
		apiErr     *catalog.APIError
	)
	switch {
	case errors.As(err, &validation),
		errors.Is(err, editor.ErrIncompleteSide),
		errors.Is(err, editor.ErrInvalidStyleValue),
		errors.Is(err, content.ErrMalformedPair):
		return http.StatusUnprocessableEntity
	case errors.Is(err, editor.ErrBusy), errors.Is(err, sessionstore.ErrLocked),
		errors.Is(err, editor.ErrIllegalTransition),
		errors.Is(err, editor.ErrNotComposable),
		errors.Is(err, editor.ErrNotSubPair),
		errors.Is(err, editor.ErrStyleEditorClosed):
		return http.StatusConflict
	case errors.Is(err, editor.ErrUnknownSide):
		return http.StatusBadRequest
	case errors.Is(err, sessionstore.ErrNotFound), catalog.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes a localized error body. Validation errors carry their fields so the
// client can show them next to the inputs.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if errors.Is(err, sessionstore.ErrLocked) {
		err = editor.ErrBusy
	}
	body := gin.H{"error": editor.UserMessage(err, requestLocale(c))}

	var validation *editor.ValidationError
	if errors.As(err, &validation) {
		body["fields"] = validation.Fields
	}

	log := middleware.LoggerFromContext(c)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Info("request rejected", "status", status, "error", err)
	}
	c.JSON(status, body)
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	return middleware.UserID(c)
}
