package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const slogLoggerKey = "slogLogger"

// 探活与指标抓取过于频繁，不写访问日志。
var quietRoutes = map[string]bool{"/health": true, "/metrics": true}

// SlogLoggerMiddleware 为每个请求准备带 Correlation ID 的 logger，编辑会话路由额外带上 session_id，
// and writes one access line when the request completes.
func SlogLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		attrs := []any{
			slog.String("correlation_id", GetCorrelationID(c)),
			slog.String("method", c.Request.Method),
			slog.String("route", route),
		}
		if strings.HasPrefix(route, "/v1/editor/sessions/:id") {
			attrs = append(attrs, slog.String("session_id", c.Param("id")))
		}
		reqLog := logger.With(attrs...)
		c.Set(slogLoggerKey, reqLog)

		start := time.Now()
		c.Next()
		if quietRoutes[route] {
			return
		}

		done := []any{
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		}
		if id, ok := UserID(c); ok {
			done = append(done, slog.Uint64("user_id", uint64(id)))
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			done = append(done, slog.String("errors", errs.String()))
		}
		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelWarn
		}
		reqLog.Log(c.Request.Context(), level, "request completed", done...)
	}
}

// LoggerFromContext 返回上下文中的 slog.Logger。
func LoggerFromContext(c *gin.Context) *slog.Logger {
	if value, ok := c.Get(slogLoggerKey); ok {
		if logger, ok := value.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}
