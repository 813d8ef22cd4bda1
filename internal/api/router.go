package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pairStudio/internal/api/middleware"
	"pairStudio/internal/metrics"
)

// NewRouter 构建 Gin 引擎：关联 ID、访问日志、指标与 panic 恢复，外加健康检查与 /metrics。
func NewRouter(logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
		gin.Recovery(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	return router
}
