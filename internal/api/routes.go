package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pairStudio/internal/api/middleware"
	"pairStudio/internal/autosave"
	"pairStudio/internal/card"
	"pairStudio/internal/catalog"
	"pairStudio/internal/notify"
)

// Deps 汇总路由需要的外部依赖。
type Deps struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Catalog        *catalog.Client
	Sessions       SessionStore
	Ledger         SubPairLedger
	Autosave       *autosave.Debouncer
	Queue          TaskEnqueuer
	Downloads      ExportFiles
	Validator      middleware.TokenValidator
	Scanner        VirusScanner
	Renderer       *card.Renderer
	AllowedOrigins []string
	UploadsPerMin  int
	Logger         *slog.Logger
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	renderer := deps.Renderer
	if renderer == nil {
		renderer = card.NewRenderer()
	}

	// 避免把 nil *redis.Client 包进接口。
	var (
		publisher  notify.Publisher
		counter    redisRateCounter
		subscriber Subscriber
	)
	if deps.Redis != nil {
		publisher, counter, subscriber = deps.Redis, deps.Redis, deps.Redis
	}

	limiter := newUploadRateLimiter(counter, deps.UploadsPerMin, time.Minute)
	contentHandler := NewContentHandler(deps.Catalog, deps.Scanner, publisher, limiter, deps.Logger)
	sessionHandler := NewSessionHandler(deps.Sessions, deps.Catalog, deps.Ledger, deps.Autosave, deps.Logger)
	pairHandler := NewPairHandler(deps.Catalog, renderer, deps.Logger)
	exportHandler := NewExportHandler(deps.DB, deps.Queue, deps.Downloads, deps.Logger)
	notifyHandler := NewNotifyHandler(subscriber, deps.Validator, deps.Logger, deps.AllowedOrigins)
	authMiddleware := middleware.AuthMiddleware(deps.Validator)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", notifyHandler.Stream)

		contents := v1.Group("/contents", authMiddleware)
		{
			contents.GET("", contentHandler.ListContents)
			contents.POST("", contentHandler.CreateContent)
		}

		sessions := v1.Group("/editor/sessions", authMiddleware)
		{
			sessions.POST("", sessionHandler.CreateSession)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.POST("/:id/save", sessionHandler.SaveSession)
			sessions.DELETE("/:id", sessionHandler.CloseSession)

			sides := sessions.Group("/:id/sides/:side")
			sides.POST("/pick", sessionHandler.PickSide)
			sides.POST("/cancel", sessionHandler.CancelSide)
			sides.GET("/style", sessionHandler.GetStyle)
			sides.PUT("/style", sessionHandler.SaveStyle)
			sides.PATCH("/style/draft", sessionHandler.SaveStyleDraft)
		}

		pairs := v1.Group("/pairs", authMiddleware)
		{
			pairs.GET("/:id/preview", pairHandler.Preview)
			pairs.DELETE("/:id", pairHandler.DeletePair)
		}

		exports := v1.Group("/exports", authMiddleware)
		{
			exports.POST("", exportHandler.CreateExport)
			exports.GET("/:id", exportHandler.GetExport)
			exports.DELETE("/:id", exportHandler.DeleteExport)
		}
	}
}
