// Package metrics 汇总 API 与 worker 的 Prometheus 指标，均注册在默认注册表。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 编辑器接口大多很快，预览渲染与文件上传在秒级。
var httpBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pairstudio",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP 请求总数。",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pairstudio",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency; websocket streams are not observed.",
		Buckets:   httpBuckets,
	}, []string{"method", "route"})
)

// GinMiddleware labels by route template so ids never reach the label set.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		upgrade := c.GetHeader("Upgrade") != ""
		c.Next()

		route := c.FullPath()
		switch route {
		case "":
			route = "unmatched"
		case "/metrics":
			return
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		if !upgrade {
			httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		}
	}
}

// Handler 暴露默认注册表，挂载在 /metrics。
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
