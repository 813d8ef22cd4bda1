package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subPairsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pairstudio",
		Subsystem: "editor",
		Name:      "sub_pairs_created_total",
		Help:      "编辑会话中创建的子配对数量。",
	})

	subPairCleanup = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pairstudio",
		Subsystem: "editor",
		Name:      "sub_pair_cleanup_total",
		Help:      "Deletes of uncommitted sub-pairs by origin and result.",
	}, []string{"origin", "result"})

	uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pairstudio",
		Subsystem: "contents",
		Name:      "uploads_total",
		Help:      "内容文件上传结果。",
	}, []string{"result"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pairstudio",
		Subsystem: "editor",
		Name:      "sessions_active",
		Help:      "当前进程中打开且未关闭的编辑会话数。",
	})
)

// SubPairCreated 记录一次子配对创建。
func SubPairCreated() { subPairsCreated.Inc() }

// SubPairCleanup records one delete attempt. origin is "save", "close" or "sweep".
func SubPairCleanup(origin string, ok bool) {
	result := "deleted"
	if !ok {
		result = "failed"
	}
	subPairCleanup.WithLabelValues(origin, result).Inc()
}

// Upload records an upload outcome such as "ok", "invalid", "infected" or "error".
func Upload(result string) { uploads.WithLabelValues(result).Inc() }

func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }
