package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pairstudio",
		Subsystem: "worker",
		Name:      "tasks_total",
		Help:      "Handled tasks by type and result (ok, retry, dropped).",
	}, []string{"task_type", "result"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pairstudio",
		Subsystem: "worker",
		Name:      "task_duration_seconds",
		Help:      "任务处理耗时；导出会启动无头浏览器，桶上限放宽到两分钟。",
		Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"task_type"})
)

// TaskMiddleware records every asynq task. SkipRetry failures count as "dropped"
// because asynq archives them instead of retrying.
func TaskMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(task.Type()).Observe(time.Since(start).Seconds())
			tasksHandled.WithLabelValues(task.Type(), taskResult(err)).Inc()
			return err
		})
	}
}

func taskResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, asynq.SkipRetry):
		return "dropped"
	default:
		return "retry"
	}
}
