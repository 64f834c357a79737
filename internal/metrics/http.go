package metrics

import (
	"strconv"
	"time"

	"github.com/beego/beego/v2/server/web/context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpReqTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	httpReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "HTTP request duration in ms",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"route", "method"},
	)
)

const startKey = "_metrics_start"

// HTTPMetricsFilter BeforeRouter 阶段记录开始时间
func HTTPMetricsFilter(ctx *context.Context) {
	ctx.Input.SetData(startKey, time.Now())
}

// HTTPMetricsAfter FinishRouter 阶段记录耗时与状态码
// 使用路由模式（如 /api/game/:id/grid）作为标签，避免路径参数导致标签基数膨胀
func HTTPMetricsAfter(ctx *context.Context) {
	start, _ := ctx.Input.GetData(startKey).(time.Time)
	if start.IsZero() {
		return
	}
	route := ctx.Input.GetData("RouterPattern")
	path, _ := route.(string)
	if path == "" {
		path = "unmatched"
	}
	method := ctx.Input.Method()
	status := ctx.ResponseWriter.Status
	if status == 0 {
		status = 200
	}
	httpReqDuration.WithLabelValues(path, method).Observe(float64(time.Since(start).Milliseconds()))
	httpReqTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}
