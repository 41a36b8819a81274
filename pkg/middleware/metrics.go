package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics はリクエスト数とレイテンシをPrometheusに記録するGinミドルウェアを返す。
// 同じRegistererに対して複数回呼び出した場合は既存のコレクタを再利用する。
func Metrics(reg prometheus.Registerer) gin.HandlerFunc {
	requestTotal := registerOrExisting(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pairfect",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"}))

	requestLatency := registerOrExisting(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pairfect",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"}))

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		requestTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		requestLatency.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

// registerOrExisting はコレクタを登録し、登録済みの場合は既存のコレクタを返す。
func registerOrExisting[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}
