// Package metrics はゲートウェイのPrometheusメトリクスを定義する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はゲートウェイが公開するメトリクスの集合。
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal はHTTPリクエスト数（メソッド、ルート、ステータス別）。
	RequestsTotal *prometheus.CounterVec
	// RequestDuration はHTTPリクエストの処理時間。
	RequestDuration *prometheus.HistogramVec
	// UpstreamErrors は転送先との通信エラー数。
	UpstreamErrors prometheus.Counter
	// PreferencesSaved は保存された訪問者設定の数。
	PreferencesSaved prometheus.Counter
}

// New は専用のレジストリにメトリクスを登録して返す。
// Goランタイムとプロセスのコレクタも同じレジストリに登録する。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests handled by the gateway",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		UpstreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_upstream_errors_total",
			Help: "Total number of failed requests to the upstream storefront",
		}),
		PreferencesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_preferences_saved_total",
			Help: "Total number of visitor preference updates",
		}),
	}
}

// ObserveRequest は1リクエストの結果を記録する。
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// IncUpstreamErrors は転送先エラー数を1増やす。
func (m *Metrics) IncUpstreamErrors() {
	m.UpstreamErrors.Inc()
}

// IncPreferencesSaved は保存された訪問者設定数を1増やす。
func (m *Metrics) IncPreferencesSaved() {
	m.PreferencesSaved.Inc()
}

// Handler は/metrics用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry はメトリクスのレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
