// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。ハンドラー層から利用する。
type Recorder interface {
	RecordLogin(success bool)
	RecordRegistration(flow string)
	RecordOAuthCallback(provider, result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginTotal        *prometheus.CounterVec
	registrationTotal *prometheus.CounterVec
	oauthCallback     *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram

	registry *prometheus.Registry
}

// NewCollector は新しいCollectorを生成し、内部レジストリにメトリクスを登録する。
func NewCollector() *Collector {
	c := &Collector{
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subauth_login_total",
			Help: "ログイン試行数（成否別）",
		}, []string{"result"}),
		registrationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subauth_registration_total",
			Help: "アカウント作成数（フロー別: password, google, facebook, admin）",
		}, []string{"flow"}),
		oauthCallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subauth_oauth_callback_total",
			Help: "OAuthコールバック処理数（プロバイダー・結果別）",
		}, []string{"provider", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subauth_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subauth_request_latency_seconds",
			Help:    "リクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}

	c.registry.MustRegister(
		c.loginTotal,
		c.registrationTotal,
		c.oauthCallback,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.loginTotal.WithLabelValues(result).Inc()
}

// RecordRegistration はアカウント作成を記録する。
func (c *Collector) RecordRegistration(flow string) {
	c.registrationTotal.WithLabelValues(flow).Inc()
}

// RecordOAuthCallback はOAuthコールバックの処理結果を記録する。
// resultは "existing" / "new" / "failure" のいずれか。
func (c *Collector) RecordOAuthCallback(provider, result string) {
	c.oauthCallback.WithLabelValues(provider, result).Inc()
}

// Handler は/metricsエンドポイント用のハンドラーを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// statusRecorder はステータスコード記録用のResponseWriterラッパー。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Middleware はHTTPステータスとレイテンシを記録するミドルウェアを返す。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			c.httpStatus.WithLabelValues(strconv.Itoa(rec.statusCode)).Inc()
			c.requestLatency.Observe(time.Since(start).Seconds())
		})
	}
}

// compile-time interface check
var _ Recorder = (*Collector)(nil)
