// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアントやストア、オーケストレーターから利用する。
type MetricsCollector interface {
	RecordBackendCall(endpoint string, statusCode int, duration time.Duration)
	RecordBackendTransportError(endpoint string)
	RecordLogin(success bool)
	RecordStoreRejection(resource string)
	RecordProgramRegistration(success bool)
	RecordPaymentInitiation(initiated bool)
	SetActiveWorkspaces(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendCalls     *prometheus.CounterVec
	backendErrors    *prometheus.CounterVec
	backendLatency   *prometheus.HistogramVec
	logins           *prometheus.CounterVec
	storeRejections  *prometheus.CounterVec
	registrations    *prometheus.CounterVec
	payments         *prometheus.CounterVec
	activeWorkspaces prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiportal_backend_calls_total",
			Help: "バックエンドAPI呼び出し数（エンドポイント・ステータス別）",
		}, []string{"endpoint", "status_code"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiportal_backend_transport_errors_total",
			Help: "レスポンスを得られなかったバックエンド呼び出し数",
		}, []string{"endpoint"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ksiportal_backend_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiportal_logins_total",
			Help: "ログイン試行数（結果別）",
		}, []string{"result"}),
		storeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiportal_store_rejections_total",
			Help: "rejectedで終わったストア取得数（リソース別）",
		}, []string{"resource"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiportal_program_registrations_total",
			Help: "プログラム登録の送信数（結果別）",
		}, []string{"result"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksiportal_payment_initiations_total",
			Help: "決済開始リクエスト数（決済URLの有無別）",
		}, []string{"result"}),
		activeWorkspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ksiportal_active_workspaces",
			Help: "メモリ上に保持しているクライアントワークスペース数",
		}),
	}

	reg.MustRegister(
		c.backendCalls,
		c.backendErrors,
		c.backendLatency,
		c.logins,
		c.storeRejections,
		c.registrations,
		c.payments,
		c.activeWorkspaces,
	)

	return c
}

// RecordBackendCall はバックエンド呼び出しのステータスとレイテンシを記録する。
func (c *Collector) RecordBackendCall(endpoint string, statusCode int, duration time.Duration) {
	c.backendCalls.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.backendLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordBackendTransportError はタイムアウト等の通信エラーを記録する。
func (c *Collector) RecordBackendTransportError(endpoint string) {
	c.backendErrors.WithLabelValues(endpoint).Inc()
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	c.logins.WithLabelValues(resultLabel(success)).Inc()
}

// RecordStoreRejection はストアのrejected遷移を記録する。
func (c *Collector) RecordStoreRejection(resource string) {
	c.storeRejections.WithLabelValues(resource).Inc()
}

// RecordProgramRegistration はプログラム登録結果を記録する。
func (c *Collector) RecordProgramRegistration(success bool) {
	c.registrations.WithLabelValues(resultLabel(success)).Inc()
}

// RecordPaymentInitiation は決済開始の結果を記録する。
func (c *Collector) RecordPaymentInitiation(initiated bool) {
	label := "initiated"
	if !initiated {
		label = "missing_url"
	}
	c.payments.WithLabelValues(label).Inc()
}

// SetActiveWorkspaces は保持中のワークスペース数を設定する。
func (c *Collector) SetActiveWorkspaces(count int) {
	c.activeWorkspaces.Set(float64(count))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordBackendCall(string, int, time.Duration) {}
func (Nop) RecordBackendTransportError(string)           {}
func (Nop) RecordLogin(bool)                             {}
func (Nop) RecordStoreRejection(string)                  {}
func (Nop) RecordProgramRegistration(bool)               {}
func (Nop) RecordPaymentInitiation(bool)                 {}
func (Nop) SetActiveWorkspaces(int)                      {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
