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
// 各サービスは必要なメソッドだけを持つインターフェースを定義して利用する。
type MetricsCollector interface {
	SubscriptionOpened(collection string)
	SubscriptionClosed(collection string)
	RecordSnapshot(collection string, ok bool)
	RecordBackendRequest(endpoint string, statusCode int, duration time.Duration)
	RecordProfileFieldFailure(field string)
	RecordFollowAttempt(action string, ok bool)
	RecordUpload(stage string, durable bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	activeSubscriptions *prometheus.GaugeVec
	snapshotEvents      *prometheus.CounterVec
	backendRequests     *prometheus.CounterVec
	backendLatency      prometheus.Histogram
	profileFailures     *prometheus.CounterVec
	followAttempts      *prometheus.CounterVec
	uploads             *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		activeSubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zemong_live_subscriptions_active",
			Help: "開いているライブ購読の数",
		}, []string{"collection"}),
		snapshotEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zemong_snapshot_events_total",
			Help: "受信したスナップショットの合計数",
		}, []string{"collection", "result"}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zemong_backend_requests_total",
			Help: "RESTバックエンド呼び出しの合計数",
		}, []string{"endpoint", "status_code"}),
		backendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zemong_backend_request_latency_seconds",
			Help:    "RESTバックエンド呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		profileFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zemong_profile_field_failures_total",
			Help: "プロフィールのフィールド取得失敗の合計数",
		}, []string{"field"}),
		followAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zemong_follow_attempts_total",
			Help: "フォロー/フォロー解除の試行回数",
		}, []string{"action", "result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zemong_uploads_total",
			Help: "プロフィール画像アップロードの合計数",
		}, []string{"stage", "durable"}),
	}

	reg.MustRegister(
		c.activeSubscriptions,
		c.snapshotEvents,
		c.backendRequests,
		c.backendLatency,
		c.profileFailures,
		c.followAttempts,
		c.uploads,
	)

	return c
}

// SubscriptionOpened はライブ購読の開始を記録する。
func (c *Collector) SubscriptionOpened(collection string) {
	c.activeSubscriptions.WithLabelValues(collection).Inc()
}

// SubscriptionClosed はライブ購読の終了を記録する。
func (c *Collector) SubscriptionClosed(collection string) {
	c.activeSubscriptions.WithLabelValues(collection).Dec()
}

// RecordSnapshot はスナップショットの受信結果を記録する。
func (c *Collector) RecordSnapshot(collection string, ok bool) {
	c.snapshotEvents.WithLabelValues(collection, result(ok)).Inc()
}

// RecordBackendRequest はバックエンド呼び出しを記録する。通信エラーはstatusCode=0。
func (c *Collector) RecordBackendRequest(endpoint string, statusCode int, duration time.Duration) {
	c.backendRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.backendLatency.Observe(duration.Seconds())
}

// RecordProfileFieldFailure はプロフィールのフィールド取得失敗を記録する。
func (c *Collector) RecordProfileFieldFailure(field string) {
	c.profileFailures.WithLabelValues(field).Inc()
}

// RecordFollowAttempt はフォロー操作の1回の試行を記録する。
func (c *Collector) RecordFollowAttempt(action string, ok bool) {
	c.followAttempts.WithLabelValues(action, result(ok)).Inc()
}

// RecordUpload はアップロードの最終段階と永続化の成否を記録する。
func (c *Collector) RecordUpload(stage string, durable bool) {
	c.uploads.WithLabelValues(stage, strconv.FormatBool(durable)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。/metricsにマウントして使う。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
