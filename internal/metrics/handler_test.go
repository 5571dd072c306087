package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesRecordedMetrics は記録したメトリクスがスクレイプ結果に含まれることを検証する。
func TestHandler_ServesRecordedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.SubscriptionOpened("feed")
	c.RecordBackendRequest("/profile/image", http.StatusOK, 15*time.Millisecond)
	c.RecordUpload("done", true)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{
		"zemong_live_subscriptions_active",
		"zemong_backend_requests_total",
		"zemong_backend_request_latency_seconds",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("response should contain %s", name)
		}
	}
}

// TestHandler_SeparateRegistries はレジストリごとに独立して公開されることを検証する。
func TestHandler_SeparateRegistries(t *testing.T) {
	used := prometheus.NewRegistry()
	NewCollector(used).SubscriptionOpened("likelist")
	empty := prometheus.NewRegistry()
	NewCollector(empty)

	w := httptest.NewRecorder()
	Handler(empty).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if strings.Contains(w.Body.String(), `collection="likelist"`) {
		t.Error("別のレジストリのメトリクスが混ざっている")
	}
}
