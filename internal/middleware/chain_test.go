package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/zemong/internal/model"
)

// TestMiddlewareChain_Router はchi.Router上でCORS → Recovery → Session → RateLimit
// の順に組んだチェーンを検証する。
func TestMiddlewareChain_Router(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	rl := newTestRateLimiter(t, RateLimiterConfig{GeneralRate: 1, GeneralBurst: 2, ActionRate: 1, ActionBurst: 1})

	r := chi.NewRouter()
	r.Use(NewCORSMiddleware("http://localhost:3000"))
	r.Use(NewRecoveryMiddleware(logger))
	r.Get("/health", okHandler)
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(signedInAs(&model.Identity{ID: "u-chain"})))
		r.Use(rl.GeneralMiddleware())
		r.Get("/api/me", func(w http.ResponseWriter, r *http.Request) {
			uid, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": uid})
		})
		r.Get("/api/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("CORS header missing")
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["user_id"] != "u-chain" {
		t.Errorf("user_id = %q", body["user_id"])
	}

	// パニックは500に変換され、レート制限も消費する
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("panic status = %d, want 500", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}

	// 認証不要ルートはレート制限の対象外
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
}

func TestMiddlewareChain_SignedOut_StopsBeforeRateLimit(t *testing.T) {
	rl := newTestRateLimiter(t, DefaultRateLimiterConfig())
	handler := NewSessionMiddleware(signedInAs(nil))(rl.GeneralMiddleware()(okHandler))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/profile/u2/follow", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if rl.GeneralLimiterCount() != 0 {
		t.Error("未ログインのリクエストでリミッターが作られた")
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		path      string
		wantCache string
	}{
		{path: "/api/profile", wantCache: "no-store"},
		{path: "/blobs/users/u1/profile.jpg", wantCache: ""},
		{path: "/health", wantCache: ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewSecurityHeadersMiddleware()(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Referrer-Policy"} {
				if w.Header().Get(h) == "" {
					t.Errorf("%s is missing", h)
				}
			}
			if got := w.Header().Get("Cache-Control"); got != tt.wantCache {
				t.Errorf("Cache-Control = %q, want %q", got, tt.wantCache)
			}
		})
	}
}
