package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/zemong/internal/middleware"
	"github.com/hitoshi/zemong/internal/model"
)

// HealthReporter はライブ購読の状態を返す。subscription.Managerが実装する。
type HealthReporter interface {
	Active() []string
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Session           middleware.IdentitySource
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 状態
	Store  StateStore
	Health HealthReporter

	// 認証
	AuthService AuthServiceInterface

	// プロフィール
	Profile *ProfileHandler

	// 画像配信
	Blobs BlobReader

	// /metrics
	Metrics http.Handler
}

type healthResponse struct {
	Status        string   `json:"status"`
	SignedIn      bool     `json:"signed_in"`
	Subscriptions []string `json:"subscriptions"`
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General) → RateLimit(Action)
//
// セッション・画面遷移・ライブ配信・画像配信は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Session, deps.Logger)
	layoutHandler := NewLayoutHandler(deps.Store)
	collectionHandler := NewCollectionHandler(deps.Store, deps.Logger)
	liveHandler := NewLiveHandler(deps.Store, deps.CORSAllowedOrigin, deps.Logger)
	blobHandler := NewBlobHandler(deps.Blobs, deps.Logger)
	profileHandler := deps.Profile

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", SignedIn: deps.Session.Current() != nil, Subscriptions: []string{}}
		if deps.Health != nil {
			resp.Subscriptions = deps.Health.Active()
		}
		writeJSON(w, http.StatusOK, resp)
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", authHandler.Me)
		r.Post("/", authHandler.SignIn)
		r.Delete("/", authHandler.SignOut)
	})
	r.Get("/api/route", layoutHandler.ResolveRoute)
	r.Get("/api/layout", layoutHandler.GetLayout)
	r.Put("/api/layout", layoutHandler.UpdateLayout)
	r.Get("/api/live", liveHandler.Stream)
	r.Get("/blobs/*", blobHandler.Get)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Session))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ライブ購読中のコレクション
		r.Get("/api/collections/{name}", collectionHandler.Get)
		r.Get("/api/feeds", collectionHandler.For(model.CollectionFeed))
		r.Get("/api/followers", collectionHandler.For(model.CollectionFollower))
		r.Get("/api/following", collectionHandler.For(model.CollectionFollowing))
		r.Get("/api/likes", collectionHandler.For(model.CollectionLikeList))
		r.Get("/api/nicknames", collectionHandler.For(model.CollectionNicknames))

		// プロフィール
		r.Get("/api/view", profileHandler.GetCurrentView)
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetOwnProfile)

			// 変更操作には専用のレート制限を追加
			r.With(deps.RateLimiter.ActionMiddleware()).Post("/image", profileHandler.UploadImage)
			r.With(deps.RateLimiter.ActionMiddleware()).Put("/quote", profileHandler.UpdateQuote)

			r.Route("/{uid}", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.With(deps.RateLimiter.ActionMiddleware()).Post("/follow", profileHandler.Follow)
				r.With(deps.RateLimiter.ActionMiddleware()).Delete("/follow", profileHandler.Unfollow)
			})
		})
	})

	return r
}
