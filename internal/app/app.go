package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/zemong/internal/auth"
	"github.com/hitoshi/zemong/internal/backend"
	"github.com/hitoshi/zemong/internal/blob"
	"github.com/hitoshi/zemong/internal/config"
	"github.com/hitoshi/zemong/internal/database"
	"github.com/hitoshi/zemong/internal/follow"
	"github.com/hitoshi/zemong/internal/handler"
	"github.com/hitoshi/zemong/internal/logger"
	"github.com/hitoshi/zemong/internal/metrics"
	"github.com/hitoshi/zemong/internal/middleware"
	"github.com/hitoshi/zemong/internal/profile"
	"github.com/hitoshi/zemong/internal/realtime"
	"github.com/hitoshi/zemong/internal/security"
	"github.com/hitoshi/zemong/internal/session"
	"github.com/hitoshi/zemong/internal/state"
	"github.com/hitoshi/zemong/internal/subscription"
	"github.com/hitoshi/zemong/internal/upload"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("realtime_backend", cfg.RealtimeBackend),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// application は配線済みの全コンポーネントを保持する。
type application struct {
	logger  *slog.Logger
	handler http.Handler

	db          *sql.DB
	redis       *redis.Client
	realtime    realtime.Database
	manager     *subscription.Manager
	uploader    *upload.Uploader
	rateLimiter *middleware.RateLimiter
}

// build は設定に従って全依存関係をワイヤリングする。
// 失敗した場合は途中まで開いた接続を閉じてから返る。
func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (a *application, err error) {
	a = &application{logger: log}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. リアルタイムDBと画像の保存先
	if err := a.openStorage(ctx, cfg); err != nil {
		return nil, err
	}
	var blobs blob.Store = blob.NewMemoryStore(cfg.BaseURL)
	if a.db != nil {
		blobs = blob.NewPostgresStore(a.db, cfg.BaseURL)
	}

	// 3. アプリケーション状態と認証状態
	store := state.NewStore(state.State{})
	sessions := session.NewStore(store, log)
	authService := auth.NewService(auth.NewVerifier(cfg.SessionSecret, ""), sessions, log)

	// 4. ライブ購読
	a.manager = subscription.NewManager(a.realtime, store, log, collector)
	if err := a.manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start live subscriptions: %w", err)
	}
	sessions.OnChange(a.manager.Observe)

	// 5. RESTバックエンドとドメインサービス
	backendClient := backend.NewClient(
		&http.Client{Timeout: cfg.BackendTimeout},
		log,
		backend.Options{
			BaseURL:  cfg.BackendURL,
			Rate:     cfg.BackendRate,
			CacheTTL: cfg.ProfileCacheTTL,
			Metrics:  collector,
		},
	)
	aggregator := profile.NewAggregator(backendClient, store, log, collector)
	followAction := follow.NewAction(backendClient, log, collector, follow.Options{
		MaxAttempts: cfg.FollowMaxAttempts,
		RetryBase:   cfg.FollowRetryBase,
	})
	a.uploader = upload.NewUploader(blobs, a.realtime, security.NewTextSanitizer(0), log, upload.Options{
		MaxSize: cfg.UploadMaxSize,
		Cache:   backendClient,
		Metrics: collector,
	})

	// 6. ハンドラーとルーター
	// data URLやmultipartのボディはデコード後の画像より大きい
	profileHandler := handler.NewProfileHandler(aggregator, followAction, a.uploader, store,
		handler.ProfileHandlerConfig{UploadLimit: cfg.UploadMaxSize * 2},
		log,
	)
	sessions.OnChange(profileHandler.Observe)

	a.rateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
	a.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		Session:           sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       a.rateLimiter,
		Store:             store,
		Health:            a.manager,
		AuthService:       authService,
		Profile:           profileHandler,
		Blobs:             blobs,
		Metrics:           metrics.Handler(registry),
	})

	return a, nil
}

// openStorage はREALTIME_BACKENDに応じてリアルタイムDBを開く。
func (a *application) openStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.RealtimeBackend {
	case config.RealtimePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			return err
		}
		a.db = db
		a.logger.Info("database connection established")

		rt, err := realtime.NewPostgresDB(db, cfg.DatabaseURL, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open realtime database: %w", err)
		}
		a.realtime = rt

	case config.RealtimeRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.redis = rdb
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.logger.Info("redis connection established", slog.String("addr", cfg.RedisAddr))

		rt, err := realtime.NewRedisDB(ctx, rdb, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open realtime database: %w", err)
		}
		a.realtime = rt

	default:
		a.realtime = realtime.NewMemoryDB()
	}
	return nil
}

// shutdown は保存中のアップロードを待ってから全ての接続を閉じる。
func (a *application) shutdown(ctx context.Context) error {
	var errs []error
	if a.uploader != nil {
		if err := a.uploader.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pending uploads: %w", err))
		}
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// close は開いている順と逆順にリソースを解放する。nilのものは飛ばす。
func (a *application) close() error {
	var errs []error
	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
	if a.manager != nil {
		if err := a.manager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("live subscriptions: %w", err))
		}
	}
	if a.realtime != nil {
		if err := a.realtime.Close(); err != nil {
			errs = append(errs, fmt.Errorf("realtime database: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	startCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	a, err := build(startCtx, cfg, slog.Default())
	cancel()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     a.handler,
		ReadTimeout: 15 * time.Second,
		// WebSocketは長時間の接続になるためWriteTimeoutは設定しない
		IdleTimeout: 60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		slog.Error("server listen error", slog.String("error", err.Error()))
		a.close()
		return fmt.Errorf("server listen failed: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		a.close()
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := a.shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたはupの場合はすべての未適用マイグレーションを順番に適用する。
// down [N] の場合は直近N件（既定は1件）を戻す。
func runMigrate(cfg *config.Config, args []string) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.String("direction", direction),
	)

	var (
		version uint
		err     error
	)
	switch direction {
	case "up":
		version, err = database.RunMigrations(cfg.DatabaseURL)
	case "down":
		steps := 1
		if len(args) > 1 {
			steps, err = strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid rollback steps %q: %w", args[1], err)
			}
		}
		version, err = database.Rollback(cfg.DatabaseURL, steps)
	default:
		return fmt.Errorf("unknown migrate direction: %s", direction)
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
