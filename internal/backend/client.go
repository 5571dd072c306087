// Package backend はアプリケーションサーバーのREST APIクライアントを提供する。
// フォロー操作、プロフィール取得、投稿一覧、おすすめ友達の各エンドポイントを扱う。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/hitoshi/zemong/internal/model"
)

const (
	EndpointFollow       = "/friend/follow"
	EndpointUnfollow     = "/friend/unfollow"
	EndpointProfileImage = "/user/profile/image"
	EndpointProfileQuote = "/user/profile/quote"
	EndpointUserFeed     = "/user/feed"
	EndpointRecommend    = "/friends/recommand"

	// maxResponseSize はレスポンスボディの最大読み取りサイズ。
	maxResponseSize = 1 << 20
	userAgent       = "Zemong/1.0"
)

// MetricsRecorder はバックエンド呼び出しのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordBackendRequest(endpoint string, statusCode int, duration time.Duration)
}

// StatusError はバックエンドが200以外を返した場合のエラー。
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s returned status %d", e.Endpoint, e.StatusCode)
}

// Permanent は再試行しても結果が変わらないエラーかを返す。
// 408と429を除く4xxが該当する。
func (e *StatusError) Permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Client はRESTバックエンドのクライアント。
// 送信レートを制限し、プロフィール画像とひとことを短時間キャッシュする。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	limiter    *rate.Limiter
	cache      *cache.Cache
	metrics    MetricsRecorder
}

// Options はClientの生成オプション。
type Options struct {
	BaseURL string
	// Rate は1秒あたりの最大リクエスト数。0以下の場合は制限しない。
	Rate float64
	// CacheTTL はプロフィールキャッシュの有効期間。0以下の場合はキャッシュしない。
	CacheTTL time.Duration
	Metrics  MetricsRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, opts Options) *Client {
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    opts.BaseURL,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		metrics:    opts.Metrics,
	}
	if opts.Rate > 0 {
		burst := int(opts.Rate)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	if opts.CacheTTL > 0 {
		c.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return c
}

type pairRequest struct {
	UID  string `json:"uid"`
	FUID string `json:"fuid"`
}

type uidRequest struct {
	UID string `json:"uid"`
}

type recommendRequest struct {
	UID       string              `json:"uid"`
	Following []model.FriendEntry `json:"following"`
}

type msgResponse struct {
	Msg string `json:"msg"`
}

// Follow はuidのユーザーがfuidをフォローする。確認メッセージを返す。
func (c *Client) Follow(ctx context.Context, uid, fuid string) (string, error) {
	var resp msgResponse
	if err := c.post(ctx, EndpointFollow, pairRequest{UID: uid, FUID: fuid}, &resp); err != nil {
		return "", err
	}
	return resp.Msg, nil
}

// Unfollow はuidのユーザーがfuidのフォローを解除する。確認メッセージを返す。
func (c *Client) Unfollow(ctx context.Context, uid, fuid string) (string, error) {
	var resp msgResponse
	if err := c.post(ctx, EndpointUnfollow, pairRequest{UID: uid, FUID: fuid}, &resp); err != nil {
		return "", err
	}
	return resp.Msg, nil
}

// ProfileImage はプロフィール画像URLを返す。
func (c *Client) ProfileImage(ctx context.Context, uid string) (string, error) {
	return c.cachedString(ctx, "image:"+uid, func() (string, error) {
		var resp struct {
			Image string `json:"image"`
		}
		if err := c.post(ctx, EndpointProfileImage, uidRequest{UID: uid}, &resp); err != nil {
			return "", err
		}
		return resp.Image, nil
	})
}

// ProfileQuote はひとことを返す。
func (c *Client) ProfileQuote(ctx context.Context, uid string) (string, error) {
	return c.cachedString(ctx, "quote:"+uid, func() (string, error) {
		var resp struct {
			Quote string `json:"quote"`
		}
		if err := c.post(ctx, EndpointProfileQuote, uidRequest{UID: uid}, &resp); err != nil {
			return "", err
		}
		return resp.Quote, nil
	})
}

// UserFeed はユーザーの投稿一覧を古い順で返す。
func (c *Client) UserFeed(ctx context.Context, uid string) ([]model.FeedItem, error) {
	var resp struct {
		Feed []model.FeedItem `json:"feed"`
		Msg  string           `json:"msg"`
	}
	if err := c.post(ctx, EndpointUserFeed, uidRequest{UID: uid}, &resp); err != nil {
		return nil, err
	}
	if resp.Msg != "" {
		c.logger.Debug("user feed fetched", slog.String("user_id", uid), slog.String("msg", resp.Msg))
	}
	if resp.Feed == nil {
		return []model.FeedItem{}, nil
	}
	return resp.Feed, nil
}

// RecommendedFriends は現在のフォロー一覧をもとにおすすめ友達を返す。
func (c *Client) RecommendedFriends(ctx context.Context, uid string, following []model.FriendEntry) ([]model.RecommendedFriend, error) {
	if following == nil {
		following = []model.FriendEntry{}
	}
	var resp struct {
		Friends []model.RecommendedFriend `json:"friends"`
		Msg     string                    `json:"msg"`
	}
	if err := c.post(ctx, EndpointRecommend, recommendRequest{UID: uid, Following: following}, &resp); err != nil {
		return nil, err
	}
	if resp.Friends == nil {
		return []model.RecommendedFriend{}, nil
	}
	return resp.Friends, nil
}

// InvalidateProfile はユーザーのプロフィールキャッシュを破棄する。
func (c *Client) InvalidateProfile(uid string) {
	if c.cache == nil {
		return
	}
	c.cache.Delete("image:" + uid)
	c.cache.Delete("quote:" + uid)
}

func (c *Client) cachedString(ctx context.Context, key string, fetch func() (string, error)) (string, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v.(string), nil
		}
	}
	v, err := fetch()
	if err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.SetDefault(key, v)
	}
	return v, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", endpoint, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0, start)
		c.logger.Error("backend request failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.record(endpoint, resp.StatusCode, start)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("backend returned error status",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) record(endpoint string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordBackendRequest(endpoint, status, time.Since(start))
	}
}
