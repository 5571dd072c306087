package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/zemong/internal/feed"
	"github.com/hitoshi/zemong/internal/follow"
	"github.com/hitoshi/zemong/internal/middleware"
	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/profile"
	"github.com/hitoshi/zemong/internal/upload"
)

// ViewOpener はプロフィール訪問ごとのViewを生成する。profile.Aggregatorが実装する。
type ViewOpener interface {
	Open(viewer *model.Identity, target profile.Target) *profile.View
}

// FollowServiceInterface はフォロー操作のインターフェース。follow.Actionが実装する。
type FollowServiceInterface interface {
	Follow(ctx context.Context, uid, fuid string, current bool) follow.Result
	Unfollow(ctx context.Context, uid, fuid string, current bool) follow.Result
}

// UploadServiceInterface は画像アップロードとひとこと保存のインターフェース。
// upload.Uploaderが実装する。
type UploadServiceInterface interface {
	Upload(ctx context.Context, uid string, input []byte, onDone func(upload.Result)) (string, error)
	SubmitQuote(ctx context.Context, uid, quote string) (string, error)
}

// ProfileHandlerConfig はプロフィールハンドラーの設定。
type ProfileHandlerConfig struct {
	// UploadLimit はアップロードリクエストボディの上限バイト数。
	UploadLimit int64
}

// ProfileHandler はプロフィール画面の表示と操作のHTTPハンドラー。
// このプロセスは1人のユーザーの同期層として動くため、表示中のViewは常に1つ。
// 新しい訪問を開くと前のViewは閉じられる。
type ProfileHandler struct {
	views   ViewOpener
	follows FollowServiceInterface
	uploads UploadServiceInterface
	store   StateReader
	config  ProfileHandlerConfig
	logger  *slog.Logger

	mu     sync.Mutex
	view   *profile.View
	viewer *model.Identity
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(
	views ViewOpener,
	follows FollowServiceInterface,
	uploads UploadServiceInterface,
	store StateReader,
	config ProfileHandlerConfig,
	logger *slog.Logger,
) *ProfileHandler {
	if config.UploadLimit <= 0 {
		config.UploadLimit = 8 << 20
	}
	return &ProfileHandler{
		views:   views,
		follows: follows,
		uploads: uploads,
		store:   store,
		config:  config,
		logger:  logger,
	}
}

// --- レスポンス型 ---

type friendResponse struct {
	UID      string `json:"uid"`
	Nickname string `json:"nickname"`
	Image    string `json:"image"`
}

// profileResponse はプロフィール画面のAPIレスポンス。
// 自分のプロフィールではcan_editがtrueになり、おすすめ友達とフォロワー数を含む。
// 他人のプロフィールではフォロー状態を表示する。
type profileResponse struct {
	UID            string                                  `json:"uid"`
	Nickname       string                                  `json:"nickname"`
	Image          string                                  `json:"image"`
	Quote          string                                  `json:"quote"`
	FeedList       []model.FeedItem                        `json:"feed_list"`
	FeedImages     []model.FeedItem                        `json:"feed_images"`
	LikeCount      int                                     `json:"like_count"`
	PostCount      int                                     `json:"post_count"`
	FollowerCount  int                                     `json:"follower_count"`
	FollowingCount int                                     `json:"following_count"`
	IsOwnProfile   bool                                    `json:"is_own_profile"`
	CanEdit        bool                                    `json:"can_edit"`
	IsFollowing    *bool                                   `json:"is_following,omitempty"`
	Friends        []friendResponse                        `json:"friends,omitempty"`
	ImagePending   bool                                    `json:"image_pending"`
	FollowError    *middleware.ErrorResponseBody           `json:"follow_error,omitempty"`
	FieldErrors    map[string]middleware.ErrorResponseBody `json:"field_errors,omitempty"`
}

type followResponse struct {
	UID        string `json:"uid"`
	Following  bool   `json:"following"`
	Message    string `json:"message,omitempty"`
	Attempts   int    `json:"attempts"`
	Superseded bool   `json:"superseded"`
}

type uploadResponse struct {
	Preview string `json:"preview"`
	Pending bool   `json:"pending"`
}

type quoteRequest struct {
	Quote string `json:"quote"`
}

type quoteResponse struct {
	Quote string `json:"quote"`
}

// --- 表示 ---

// GetOwnProfile は自分のプロフィールを開く。
// GET /api/profile
func (h *ProfileHandler) GetOwnProfile(w http.ResponseWriter, r *http.Request) {
	h.visit(w, r, profile.Target{})
}

// GetProfile は他ユーザーのプロフィールを開く。
// nicknameとfollowingクエリは遷移元が持っていた初期値として使う。
// GET /api/profile/{uid}?nickname=...&following=true
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	following, _ := strconv.ParseBool(q.Get("following"))
	h.visit(w, r, profile.Target{
		UID:         chi.URLParam(r, "uid"),
		Nickname:    q.Get("nickname"),
		IsFollowing: following,
	})
}

// GetCurrentView は表示中のプロフィールを再取得せずに返す。
// GET /api/view
func (h *ProfileHandler) GetCurrentView(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	v := h.view
	h.mu.Unlock()

	var pv *model.ProfileView
	if v != nil {
		pv = v.Current()
	}
	if pv == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("view"))
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(pv))
}

func (h *ProfileHandler) visit(w http.ResponseWriter, r *http.Request, target profile.Target) {
	viewer, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	v := h.open(viewer, target)
	pv, err := v.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, profile.ErrViewClosed) || errors.Is(err, context.Canceled) {
			// 後続の訪問に置き換えられた
			w.WriteHeader(http.StatusNoContent)
			return
		}
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(pv))
}

// open は新しいViewを開き、前のViewを閉じる。
func (h *ProfileHandler) open(viewer *model.Identity, target profile.Target) *profile.View {
	v := h.views.Open(viewer, target)

	h.mu.Lock()
	prev := h.view
	h.view = v
	h.viewer = viewer
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return v
}

// Observe は認証状態の遷移を受け取り、別ユーザーの表示中Viewを閉じる。
func (h *ProfileHandler) Observe(id *model.Identity) {
	h.mu.Lock()
	if h.view == nil || h.viewer.SameUser(id) {
		h.mu.Unlock()
		return
	}
	prev := h.view
	h.view = nil
	h.viewer = nil
	h.mu.Unlock()

	prev.Close()
}

// currentView は表示中のViewを返す。
func (h *ProfileHandler) currentView() *profile.View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.view
}

// --- フォロー ---

// Follow はURLパラメータuidのユーザーをフォローする。
// POST /api/profile/{uid}/follow
func (h *ProfileHandler) Follow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, true)
}

// Unfollow はURLパラメータuidのユーザーのフォローを解除する。
// DELETE /api/profile/{uid}/follow
func (h *ProfileHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, false)
}

func (h *ProfileHandler) changeFollow(w http.ResponseWriter, r *http.Request, want bool) {
	uid, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	fuid := chi.URLParam(r, "uid")

	v := h.currentView()
	if v != nil && v.Target().UID != fuid {
		v = nil
	}
	current := h.currentFollowing(v, fuid)

	do := h.follows.Unfollow
	if want {
		do = h.follows.Follow
	}
	result := do(r.Context(), uid, fuid, current)

	if result.Superseded {
		writeJSON(w, http.StatusOK, followResponse{UID: fuid, Following: result.Following, Superseded: true})
		return
	}
	if v != nil {
		v.SetFollowing(result.Following, result.Err)
	}
	if result.Err != nil {
		middleware.WriteError(w, h.logger, result.Err)
		return
	}

	writeJSON(w, http.StatusOK, followResponse{
		UID:       fuid,
		Following: result.Following,
		Message:   result.Message,
		Attempts:  result.Attempts,
	})
}

// currentFollowing は操作前のフォロー状態を返す。表示中のViewを優先し、
// なければライブ購読中のfollowing一覧を使う。
func (h *ProfileHandler) currentFollowing(v *profile.View, fuid string) bool {
	if v != nil {
		if pv := v.Current(); pv != nil {
			return pv.IsFollowing
		}
	}
	following, _ := h.store.State().IsFollowing(fuid)
	return following
}

// --- 画像・ひとこと ---

// UploadImage はプロフィール画像をアップロードする。
// multipart/form-dataのimageフィールド、またはボディ全体(生のバイト列かdata URL)を受け付ける。
// プレビューは即座に返し、保存は非同期に行う。
// POST /api/profile/image
func (h *ProfileHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	uid, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	data, err := h.readImage(w, r)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	// 自分のプロフィールを表示中ならプレビューを重ねる
	v := h.currentView()
	if v != nil && !v.Target().Own() {
		v = nil
	}

	preview, err := h.uploads.Upload(r.Context(), uid, data, func(res upload.Result) {
		if v != nil {
			v.SetImage(res.Preview, !res.Durable)
		}
	})
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	if v != nil {
		v.SetImage(preview, true)
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{Preview: preview, Pending: true})
}

func (h *ProfileHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.UploadLimit)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, readError(err, h.config.UploadLimit)
		}
		defer file.Close()
		body = file
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, readError(err, h.config.UploadLimit)
	}
	return data, nil
}

func readError(err error, limit int64) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return model.NewImageTooLargeError(limit)
	}
	return model.NewInvalidImageError("ファイルを読み込めませんでした")
}

// UpdateQuote はひとことを保存する。
// PUT /api/profile/quote
func (h *ProfileHandler) UpdateQuote(w http.ResponseWriter, r *http.Request) {
	uid, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	text, err := h.uploads.SubmitQuote(r.Context(), uid, req.Quote)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Quote: text})
}

// --- 変換 ---

func toProfileResponse(pv *model.ProfileView) profileResponse {
	resp := profileResponse{
		UID:            pv.UID,
		Nickname:       pv.Nickname,
		Image:          pv.Image,
		Quote:          pv.Quote,
		FeedList:       pv.FeedList,
		FeedImages:     feed.Images(pv.FeedList),
		LikeCount:      pv.LikeCount,
		PostCount:      pv.PostCount,
		FollowerCount:  pv.FollowerCount,
		FollowingCount: pv.FollowingCount,
		IsOwnProfile:   pv.IsOwnProfile,
		CanEdit:        pv.IsOwnProfile,
		ImagePending:   pv.ImagePending,
	}
	if resp.FeedList == nil {
		resp.FeedList = []model.FeedItem{}
	}

	if pv.IsOwnProfile {
		resp.Friends = make([]friendResponse, 0, len(pv.Friends))
		for _, f := range pv.Friends {
			resp.Friends = append(resp.Friends, friendResponse{
				UID:      f.UID,
				Nickname: f.Data.Profile.Nickname,
				Image:    f.Data.Profile.Image,
			})
		}
	} else {
		following := pv.IsFollowing
		resp.IsFollowing = &following
	}

	if pv.FollowError != nil {
		body := errorBody(pv.FollowError)
		resp.FollowError = &body
	}
	if len(pv.FieldErrors) > 0 {
		resp.FieldErrors = make(map[string]middleware.ErrorResponseBody, len(pv.FieldErrors))
		for field, err := range pv.FieldErrors {
			resp.FieldErrors[string(field)] = errorBody(err)
		}
	}
	return resp
}

// errorBody はエラーをレスポンス用の統一フォーマットに変換する。
func errorBody(err error) middleware.ErrorResponseBody {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return middleware.ErrorResponseBody{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		}
	}
	return middleware.ErrorResponseBody{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
