// Package profile はプロフィール画面の表示データを集約する。
package profile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/zemong/internal/feed"
	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/state"
)

// DefaultNickname はニックネームが分からない場合の表示名。
const DefaultNickname = "ZEMONG"

// Backend はプロフィール集約に必要なバックエンド呼び出し。
type Backend interface {
	ProfileImage(ctx context.Context, uid string) (string, error)
	ProfileQuote(ctx context.Context, uid string) (string, error)
	UserFeed(ctx context.Context, uid string) ([]model.FeedItem, error)
	RecommendedFriends(ctx context.Context, uid string, following []model.FriendEntry) ([]model.RecommendedFriend, error)
}

// StateReader はアプリケーション状態の読み取りインターフェース。
type StateReader interface {
	State() state.State
}

// MetricsRecorder はフィールド取得失敗の記録インターフェース。
type MetricsRecorder interface {
	RecordProfileFieldFailure(field string)
}

// Target は表示対象のプロフィール。
// UIDが空の場合は閲覧者自身のプロフィールを表す。
// NicknameとIsFollowingは遷移元から渡される初期値。
type Target struct {
	UID         string
	Nickname    string
	IsFollowing bool
}

// Own は自分のプロフィールかを返す。
func (t Target) Own() bool {
	return t.UID == ""
}

// Aggregator は画像・ひとこと・投稿一覧・おすすめ友達を並行に取得してまとめる。
type Aggregator struct {
	backend Backend
	store   StateReader
	logger  *slog.Logger
	metrics MetricsRecorder
}

// NewAggregator はAggregatorを生成する。metricsはnilでもよい。
func NewAggregator(backend Backend, store StateReader, logger *slog.Logger, metrics MetricsRecorder) *Aggregator {
	return &Aggregator{
		backend: backend,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Load はプロフィールを1回分取得する。
// 各フィールドの取得は独立しており、失敗したフィールドは未設定のまま
// FieldErrorsに理由が入る。いいね数は今回取得した投稿一覧から計算する。
// ctxがキャンセルされた場合は結果を返さない。
func (a *Aggregator) Load(ctx context.Context, viewer *model.Identity, target Target) (*model.ProfileView, error) {
	if viewer == nil {
		return nil, model.NewUnauthorizedError()
	}

	uid := target.UID
	if target.Own() {
		uid = viewer.ID
	}
	st := a.store.State()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		image   string
		quote   string
		items   []model.FeedItem
		friends []model.RecommendedFriend
		errs    = make(map[model.ProfileField]error)
	)
	fail := func(field model.ProfileField, err error) {
		mu.Lock()
		errs[field] = err
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		v, err := a.backend.ProfileImage(ctx, uid)
		if err != nil {
			fail(model.ProfileFieldImage, err)
			return
		}
		image = v
	}()
	go func() {
		defer wg.Done()
		v, err := a.backend.ProfileQuote(ctx, uid)
		if err != nil {
			fail(model.ProfileFieldQuote, err)
			return
		}
		quote = v
	}()
	go func() {
		defer wg.Done()
		v, err := a.backend.UserFeed(ctx, uid)
		if err != nil {
			fail(model.ProfileFieldFeed, err)
			return
		}
		items = v
	}()
	if target.Own() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := a.backend.RecommendedFriends(ctx, uid, st.Following)
			if err != nil {
				fail(model.ProfileFieldFriends, err)
				return
			}
			friends = v
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for field, err := range errs {
		a.logger.Error("failed to fetch profile field",
			slog.String("user_id", uid),
			slog.String("field", string(field)),
			slog.String("error", err.Error()),
		)
		if a.metrics != nil {
			a.metrics.RecordProfileFieldFailure(string(field))
		}
		errs[field] = model.NewBackendUnavailableError(string(field), err)
	}

	list := feed.NewestFirst(items)
	if list == nil {
		list = []model.FeedItem{}
	}
	if friends == nil {
		friends = []model.RecommendedFriend{}
	}

	v := &model.ProfileView{
		UID:          uid,
		Image:        image,
		Quote:        quote,
		FeedList:     list,
		LikeCount:    feed.SumLikes(list),
		PostCount:    len(list),
		IsOwnProfile: target.Own(),
		Friends:      friends,
		FieldErrors:  errs,
	}

	if target.Own() {
		v.Nickname = viewer.DisplayName
		v.FollowerCount = len(st.Followers)
		v.FollowingCount = len(st.Following)
	} else {
		v.Nickname = nicknameFor(st, target)
		v.IsFollowing = target.IsFollowing
		if following, ok := st.IsFollowing(uid); ok {
			v.IsFollowing = following
		}
	}
	if v.Nickname == "" {
		v.Nickname = DefaultNickname
	}

	return v, nil
}

// nicknameFor は遷移元から渡された名前、なければニックネームディレクトリから表示名を探す。
func nicknameFor(st state.State, target Target) string {
	if target.Nickname != "" {
		return target.Nickname
	}
	for _, n := range st.Nicknames {
		if n.UID == target.UID {
			return n.Nickname
		}
	}
	return ""
}
