package state

import (
	"fmt"

	"github.com/hitoshi/zemong/internal/model"
)

// ActionType はreducerに渡すアクションの種別。
type ActionType string

const (
	UpdateSession         ActionType = "UPDATE_SESSION"
	UpdateHeaderState     ActionType = "UPDATE_HEADER_STATE"
	UpdateDetailState     ActionType = "UPDATE_DETAIL_STATE"
	UpdateFeeds           ActionType = "UPDATE_FEEDS"
	UpdateFollower        ActionType = "UPDATE_FOLLOWER"
	UpdateFollowing       ActionType = "UPDATE_FOLLOWING"
	UpdateLikeList        ActionType = "UPDATE_LIKE_LIST"
	NicknameServiceUpdate ActionType = "NICKNAME_SERVICE_UPDATE"
)

// Action は状態遷移を引き起こすイベント。
// Payloadの型はTypeごとに決まっており、各コンストラクタで生成する。
type Action struct {
	Type    ActionType
	Payload any

	// Owner はユーザー単位のコレクション更新の持ち主。
	// 空でなく、現在のセッションのユーザーと一致しない場合は適用されない。
	Owner string
}

// ForUser はOwnerを設定したアクションを返す。
func (a Action) ForUser(uid string) Action {
	a.Owner = uid
	return a
}

// SessionUpdated はセッション更新アクションを生成する。nilはサインアウトを表す。
func SessionUpdated(id *model.Identity) Action {
	return Action{Type: UpdateSession, Payload: id}
}

// HeaderStateUpdated はヘッダー表示状態の更新アクションを生成する。
func HeaderStateUpdated(open bool) Action {
	return Action{Type: UpdateHeaderState, Payload: open}
}

// DetailStateUpdated は詳細オーバーレイ表示状態の更新アクションを生成する。
func DetailStateUpdated(open bool) Action {
	return Action{Type: UpdateDetailState, Payload: open}
}

// FeedsUpdated はfeed一覧（新しい順の投稿ID）の更新アクションを生成する。
func FeedsUpdated(ids []string) Action {
	return Action{Type: UpdateFeeds, Payload: nonNil(ids)}
}

// FollowersUpdated はフォロワー一覧の更新アクションを生成する。
func FollowersUpdated(entries []model.FriendEntry) Action {
	return Action{Type: UpdateFollower, Payload: nonNil(entries)}
}

// FollowingUpdated はフォロー中一覧の更新アクションを生成する。
func FollowingUpdated(entries []model.FriendEntry) Action {
	return Action{Type: UpdateFollowing, Payload: nonNil(entries)}
}

// LikeListUpdated はいいね一覧の更新アクションを生成する。
func LikeListUpdated(entries []model.LikeEntry) Action {
	return Action{Type: UpdateLikeList, Payload: nonNil(entries)}
}

// NicknamesUpdated はニックネームディレクトリの更新アクションを生成する。
func NicknamesUpdated(entries []model.NicknameEntry) Action {
	return Action{Type: NicknameServiceUpdate, Payload: nonNil(entries)}
}

// String はログ出力用の表現を返す。
func (a Action) String() string {
	return fmt.Sprintf("%s(%T)", a.Type, a.Payload)
}

// nonNil は空コレクションを「未取得」と区別するため、nilを長さ0のスライスに置き換える。
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
