// Package state はアプリケーション状態とreducerによる状態遷移を提供する。
//
// 状態はイミュータブルな値として扱い、Reduceは副作用を持たない。
// スライスがnilの場合は「未取得」、長さ0の非nilスライスは「空」を表す。
package state

import "github.com/hitoshi/zemong/internal/model"

// Layout はヘッダーと詳細オーバーレイの表示状態。
type Layout struct {
	HeaderOpen bool `json:"header_open"`
	DetailOpen bool `json:"detail_open"`
}

// State はアプリケーション全体の状態。
type State struct {
	Session   *model.Identity       `json:"session"`
	Layout    Layout                `json:"layout"`
	Feeds     []string              `json:"feeds"`
	Followers []model.FriendEntry   `json:"followers"`
	Following []model.FriendEntry   `json:"following"`
	LikeList  []model.LikeEntry     `json:"likelist"`
	Nicknames []model.NicknameEntry `json:"nicknames"`

	// Version は遷移のたびに1ずつ増える。
	Version uint64 `json:"version"`
}

// Loaded は指定コレクションが一度でも取得済みかを返す。
func (s State) Loaded(c model.Collection) bool {
	switch c {
	case model.CollectionFeed:
		return s.Feeds != nil
	case model.CollectionFollower:
		return s.Followers != nil
	case model.CollectionFollowing:
		return s.Following != nil
	case model.CollectionLikeList:
		return s.LikeList != nil
	case model.CollectionNicknames:
		return s.Nicknames != nil
	default:
		return false
	}
}

// Collection は指定コレクションの現在値を返す。未知のコレクションの場合はnil。
func (s State) Collection(c model.Collection) any {
	switch c {
	case model.CollectionFeed:
		return s.Feeds
	case model.CollectionFollower:
		return s.Followers
	case model.CollectionFollowing:
		return s.Following
	case model.CollectionLikeList:
		return s.LikeList
	case model.CollectionNicknames:
		return s.Nicknames
	default:
		return nil
	}
}

// IsFollowing は現在のfollowing一覧に指定UIDが含まれるかを返す。
// following一覧が未取得の場合はokがfalseになる。
func (s State) IsFollowing(uid string) (following bool, ok bool) {
	if s.Following == nil {
		return false, false
	}
	for _, f := range s.Following {
		if f.UID == uid {
			return true, true
		}
	}
	return false, true
}
