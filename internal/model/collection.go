// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"fmt"
)

// Collection はライブ購読の対象となるコレクション種別を表す。
type Collection string

const (
	// CollectionFeed はユーザーの投稿ID一覧。
	CollectionFeed Collection = "feed"
	// CollectionFollower はフォロワー一覧。
	CollectionFollower Collection = "follower"
	// CollectionFollowing はフォロー中ユーザー一覧。
	CollectionFollowing Collection = "following"
	// CollectionLikeList はいいねした投稿一覧。
	CollectionLikeList Collection = "likelist"
	// CollectionNicknames は全ユーザー共通のニックネームディレクトリ。
	CollectionNicknames Collection = "nicknames"
)

// UserCollections はユーザーごとに購読するコレクション。
var UserCollections = []Collection{
	CollectionFeed,
	CollectionFollower,
	CollectionFollowing,
	CollectionLikeList,
}

// IsGlobal はユーザーに依存しないコレクションかを返す。
func (c Collection) IsGlobal() bool {
	return c == CollectionNicknames
}

// ParseCollection は名前からコレクションを返す。未知の名前の場合はエラー。
func ParseCollection(name string) (Collection, error) {
	c := Collection(name)
	switch c {
	case CollectionFeed, CollectionFollower, CollectionFollowing, CollectionLikeList, CollectionNicknames:
		return c, nil
	default:
		return "", NewUnknownCollectionError(name)
	}
}

// Path はコレクションのリアルタイムDB上のパスを返す。
// グローバルコレクションの場合uidは無視される。
func (c Collection) Path(uid string) string {
	if c.IsGlobal() {
		return "statics/" + string(c)
	}
	return fmt.Sprintf("users/%s/%s", uid, c)
}

// ProfileImagePath はプロフィール画像URLの保存先パスを返す。
func ProfileImagePath(uid string) string {
	return fmt.Sprintf("users/%s/profile/image", uid)
}

// ProfileQuotePath はひとことの保存先パスを返す。
func ProfileQuotePath(uid string) string {
	return fmt.Sprintf("users/%s/profile/quote", uid)
}

// ProfileBlobPath はプロフィール画像のバイナリ保存先パスを返す。
func ProfileBlobPath(uid string) string {
	return fmt.Sprintf("users/%s/profile.jpg", uid)
}

// Snapshot はライブチャネルから届く1回分の更新イベント。
// Existsがfalseの場合Valueは空で、空コレクションとして扱う。
type Snapshot struct {
	Path   string
	Exists bool
	Value  json.RawMessage
}
