// Package model はドメインモデルを定義する。
package model

// FeedItem はRESTバックエンドが返す投稿。
type FeedItem struct {
	FID  string   `json:"fid"`
	UID  string   `json:"uid,omitempty"`
	Feed FeedBody `json:"feed"`
}

// FeedBody は投稿本文。
type FeedBody struct {
	Context   string `json:"context,omitempty"`
	Image     string `json:"image,omitempty"`
	Like      int    `json:"like"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// RecommendedFriend はおすすめ友達APIのレスポンス要素。
type RecommendedFriend struct {
	UID  string `json:"uid"`
	Data struct {
		Profile FriendProfile `json:"profile"`
	} `json:"data"`
}

// FriendProfile はおすすめ友達のプロフィール。
type FriendProfile struct {
	Image    string `json:"image,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// ProfileField はプロフィールビューを構成する取得単位。
type ProfileField string

const (
	ProfileFieldImage   ProfileField = "image"
	ProfileFieldQuote   ProfileField = "quote"
	ProfileFieldFeed    ProfileField = "feed"
	ProfileFieldFriends ProfileField = "friends"
)

// ProfileView は閲覧中のプロフィールの派生状態。
// 訪問ごとに再計算され、永続化されない。
type ProfileView struct {
	UID          string
	Nickname     string
	Image        string
	Quote        string
	FeedList     []FeedItem
	LikeCount    int
	IsFollowing  bool
	IsOwnProfile bool
	Friends      []RecommendedFriend

	// PostCount は投稿数。FollowerCountとFollowingCountは自分のプロフィールでのみ設定される。
	PostCount      int
	FollowerCount  int
	FollowingCount int

	// ImagePending はプレビュー表示中の画像がまだ永続化されていないことを表す。
	ImagePending bool
	// FollowError は直近のフォロー操作の失敗。成功すると解除される。
	FollowError error

	// FieldErrors は取得に失敗したフィールドとその理由。
	// 失敗したフィールドは未設定のまま表示される。
	FieldErrors map[ProfileField]error
}

// Failed は指定フィールドの取得が失敗したかを返す。
func (v *ProfileView) Failed(field ProfileField) bool {
	_, ok := v.FieldErrors[field]
	return ok
}
