package state

import "github.com/hitoshi/zemong/internal/model"

// Reduce は現在の状態とアクションから次の状態を計算する。
// 引数のStateは変更しない。Payloadの型が一致しないアクションは無視され、
// 状態（Versionを含む）はそのまま返る。
func Reduce(s State, a Action) State {
	next := s

	if a.Owner != "" && isUserCollection(a.Type) && (s.Session == nil || s.Session.ID != a.Owner) {
		// 張り替え前の購読から遅れて届いた更新
		return s
	}

	switch a.Type {
	case UpdateSession:
		id, ok := a.Payload.(*model.Identity)
		if !ok && a.Payload != nil {
			return s
		}
		if !s.Session.SameUser(id) {
			// 別ユーザーのデータを表示し続けないよう、ユーザー単位のコレクションを未取得に戻す
			next.Feeds = nil
			next.Followers = nil
			next.Following = nil
			next.LikeList = nil
		}
		if id != nil {
			copied := *id
			next.Session = &copied
		} else {
			next.Session = nil
		}
	case UpdateHeaderState:
		open, ok := a.Payload.(bool)
		if !ok {
			return s
		}
		next.Layout.HeaderOpen = open
	case UpdateDetailState:
		open, ok := a.Payload.(bool)
		if !ok {
			return s
		}
		next.Layout.DetailOpen = open
	case UpdateFeeds:
		ids, ok := a.Payload.([]string)
		if !ok {
			return s
		}
		next.Feeds = ids
	case UpdateFollower:
		entries, ok := a.Payload.([]model.FriendEntry)
		if !ok {
			return s
		}
		next.Followers = entries
	case UpdateFollowing:
		entries, ok := a.Payload.([]model.FriendEntry)
		if !ok {
			return s
		}
		next.Following = entries
	case UpdateLikeList:
		entries, ok := a.Payload.([]model.LikeEntry)
		if !ok {
			return s
		}
		next.LikeList = entries
	case NicknameServiceUpdate:
		entries, ok := a.Payload.([]model.NicknameEntry)
		if !ok {
			return s
		}
		next.Nicknames = entries
	default:
		return s
	}

	next.Version = s.Version + 1
	return next
}

func isUserCollection(t ActionType) bool {
	switch t {
	case UpdateFeeds, UpdateFollower, UpdateFollowing, UpdateLikeList:
		return true
	}
	return false
}
