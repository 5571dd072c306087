package subscription

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/state"
)

// Normalize はスナップショットをコレクションごとのアクションに変換する。
// 値が存在しない場合は空の（nilではない）一覧を返す。
func Normalize(c model.Collection, snap model.Snapshot) (state.Action, error) {
	switch c {
	case model.CollectionFeed:
		refs, err := decodeEntries[model.FeedRef](snap)
		if err != nil {
			return state.Action{}, err
		}
		ids := make([]string, 0, len(refs))
		for i := len(refs) - 1; i >= 0; i-- {
			ids = append(ids, refs[i].FID)
		}
		return state.FeedsUpdated(ids), nil
	case model.CollectionFollower:
		entries, err := decodeEntries[model.FriendEntry](snap)
		if err != nil {
			return state.Action{}, err
		}
		return state.FollowersUpdated(entries), nil
	case model.CollectionFollowing:
		entries, err := decodeEntries[model.FriendEntry](snap)
		if err != nil {
			return state.Action{}, err
		}
		return state.FollowingUpdated(entries), nil
	case model.CollectionLikeList:
		entries, err := decodeEntries[model.LikeEntry](snap)
		if err != nil {
			return state.Action{}, err
		}
		return state.LikeListUpdated(entries), nil
	case model.CollectionNicknames:
		entries, err := decodeEntries[model.NicknameEntry](snap)
		if err != nil {
			return state.Action{}, err
		}
		return state.NicknamesUpdated(entries), nil
	default:
		return state.Action{}, fmt.Errorf("unknown collection: %s", c)
	}
}

// decodeEntries はキーの順に子の値をデコードする。
// プッシュIDは時刻順に採番されるため、キー順は追加順と一致する。
func decodeEntries[T any](snap model.Snapshot) ([]T, error) {
	if !snap.Exists || len(snap.Value) == 0 || string(snap.Value) == "null" {
		return []T{}, nil
	}

	var children map[string]json.RawMessage
	if err := json.Unmarshal(snap.Value, &children); err != nil {
		return nil, fmt.Errorf("snapshot at %q is not an object: %w", snap.Path, err)
	}

	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		var v T
		if err := json.Unmarshal(children[k], &v); err != nil {
			return nil, fmt.Errorf("invalid entry %q at %q: %w", k, snap.Path, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// keyLess は配列由来の数値キーを数値順に、それ以外を辞書順に比較する。
func keyLess(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	return a < b
}
