// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"fmt"
)

// FeedRef はfeedコレクションの1エントリ。投稿IDのみを持つ。
type FeedRef struct {
	FID string `json:"fid"`
}

// FriendEntry はfollower/followingコレクションの1エントリ。
// 値がUID文字列のみで保存されている場合も受け付ける。
type FriendEntry struct {
	UID      string `json:"uid"`
	Nickname string `json:"nickname,omitempty"`
	Image    string `json:"image,omitempty"`
}

// UnmarshalJSON は文字列形式とオブジェクト形式の両方をデコードする。
func (e *FriendEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = FriendEntry{UID: s}
		return nil
	}
	type plain FriendEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid friend entry: %w", err)
	}
	*e = FriendEntry(p)
	return nil
}

// LikeEntry はlikelistコレクションの1エントリ。
type LikeEntry struct {
	FID string `json:"fid"`
}

// UnmarshalJSON は文字列形式とオブジェクト形式の両方をデコードする。
func (e *LikeEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = LikeEntry{FID: s}
		return nil
	}
	type plain LikeEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid like entry: %w", err)
	}
	*e = LikeEntry(p)
	return nil
}

// NicknameEntry はニックネームディレクトリの1エントリ。
type NicknameEntry struct {
	Nickname string `json:"nickname"`
	UID      string `json:"uid,omitempty"`
}

// UnmarshalJSON は文字列形式とオブジェクト形式の両方をデコードする。
func (e *NicknameEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = NicknameEntry{Nickname: s}
		return nil
	}
	type plain NicknameEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid nickname entry: %w", err)
	}
	*e = NicknameEntry(p)
	return nil
}
