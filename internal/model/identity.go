// Package model はドメインモデルを定義する。
package model

// Identity は認証済みユーザーを表す。
// 認証成功時に生成され、サインアウト時に破棄される。
type Identity struct {
	ID          string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// SameUser は2つのIdentityが同一ユーザーを指すかを返す。
// どちらもnilの場合はtrueを返す。
func (i *Identity) SameUser(other *Identity) bool {
	if i == nil || other == nil {
		return i == nil && other == nil
	}
	return i.ID == other.ID
}
