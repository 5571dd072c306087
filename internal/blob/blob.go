// Package blob はプロフィール画像などのバイナリを保存し、取得用URLを発行する。
package blob

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound はオブジェクトが存在しないか、トークンが一致しない場合に返る。
var ErrNotFound = errors.New("blob: object not found")

// Object は保存済みのバイナリ。
type Object struct {
	Path        string
	Data        []byte
	ContentType string
	UpdatedAt   time.Time
}

// Store はバイナリの保存先。
type Store interface {
	// Put はpathにデータを保存する。既存のデータは置き換えられ、取得トークンも更新される。
	Put(ctx context.Context, path string, data []byte, contentType string) error
	// URL はpathの取得用URLを返す。
	URL(ctx context.Context, path string) (string, error)
	// Get はトークンを検証してオブジェクトを返す。
	Get(ctx context.Context, path, token string) (*Object, error)
}

// downloadURL は/blobs/{path}?token=...形式のURLを組み立てる。
func downloadURL(baseURL, path, token string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return baseURL + "/blobs/" + strings.Join(segments, "/") + "?token=" + url.QueryEscape(token)
}
