// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, profile, backend, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因エラー（レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeFollowFailed       = "FOLLOW_FAILED"
	ErrCodeUploadFailed       = "UPLOAD_FAILED"
	ErrCodeInvalidImage       = "INVALID_IMAGE"
	ErrCodeImageTooLarge      = "IMAGE_TOO_LARGE"
	ErrCodeEmptyQuote         = "EMPTY_QUOTE"
	ErrCodeSelfFollow         = "SELF_FOLLOW"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeUnknownCollection  = "UNKNOWN_COLLECTION"
	ErrCodeNotFound           = "NOT_FOUND"
)

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidTokenError はIDトークン検証失敗エラーを生成する。
func NewInvalidTokenError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "IDトークンを検証できませんでした。",
		Category: "auth",
		Action:   "ログインし直してください。",
		Err:      err,
	}
}

// NewBackendUnavailableError はバックエンド呼び出し失敗エラーを生成する。
func NewBackendUnavailableError(endpoint string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  fmt.Sprintf("バックエンドの呼び出しに失敗しました: %s", endpoint),
		Category: "backend",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewFollowFailedError はフォロー/フォロー解除の失敗エラーを生成する。
func NewFollowFailedError(attempts int, err error) *APIError {
	return &APIError{
		Code:     ErrCodeFollowFailed,
		Message:  fmt.Sprintf("フォロー状態を変更できませんでした（%d回試行）。", attempts),
		Category: "backend",
		Action:   "フォロー状態は変更されていません。再度お試しください。",
		Err:      err,
	}
}

// NewUploadFailedError はプロフィール画像保存の失敗エラーを生成する。
// プレビューは表示されたままだが、保存は完了していない。
func NewUploadFailedError(stage string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  fmt.Sprintf("プロフィール画像の保存に失敗しました（%s）。", stage),
		Category: "profile",
		Action:   "プレビューは未保存です。もう一度アップロードしてください。",
		Err:      err,
	}
}

// NewInvalidImageError は画像デコード失敗エラーを生成する。
func NewInvalidImageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("画像を読み込めませんでした: %s", reason),
		Category: "validation",
		Action:   "JPEGまたはPNG形式の画像を選択してください。",
	}
}

// NewImageTooLargeError は画像サイズ超過エラーを生成する。
func NewImageTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeImageTooLarge,
		Message:  fmt.Sprintf("画像サイズが上限（%dバイト）を超えています。", limit),
		Category: "validation",
		Action:   "小さい画像を選択してください。",
	}
}

// NewEmptyQuoteError は空のひとことエラーを生成する。
func NewEmptyQuoteError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyQuote,
		Message:  "ひとことが空です。",
		Category: "validation",
		Action:   "自分のひとことを入力してください。",
	}
}

// NewSelfFollowError は自分自身をフォローしようとした場合のエラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFollow,
		Message:  "自分自身はフォローできません。",
		Category: "validation",
		Action:   "他のユーザーのプロフィールから操作してください。",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError(uid string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", uid),
		Category: "profile",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewUnknownCollectionError は未知のコレクション指定エラーを生成する。
func NewUnknownCollectionError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCollection,
		Message:  fmt.Sprintf("未知のコレクションです: %s", name),
		Category: "validation",
		Action:   "feed、follower、following、likelist、nicknames のいずれかを指定してください。",
	}
}

// NewNotFoundError はページやファイルが存在しない場合のエラーを生成する。
func NewNotFoundError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("見つかりません: %s", what),
		Category: "system",
		Action:   "URLを確認してください。",
	}
}
