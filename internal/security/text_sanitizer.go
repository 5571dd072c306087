// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はひとことやニックネームなどユーザー入力のテキストから
// HTMLタグを取り除き、プレーンテキストとして保存できる形にする。
// bluemondayのStrictPolicyで全てのタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxRunes はテキストの既定の最大文字数。
const DefaultMaxRunes = 140

// TextSanitizerService はユーザー入力テキストのサニタイズ機能のインターフェース。
type TextSanitizerService interface {
	// Sanitize はタグと制御文字を除去し、前後の空白を詰めたテキストを返す。
	// 最大文字数を超えた部分は切り捨てる。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
type textSanitizer struct {
	policy   *bluemonday.Policy
	maxRunes int
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// maxRunesが0以下の場合はDefaultMaxRunesを使う。
func NewTextSanitizer(maxRunes int) *textSanitizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &textSanitizer{
		policy:   bluemonday.StrictPolicy(),
		maxRunes: maxRunes,
	}
}

// Sanitize はプレーンテキストを返す。
// StrictPolicyはエンティティをエスケープするため、保存前に元に戻す。
// 表示側では常にテキストとしてエスケープして扱うこと。
func (s *textSanitizer) Sanitize(raw string) string {
	text := html.UnescapeString(s.policy.Sanitize(raw))

	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = strings.TrimSpace(text)

	if utf8.RuneCountInString(text) > s.maxRunes {
		text = string([]rune(text)[:s.maxRunes])
		text = strings.TrimSpace(text)
	}
	return text
}
