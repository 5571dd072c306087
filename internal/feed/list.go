// Package feed は投稿一覧に対する集計と並べ替えを提供する。
package feed

import "github.com/hitoshi/zemong/internal/model"

// SumLikes は投稿一覧のいいね数の合計を返す。
func SumLikes(items []model.FeedItem) int {
	total := 0
	for _, it := range items {
		total += it.Feed.Like
	}
	return total
}

// NewestFirst はバックエンドが古い順で返す投稿一覧を新しい順に並べ替えたコピーを返す。
// 入力がnilの場合はnilを返す。
func NewestFirst(items []model.FeedItem) []model.FeedItem {
	if items == nil {
		return nil
	}
	out := make([]model.FeedItem, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return out
}

// Images は画像付きの投稿だけを順序を保って返す。
func Images(items []model.FeedItem) []model.FeedItem {
	out := make([]model.FeedItem, 0, len(items))
	for _, it := range items {
		if it.Feed.Image != "" {
			out = append(out, it)
		}
	}
	return out
}
