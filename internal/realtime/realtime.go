// Package realtime はパス単位で値を保持し、変更をライブチャネルへ配信する
// リアルタイムデータベースを提供する。
//
// 値はJSONの木として扱い、葉（スカラー値）だけを行として保存する。
// あるパスを開いたチャネルには、そのパス自身・祖先・子孫への書き込みのたびに
// 最新のスナップショットが届く。
package realtime

import (
	"context"

	"github.com/hitoshi/zemong/internal/model"
)

// Channel はパスを購読するライブチャネル。
// Eventsは最新値のみを保持し、読み手が遅れた場合は古いスナップショットを破棄する。
type Channel interface {
	Events() <-chan model.Snapshot
	// Close は購読を終了しEventsをクローズする。複数回呼んでも安全。
	Close() error
}

// Database はリアルタイムデータベースのインターフェース。
type Database interface {
	// Open はパスを購読する。最初のイベントとして現在値が届く。
	Open(ctx context.Context, path string) (Channel, error)
	// Get は現在値を1回だけ読み取る。
	Get(ctx context.Context, path string) (model.Snapshot, error)
	// Set はパスの値を置き換える。nilまたは空のオブジェクトは削除を意味する。
	Set(ctx context.Context, path string, value any) error
	Close() error
}
