// Package session は認証状態の保持と認証状態変化の通知を提供する。
package session

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/state"
)

// Dispatcher はアプリケーション状態へのアクション適用インターフェース。
type Dispatcher interface {
	Dispatch(a state.Action)
	State() state.State
}

// ChangeFunc は認証状態の遷移ごとに呼ばれる関数。nilはサインアウトを表す。
type ChangeFunc func(id *model.Identity)

// Store は現在の認証済みユーザーを保持する。
// 外部の認証オブザーバーからObserveが呼ばれるたびに状態を更新し、
// 登録された関数へ遷移を転送する。デバウンスは行わない。
type Store struct {
	app    Dispatcher
	logger *slog.Logger

	mu       sync.Mutex
	onChange []ChangeFunc
}

// NewStore はStoreを生成する。
func NewStore(app Dispatcher, logger *slog.Logger) *Store {
	return &Store{
		app:    app,
		logger: logger,
	}
}

// Current は現在のユーザーを返す。未ログインの場合はnil。
func (s *Store) Current() *model.Identity {
	return s.app.State().Session
}

// OnChange は認証状態の遷移を受け取る関数を登録する。
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Observe は認証オブザーバーのコールバック。
// ログイン時はヘッダーを表示してセッションを更新し、
// ログアウト時はヘッダーを隠してセッションをクリアする。
// 遷移は呼び出し順に直列化され、登録済みの関数に同期的に転送される。
func (s *Store) Observe(id *model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != nil {
		s.logger.Info("auth state changed: signed in", slog.String("user_id", id.ID))
		s.app.Dispatch(state.HeaderStateUpdated(true))
		s.app.Dispatch(state.SessionUpdated(id))
	} else {
		s.logger.Info("auth state changed: signed out")
		s.app.Dispatch(state.HeaderStateUpdated(false))
		s.app.Dispatch(state.SessionUpdated(nil))
	}

	for _, fn := range s.onChange {
		fn(id)
	}
}
