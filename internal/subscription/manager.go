// Package subscription はログイン中のユーザーに紐づくライブ購読を管理する。
//
// ユーザーごとの4コレクション（feed, follower, following, likelist）と
// 全体共通のニックネームディレクトリを購読し、
// 受信したスナップショットを正規化してアプリケーション状態へ反映する。
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/realtime"
	"github.com/hitoshi/zemong/internal/state"
)

// observeTimeout は認証状態変化に伴う購読の張り替えに許す時間。
const observeTimeout = 10 * time.Second

// Publisher は正規化したアクションの送り先。
// DispatchはHandleのロックを保持したまま呼ばれるため、ブロックしてはならない。
// 遅いDispatchはHandle.Closeを待たせ、ひいてはBindを止める。
type Publisher interface {
	Dispatch(a state.Action)
}

// MetricsRecorder は購読に関するメトリクス記録のインターフェース。
type MetricsRecorder interface {
	SubscriptionOpened(collection string)
	SubscriptionClosed(collection string)
	RecordSnapshot(collection string, ok bool)
}

// Manager はライブ購読の生成と破棄を管理する。
// 同じ(ユーザー, パス)に対して有効なHandleは常に高々1つ。
// BindはManagerのロックを持ったまま旧Handleを閉じるので、
// storeのリスナーは重い処理を別goroutineへ逃がすこと。
type Manager struct {
	db      realtime.Database
	store   Publisher
	logger  *slog.Logger
	metrics MetricsRecorder

	mu        sync.Mutex
	uid       string
	bound     bool
	handles   map[model.Collection]*Handle
	nicknames *Handle
}

// NewManager はManagerを生成する。metricsはnilでもよい。
func NewManager(db realtime.Database, store Publisher, logger *slog.Logger, metrics MetricsRecorder) *Manager {
	return &Manager{
		db:      db,
		store:   store,
		logger:  logger,
		metrics: metrics,
		handles: make(map[model.Collection]*Handle),
	}
}

// Start はニックネームディレクトリの購読を開始する。2回目以降の呼び出しは何もしない。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nicknames != nil {
		return nil
	}
	h, err := m.open(ctx, model.CollectionNicknames, "")
	if err != nil {
		return err
	}
	m.nicknames = h
	return nil
}

// Bind は購読対象のユーザーを切り替える。
// 前のユーザーの購読をすべて閉じてから新しいユーザーの購読を開く。
// nilを渡すと購読を閉じるだけ。同じユーザーを再度渡した場合は
// 開けていないコレクションだけを開き直す。
func (m *Manager) Bind(ctx context.Context, id *model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != nil && m.bound && m.uid == id.ID {
		return m.openMissing(ctx)
	}

	m.closeUserHandles()
	if id == nil {
		return nil
	}

	m.uid = id.ID
	m.bound = true
	return m.openMissing(ctx)
}

// Observe はセッションの変化を受け取り購読を張り替える。
// session.Store.OnChangeに登録して使う。
func (m *Manager) Observe(id *model.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), observeTimeout)
	defer cancel()

	if err := m.Bind(ctx, id); err != nil {
		m.logger.Error("failed to bind live subscriptions", slog.String("error", err.Error()))
	}
}

func (m *Manager) openMissing(ctx context.Context) error {
	var errs []error
	for _, c := range model.UserCollections {
		if _, ok := m.handles[c]; ok {
			continue
		}
		h, err := m.open(ctx, c, m.uid)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.handles[c] = h
	}
	return errors.Join(errs...)
}

func (m *Manager) closeUserHandles() {
	for c, h := range m.handles {
		if err := h.Close(); err != nil {
			m.logger.Warn("failed to close live subscription",
				slog.String("path", h.Path),
				slog.String("error", err.Error()),
			)
		}
		delete(m.handles, c)
	}
	m.uid = ""
	m.bound = false
}

func (m *Manager) open(ctx context.Context, c model.Collection, uid string) (*Handle, error) {
	path := c.Path(uid)
	ch, err := m.db.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	if m.metrics != nil {
		m.metrics.SubscriptionOpened(string(c))
	}
	m.logger.Debug("live subscription opened",
		slog.String("collection", string(c)),
		slog.String("path", path),
	)

	deliver := func(snap model.Snapshot) {
		a, err := Normalize(c, snap)
		if m.metrics != nil {
			m.metrics.RecordSnapshot(string(c), err == nil)
		}
		if err != nil {
			m.logger.Error("failed to normalize snapshot",
				slog.String("collection", string(c)),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return
		}
		if !c.IsGlobal() {
			a = a.ForUser(uid)
		}
		m.store.Dispatch(a)
	}
	onClose := func() {
		if m.metrics != nil {
			m.metrics.SubscriptionClosed(string(c))
		}
	}

	return newHandle(uuid.NewString(), c, uid, ch, deliver, onClose), nil
}

// Close はニックネームを含む全ての購読を閉じる。
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeUserHandles()
	err := m.nicknames.Close()
	m.nicknames = nil
	return err
}

// Active は開いている購読のパスをソートして返す。
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.handles)+1)
	for _, h := range m.handles {
		paths = append(paths, h.Path)
	}
	if m.nicknames != nil {
		paths = append(paths, m.nicknames.Path)
	}
	sort.Strings(paths)
	return paths
}
