// Package follow はフォロー/フォロー解除の操作を提供する。
//
// 操作は(ユーザー, 対象)の組ごとに直列化され、失敗時は指数バックオフで再試行する。
// 再試行しても失敗した場合、フォロー状態は変えずにエラーを返す。
package follow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/zemong/internal/model"
)

const (
	defaultMaxAttempts = 3
	defaultRetryBase   = 200 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// Kind は操作の種類。
type Kind string

const (
	KindFollow   Kind = "follow"
	KindUnfollow Kind = "unfollow"
)

// Backend はフォロー操作を送るバックエンド。
type Backend interface {
	Follow(ctx context.Context, uid, fuid string) (string, error)
	Unfollow(ctx context.Context, uid, fuid string) (string, error)
}

// MetricsRecorder は試行回数の記録インターフェース。
type MetricsRecorder interface {
	RecordFollowAttempt(action string, ok bool)
}

// Result は操作の結果。
type Result struct {
	// Following は操作後のフォロー状態。失敗した場合は操作前の値のまま。
	Following bool
	// Message はバックエンドの確認メッセージ。内容は検証しない。
	Message  string
	Attempts int
	// Superseded は同じ組に対する新しい操作が後から要求されたため実行しなかったことを表す。
	Superseded bool
	// Err は失敗時の*model.APIError。
	Err error
}

// OK は操作が成功したかを返す。
func (r Result) OK() bool {
	return r.Err == nil && !r.Superseded
}

// Options はActionの生成オプション。ゼロ値の項目は既定値を使う。
type Options struct {
	MaxAttempts int
	RetryBase   time.Duration
	MaxDelay    time.Duration
}

type pairState struct {
	mu     sync.Mutex
	refs   int
	latest uint64
}

// Action はフォロー操作の実行者。
type Action struct {
	backend     Backend
	logger      *slog.Logger
	metrics     MetricsRecorder
	maxAttempts int
	base        time.Duration
	maxDelay    time.Duration

	// sleep はテストで差し替える。
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	seq   uint64
	pairs map[string]*pairState
}

// NewAction はActionを生成する。metricsはnilでもよい。
func NewAction(backend Backend, logger *slog.Logger, metrics MetricsRecorder, opts Options) *Action {
	a := &Action{
		backend:     backend,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: opts.MaxAttempts,
		base:        opts.RetryBase,
		maxDelay:    opts.MaxDelay,
		sleep:       sleepContext,
		pairs:       make(map[string]*pairState),
	}
	if a.maxAttempts <= 0 {
		a.maxAttempts = defaultMaxAttempts
	}
	if a.base <= 0 {
		a.base = defaultRetryBase
	}
	if a.maxDelay <= 0 {
		a.maxDelay = defaultMaxDelay
	}
	return a
}

// Follow はuidがfuidをフォローする。currentは操作前のフォロー状態。
func (a *Action) Follow(ctx context.Context, uid, fuid string, current bool) Result {
	return a.do(ctx, KindFollow, uid, fuid, current)
}

// Unfollow はuidがfuidのフォローを解除する。currentは操作前のフォロー状態。
func (a *Action) Unfollow(ctx context.Context, uid, fuid string, current bool) Result {
	return a.do(ctx, KindUnfollow, uid, fuid, current)
}

// Backoff はattempt回目の失敗後に待つ時間を返す。
// 初回はbase、以降2倍ずつ増加し、maxDelayで頭打ちになる。
func (a *Action) Backoff(attempt int) time.Duration {
	delay := a.base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > a.maxDelay {
			return a.maxDelay
		}
	}
	if delay > a.maxDelay {
		return a.maxDelay
	}
	return delay
}

func (a *Action) do(ctx context.Context, kind Kind, uid, fuid string, current bool) Result {
	switch {
	case uid == "":
		return Result{Following: current, Err: model.NewUnauthorizedError()}
	case fuid == "":
		return Result{Following: current, Err: model.NewInvalidRequestError("対象ユーザーが指定されていません")}
	case uid == fuid:
		return Result{Following: current, Err: model.NewSelfFollowError()}
	}

	key := uid + "\x00" + fuid
	st, ticket := a.acquire(key)
	defer a.release(key, st)

	if a.superseded(st, ticket) {
		a.logger.Info("follow action superseded",
			slog.String("user_id", uid),
			slog.String("target_user_id", fuid),
			slog.String("action", string(kind)),
		)
		return Result{Following: current, Superseded: true}
	}

	var lastErr error
	attempts := 0
	for attempts < a.maxAttempts {
		attempts++
		msg, err := a.call(ctx, kind, uid, fuid)
		if a.metrics != nil {
			a.metrics.RecordFollowAttempt(string(kind), err == nil)
		}
		if err == nil {
			a.logger.Info("follow state changed",
				slog.String("user_id", uid),
				slog.String("target_user_id", fuid),
				slog.String("action", string(kind)),
				slog.String("msg", msg),
				slog.Int("attempts", attempts),
			)
			return Result{Following: kind == KindFollow, Message: msg, Attempts: attempts}
		}

		lastErr = err
		a.logger.Warn("follow attempt failed",
			slog.String("user_id", uid),
			slog.String("target_user_id", fuid),
			slog.String("action", string(kind)),
			slog.Int("attempt", attempts),
			slog.String("error", err.Error()),
		)
		if !retryable(ctx, err) || attempts >= a.maxAttempts {
			break
		}
		if err := a.sleep(ctx, a.Backoff(attempts)); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	a.logger.Error("follow action failed",
		slog.String("user_id", uid),
		slog.String("target_user_id", fuid),
		slog.String("action", string(kind)),
		slog.Int("attempts", attempts),
		slog.String("error", lastErr.Error()),
	)
	return Result{
		Following: current,
		Attempts:  attempts,
		Err:       model.NewFollowFailedError(attempts, lastErr),
	}
}

func (a *Action) call(ctx context.Context, kind Kind, uid, fuid string) (string, error) {
	if kind == KindFollow {
		return a.backend.Follow(ctx, uid, fuid)
	}
	return a.backend.Unfollow(ctx, uid, fuid)
}

// acquire は組ごとのロックを取得する。到着順の番号を返す。
func (a *Action) acquire(key string) (*pairState, uint64) {
	a.mu.Lock()
	st, ok := a.pairs[key]
	if !ok {
		st = &pairState{}
		a.pairs[key] = st
	}
	st.refs++
	a.seq++
	ticket := a.seq
	st.latest = ticket
	a.mu.Unlock()

	st.mu.Lock()
	return st, ticket
}

func (a *Action) superseded(st *pairState, ticket uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return st.latest != ticket
}

func (a *Action) release(key string, st *pairState) {
	st.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	st.refs--
	if st.refs == 0 {
		delete(a.pairs, key)
	}
}

// retryable は再試行で回復し得るエラーかを返す。
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var p interface{ Permanent() bool }
	if errors.As(err, &p) && p.Permanent() {
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
