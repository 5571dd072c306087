package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/hitoshi/zemong/internal/model"
)

// ErrViewClosed はクローズ済みのViewを操作した場合に返る。
var ErrViewClosed = errors.New("profile: view closed")

// View は1回のプロフィール訪問に対応する表示状態。
// Closeすると進行中の取得はキャンセルされ、遅れて届いた結果は反映されない。
type View struct {
	agg    *Aggregator
	viewer *model.Identity
	target Target

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	seq     uint64
	current *model.ProfileView
	closed  bool

	// Refreshをまたいで保持する画面側の状態
	preview      string
	imagePending bool
	following    *bool
	followErr    error
}

// Open は訪問ごとのViewを生成する。
func (a *Aggregator) Open(viewer *model.Identity, target Target) *View {
	ctx, cancel := context.WithCancel(context.Background())
	return &View{
		agg:    a,
		viewer: viewer,
		target: target,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Target は表示対象を返す。
func (v *View) Target() Target {
	return v.target
}

// Refresh はプロフィールを取得し直して現在の表示状態を更新する。
// 後から開始したRefreshが先に完了していた場合、古い結果は反映しない。
func (v *View) Refresh(ctx context.Context) (*model.ProfileView, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrViewClosed
	}
	v.seq++
	seq := v.seq
	v.mu.Unlock()

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(v.ctx, cancel)
	defer stop()

	pv, err := v.agg.Load(loadCtx, v.viewer, v.target)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrViewClosed
	}
	if err != nil {
		return nil, err
	}
	// 後から開始したRefreshの結果が反映済みなら古い結果は捨てる
	if seq == v.seq || v.current == nil {
		v.current = pv
		if v.following != nil && pv.IsFollowing == *v.following {
			// ライブ購読のfollowing一覧が操作結果に追いついた
			v.following = nil
		}
	}
	return v.snapshot(), nil
}

// Current は最後に反映された表示状態のコピーを返す。未取得の場合はnil。
func (v *View) Current() *model.ProfileView {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return nil
	}
	return v.snapshot()
}

// SetFollowing はフォロー操作の結果を反映する。errがnilでない場合、
// フォロー状態は変えずにエラーを表示状態に残す。
func (v *View) SetFollowing(following bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.followErr = err
	if err == nil {
		f := following
		v.following = &f
	}
}

// SetImage はプレビュー画像を表示する。pendingは永続化が完了していないことを表す。
func (v *View) SetImage(preview string, pending bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.preview = preview
	v.imagePending = pending
}

// Close は進行中の取得をキャンセルする。複数回呼んでも安全。
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.cancel()
}

// snapshot は画面側の状態を重ねた表示状態のコピーを返す。v.muを保持して呼ぶこと。
func (v *View) snapshot() *model.ProfileView {
	out := *v.current
	if v.preview != "" {
		out.Image = v.preview
	}
	out.ImagePending = v.imagePending
	if v.following != nil && !out.IsOwnProfile {
		out.IsFollowing = *v.following
	}
	out.FollowError = v.followErr
	out.FieldErrors = make(map[model.ProfileField]error, len(v.current.FieldErrors))
	for k, e := range v.current.FieldErrors {
		out.FieldErrors[k] = e
	}
	return &out
}
