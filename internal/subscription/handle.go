package subscription

import (
	"sync"

	"github.com/hitoshi/zemong/internal/model"
	"github.com/hitoshi/zemong/internal/realtime"
)

// Handle は1つのライブ購読。Closeを呼ぶまで更新を配信し続ける。
type Handle struct {
	ID         string
	Collection model.Collection
	UID        string
	Path       string

	ch      realtime.Channel
	deliver func(model.Snapshot)
	onClose func()

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newHandle(id string, c model.Collection, uid string, ch realtime.Channel, deliver func(model.Snapshot), onClose func()) *Handle {
	h := &Handle{
		ID:         id,
		Collection: c,
		UID:        uid,
		Path:       c.Path(uid),
		ch:         ch,
		deliver:    deliver,
		onClose:    onClose,
		done:       make(chan struct{}),
	}
	go h.pump()
	return h
}

// pump はロックを持ったままdeliverを呼ぶ。Closeはこの配信が終わるまで返らない。
func (h *Handle) pump() {
	defer close(h.done)
	for snap := range h.ch.Events() {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return
		}
		h.deliver(snap)
		h.mu.Unlock()
	}
}

// Close は購読を終了する。Closeが返った後に更新が配信されることはない。
// nilのHandleや、すでに閉じたHandleに対して呼んでも安全。
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	err := h.ch.Close()
	if h.onClose != nil {
		h.onClose()
	}
	return err
}

// Closed はCloseが呼ばれたかを返す。
func (h *Handle) Closed() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
