package realtime

import (
	"sync"

	"github.com/hitoshi/zemong/internal/model"
)

// channel は容量1のメールボックスで、常に最新のスナップショットだけを保持する。
type channel struct {
	path string
	out  chan model.Snapshot

	mu      sync.Mutex
	closed  bool
	onClose func(*channel)
}

func newChannel(path string, onClose func(*channel)) *channel {
	return &channel{
		path:    path,
		out:     make(chan model.Snapshot, 1),
		onClose: onClose,
	}
}

func (c *channel) Events() <-chan model.Snapshot {
	return c.out
}

// push は未読の古い値を捨てて最新値を格納する。ブロックしない。
func (c *channel) push(s model.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case <-c.out:
	default:
	}
	c.out <- s
}

func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.out)
	c.mu.Unlock()

	// DB側のロックはチャネルのロックを解放してから取る
	if c.onClose != nil {
		c.onClose(c)
	}
	return nil
}
