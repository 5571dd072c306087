package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hitoshi/zemong/internal/model"
)

// MemoryDB はプロセス内で完結するDatabase実装。
// 開発用途とテストで使用する。
type MemoryDB struct {
	mu       sync.Mutex
	leaves   map[string]json.RawMessage
	channels map[*channel]struct{}
	closed   bool
}

// NewMemoryDB は空のMemoryDBを生成する。
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		leaves:   make(map[string]json.RawMessage),
		channels: make(map[*channel]struct{}),
	}
}

// Open はパスを購読し、現在値を最初のイベントとして配信する。
func (db *MemoryDB) Open(ctx context.Context, path string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = cleanPath(path)

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}

	ch := newChannel(path, db.remove)
	db.channels[ch] = struct{}{}

	snap, err := build(path, db.leaves)
	if err != nil {
		delete(db.channels, ch)
		return nil, err
	}
	ch.push(snap)
	return ch, nil
}

// Get は現在値を返す。
func (db *MemoryDB) Get(ctx context.Context, path string) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	path = cleanPath(path)

	db.mu.Lock()
	defer db.mu.Unlock()
	return build(path, db.leaves)
}

// Set はパスの値を置き換え、関連するチャネルへ新しいスナップショットを配信する。
func (db *MemoryDB) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = cleanPath(path)

	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	delete(db.leaves, path)
	for k := range db.leaves {
		if isDescendant(k, path) {
			delete(db.leaves, k)
		}
	}
	for _, a := range ancestors(path) {
		delete(db.leaves, a)
	}
	for k, v := range leaves {
		db.leaves[k] = v
	}

	for ch := range db.channels {
		if !related(ch.path, path) {
			continue
		}
		snap, err := build(ch.path, db.leaves)
		if err != nil {
			return err
		}
		ch.push(snap)
	}
	return nil
}

// Close は全チャネルを閉じる。
func (db *MemoryDB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	channels := make([]*channel, 0, len(db.channels))
	for ch := range db.channels {
		channels = append(channels, ch)
	}
	db.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	return nil
}

func (db *MemoryDB) remove(ch *channel) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.channels, ch)
}
