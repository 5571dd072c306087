package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/zemong/internal/model"
)

const (
	redisKeyPrefix = "zemong:node:"
	redisChannel   = "zemong:realtime"
	redisScanCount = 100
)

// RedisDB は葉を個別のキーに保存し、PUBLISHで変更を配信するDatabase実装。
type RedisDB struct {
	rdb    *redis.Client
	pubsub *redis.PubSub
	logger *slog.Logger

	mu       sync.Mutex
	channels map[*channel]struct{}
	closed   bool

	fetchMu sync.Mutex
	wg      sync.WaitGroup
}

// NewRedisDB はRedisDBを生成し、変更通知の購読を開始する。
func NewRedisDB(ctx context.Context, rdb *redis.Client, logger *slog.Logger) (*RedisDB, error) {
	ps := rdb.Subscribe(ctx, redisChannel)
	// 購読の確立を待つ
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe %s: %w", redisChannel, err)
	}

	r := &RedisDB{
		rdb:      rdb,
		pubsub:   ps,
		logger:   logger,
		channels: make(map[*channel]struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r, nil
}

func (r *RedisDB) run() {
	defer r.wg.Done()
	for msg := range r.pubsub.Channel() {
		written := cleanPath(msg.Payload)
		r.refresh(written)
	}
}

func (r *RedisDB) refresh(written string) {
	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	r.mu.Lock()
	targets := make([]*channel, 0, len(r.channels))
	for ch := range r.channels {
		if related(ch.path, written) {
			targets = append(targets, ch)
		}
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	for _, ch := range targets {
		snap, err := r.Get(ctx, ch.path)
		if err != nil {
			r.logger.Error("failed to refresh realtime channel",
				slog.String("path", ch.path),
				slog.String("error", err.Error()),
			)
			continue
		}
		ch.push(snap)
	}
}

// Open はパスを購読し、現在値を最初のイベントとして配信する。
func (r *RedisDB) Open(ctx context.Context, path string) (Channel, error) {
	path = cleanPath(path)

	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	ch := newChannel(path, r.remove)
	r.channels[ch] = struct{}{}
	r.mu.Unlock()

	snap, err := r.Get(ctx, path)
	if err != nil {
		r.remove(ch)
		return nil, err
	}
	ch.push(snap)
	return ch, nil
}

// Get はパス自身のキー、なければ子孫のキーから現在値を組み立てる。
func (r *RedisDB) Get(ctx context.Context, path string) (model.Snapshot, error) {
	path = cleanPath(path)

	v, err := r.rdb.Get(ctx, redisKeyPrefix+path).Bytes()
	if err == nil {
		return model.Snapshot{Path: path, Exists: true, Value: v}, nil
	}
	if !errors.Is(err, redis.Nil) {
		return model.Snapshot{}, fmt.Errorf("failed to get %q: %w", path, err)
	}

	keys, err := r.descendantKeys(ctx, path)
	if err != nil {
		return model.Snapshot{}, err
	}
	leaves := make(map[string]json.RawMessage, len(keys))
	if len(keys) > 0 {
		vals, err := r.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("failed to read children of %q: %w", path, err)
		}
		for i, val := range vals {
			s, ok := val.(string)
			if !ok {
				// SCANとMGETの間に削除された
				continue
			}
			leaves[strings.TrimPrefix(keys[i], redisKeyPrefix)] = json.RawMessage(s)
		}
	}
	return build(path, leaves)
}

// Set はパスの部分木をMULTI/EXECで置き換え、同じトランザクション内で変更を通知する。
func (r *RedisDB) Set(ctx context.Context, path string, value any) error {
	path = cleanPath(path)

	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}

	stale, err := r.descendantKeys(ctx, path)
	if err != nil {
		return err
	}
	stale = append(stale, redisKeyPrefix+path)
	for _, a := range ancestors(path) {
		stale = append(stale, redisKeyPrefix+a)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, stale...)
		for k, v := range leaves {
			pipe.Set(ctx, redisKeyPrefix+k, []byte(v), 0)
		}
		pipe.Publish(ctx, redisChannel, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}

func (r *RedisDB) descendantKeys(ctx context.Context, path string) ([]string, error) {
	match := redisKeyPrefix + "*"
	if path != "" {
		match = redisKeyPrefix + escapeGlob(path) + "/*"
	}

	var keys []string
	iter := r.rdb.Scan(ctx, 0, match, redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan children of %q: %w", path, err)
	}
	return keys, nil
}

// Close は購読を停止し、全チャネルを閉じる。*redis.Clientは閉じない。
func (r *RedisDB) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	channels := make([]*channel, 0, len(r.channels))
	for ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	err := r.pubsub.Close()
	r.wg.Wait()

	for _, ch := range channels {
		ch.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to close realtime pubsub: %w", err)
	}
	return nil
}

func (r *RedisDB) remove(ch *channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, ch)
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`).Replace(s)
}
