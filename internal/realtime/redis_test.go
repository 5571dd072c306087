package realtime

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("テスト用Redisに接続できません（スキップ）: %v", err)
	}
	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("FlushDB: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Errorf("escapeGlob = %q", got)
	}
}

func TestRedisDB_SetGetAndNotify(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	r, err := NewRedisDB(ctx, rdb, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRedisDB: %v", err)
	}
	defer r.Close()

	ch, err := r.Open(ctx, "users/u1/follower")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()
	if s := recv(t, ch); s.Exists {
		t.Fatalf("初期値は存在しないはず: %+v", s)
	}

	if err := r.Set(ctx, "users/u1/follower/-a", map[string]string{"uid": "u2"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s := recv(t, ch)
	if string(s.Value) != `{"-a":{"uid":"u2"}}` {
		t.Errorf("Value = %s", s.Value)
	}

	if err := r.Set(ctx, "users/u1/follower", nil); err != nil {
		t.Fatalf("Set nil: %v", err)
	}
	if s := recv(t, ch); s.Exists {
		t.Errorf("削除後はExists=falseになるべき: %+v", s)
	}
}
