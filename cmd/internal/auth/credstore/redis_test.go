package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisStore(t *testing.T) {
	_, rdb := newTestRedis(t)

	s, err := NewRedisStore(rdb, "fdtest", "desk-1")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	exerciseStore(t, s)
}

func TestRedisStore_KeyLayoutAndNamespaces(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	a, _ := NewRedisStore(rdb, "fdtest", "desk-1")
	b, _ := NewRedisStore(rdb, "fdtest", "desk-2")

	if err := a.Put(ctx, map[Key]string{KeyAccessToken: "a-token"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, err := mr.Get("fdtest:desk-1:access_token"); err != nil || got != "a-token" {
		t.Fatalf("raw key=%q err=%v", got, err)
	}
	if _, ok, _ := b.Get(ctx, KeyAccessToken); ok {
		t.Fatalf("namespace desk-2 sees desk-1 credentials")
	}
}

func TestRedisStore_TTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	s, _ := NewRedisStore(rdb, "", "", WithRedisTTL(time.Hour))
	if err := s.Put(ctx, map[Key]string{KeyRefreshToken: "r"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ttl := mr.TTL("frontdesk:default:refresh_token"); ttl != time.Hour {
		t.Fatalf("ttl=%v want=%v", ttl, time.Hour)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := s.Get(ctx, KeyRefreshToken); ok {
		t.Fatalf("expected key to expire")
	}
}

func TestNewRedisStoreFromURL(t *testing.T) {
	mr, _ := newTestRedis(t)

	s, err := NewRedisStoreFromURL(context.Background(), "redis://"+mr.Addr()+"/0", "fdtest", "desk")
	if err != nil {
		t.Fatalf("NewRedisStoreFromURL: %v", err)
	}
	exerciseStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := NewRedisStoreFromURL(context.Background(), "not a url", "", ""); err == nil {
		t.Fatalf("expected url parse error")
	}
}
