package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps credentials in Redis under "<prefix>:<namespace>:<key>".
// It is meant for shared front-desk terminals where the agent may be restarted on another host.
//
// RedisStore does not own the client unless constructed with NewRedisStoreFromURL.
type RedisStore struct {
	rdb       redis.UniversalClient
	prefix    string
	namespace string
	ttl       time.Duration
	owned     bool
}

// RedisOption configures RedisStore behavior.
type RedisOption func(*RedisStore)

// WithRedisTTL expires every written key after ttl (0 = no expiry).
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore constructs a RedisStore over an existing client.
func NewRedisStore(rdb redis.UniversalClient, prefix, namespace string, opts ...RedisOption) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("credstore: nil redis client")
	}
	s := &RedisStore{
		rdb:       rdb,
		prefix:    strings.TrimSpace(prefix),
		namespace: strings.TrimSpace(namespace),
	}
	if s.prefix == "" {
		s.prefix = "frontdesk"
	}
	if s.namespace == "" {
		s.namespace = "default"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// NewRedisStoreFromURL dials redis://... and returns a store that owns the client.
func NewRedisStoreFromURL(ctx context.Context, url, prefix, namespace string, opts ...RedisOption) (*RedisStore, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("credstore: redis url: %w", err)
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("credstore: redis ping: %w", err)
	}
	s, err := NewRedisStore(rdb, prefix, namespace, opts...)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *RedisStore) redisKey(k Key) string {
	return s.prefix + ":" + s.namespace + ":" + string(k)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key Key) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credstore: redis get: %w", err)
	}
	return v, true, nil
}

// Put implements Store. All values are written in one MULTI/EXEC transaction.
func (s *RedisStore) Put(ctx context.Context, values map[Key]string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range values {
			p.Set(ctx, s.redisKey(k), v, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("credstore: redis put: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	rk := make([]string, 0, len(keys))
	for _, k := range keys {
		rk = append(rk, s.redisKey(k))
	}
	if err := s.rdb.Del(ctx, rk...).Err(); err != nil {
		return fmt.Errorf("credstore: redis del: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if s.owned {
		return s.rdb.Close()
	}
	return nil
}
