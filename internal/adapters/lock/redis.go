package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// release deletes the key only while it still carries our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extend resets the TTL only while the key still carries our token.
var extend = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisLocker holds locks as Redis keys set with NX and a TTL. Each lease
// carries a random token so only its holder can release it.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client redis.UniversalClient, opts ...Option) *RedisLocker {
	l := &RedisLocker{client: client, ttl: DefaultTTL, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire sets the lock key if absent.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (Lease, error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLease{client: l.client, key: key, token: token, ttl: l.ttl}, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

func (l *redisLease) TTL() time.Duration { return l.ttl }

// Refresh returns ErrNotHeld when the key expired or was taken over.
func (l *redisLease) Refresh(ctx context.Context) error {
	n, err := extend.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release returns ErrNotHeld when the key expired or was taken over.
func (l *redisLease) Release(ctx context.Context) error {
	n, err := release.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
