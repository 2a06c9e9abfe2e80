package lock

import "time"

// Defaults for the Redis locker.
const (
	DefaultTTL    = 2 * time.Minute
	DefaultPrefix = "rollcall:lock:"
)

// Option applies a configuration option to the RedisLocker.
type Option func(*RedisLocker)

// WithTTL sets how long a lease survives a crashed holder. Live holders
// extend it with Refresh or KeepAlive.
func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithPrefix sets the key prefix for lock names.
func WithPrefix(prefix string) Option {
	return func(l *RedisLocker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}
