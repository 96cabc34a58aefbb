package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when the lock could not be acquired before the wait deadline.
var ErrLockTimeout = errors.New("lock wait timed out")

// releaseScript deletes the key only while it still holds our token.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica that talks to the same Redis.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// RedisOptions tunes the lock lease and polling.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Wait   time.Duration
	Retry  time.Duration
}

// NewRedisLocker builds a RedisLocker on an existing client.
func NewRedisLocker(client redis.UniversalClient, opts RedisOptions) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		wait:   opts.Wait,
		retry:  opts.Retry,
	}
	if l.prefix == "" {
		l.prefix = "stepcause:lock:"
	}
	if l.ttl <= 0 {
		l.ttl = 30 * time.Second
	}
	if l.wait <= 0 {
		l.wait = 10 * time.Second
	}
	if l.retry <= 0 {
		l.retry = 50 * time.Millisecond
	}
	return l
}

// Lock polls SET NX until the key is free, ctx is done or the wait deadline passes.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock error: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		// Released with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
	}, nil
}
