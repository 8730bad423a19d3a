package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only when it still carries our token, so an
// expired holder cannot release a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while the key still carries our token.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// renewTimeout bounds one lease extension round trip.
const renewTimeout = 2 * time.Second

// Redis is a Locker shared by every replica talking to the same server.
// Locks expire after ttl in case the holder dies; a live holder extends the
// lease every ttl/3 until it unlocks, so runs may last longer than ttl.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis wraps client.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return NewRedis(client, ttl), nil
}

// TryLock implements Locker.
func (r *Redis) TryLock(ctx context.Context, key string) (Unlock, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go r.keepAlive(key, token, stop, renewed)

	var once sync.Once
	return func(ctx context.Context) error {
		var uerr error
		once.Do(func() {
			close(stop)
			<-renewed
			n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int64()
			switch {
			case err != nil:
				uerr = fmt.Errorf("redis release: %w", err)
			case n == 0:
				uerr = ErrNotHeld
			}
		})
		return uerr
	}, nil
}

// keepAlive extends the lease on key until stop is closed or the lease is
// found to belong to someone else.
func (r *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := r.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), renewTimeout)
			n, err := renewScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				// Lease lost; Unlock reports ErrNotHeld.
				return
			}
		}
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
