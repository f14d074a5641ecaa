package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the key's expiry only while it still holds the caller's token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a lease held under one key with SET NX PX. Holders refresh it
// while their run is active, so LockTTL only bounds how long a crashed
// holder blocks others.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ ports.LeaseGuard = (*Redis)(nil)

// NewRedis connects and verifies reachability.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(client, cfg.LockKey, cfg.LockTTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = "newsdigest:run-lock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// Acquire sets the key to owner unless another owner holds it.
func (r *Redis) Acquire(ctx context.Context, owner string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key, owner, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", r.key, err)
	}
	return ok, nil
}

// Release removes the key when owner still holds it.
func (r *Redis) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key}, owner).Err(); err != nil {
		return fmt.Errorf("redis unlock %s: %w", r.key, err)
	}
	return nil
}

// Refresh extends the lease; false means owner no longer holds it.
func (r *Redis) Refresh(ctx context.Context, owner string) (bool, error) {
	n, err := refreshScript.Run(ctx, r.client, []string{r.key}, owner, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis refresh %s: %w", r.key, err)
	}
	return n == 1, nil
}

// TTL is the lease length set on Acquire and Refresh.
func (r *Redis) TTL() time.Duration {
	return r.ttl
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
