package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/incident-mirror/internal/mirror"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey = "incident-mirror:pass"
	defaultRedisTTL = 10 * time.Minute
)

// Deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Pushes the expiry out only if the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisConfig holds redis lock configuration.
type RedisConfig struct {
	URL string
	Key string
	// TTL bounds how long a crashed holder keeps the lock.
	TTL time.Duration
}

// Redis is a lease stored under a single key. Each acquisition writes a
// fresh token so a holder can only release its own lease.
type Redis struct {
	rdb *redis.Client
	key string
	ttl time.Duration

	mu    sync.Mutex
	token string
}

var (
	_ mirror.Locker        = (*Redis)(nil)
	_ mirror.LeaseExtender = (*Redis)(nil)
)

// NewRedis connects to redis and returns a lock.
func NewRedis(ctx context.Context, config RedisConfig) (*Redis, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolSize = 2

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newRedis(rdb, config), nil
}

func newRedis(rdb *redis.Client, config RedisConfig) *Redis {
	if config.Key == "" {
		config.Key = defaultRedisKey
	}
	if config.TTL <= 0 {
		config.TTL = defaultRedisTTL
	}
	return &Redis{rdb: rdb, key: config.Key, ttl: config.TTL}
}

// TryLock sets the key if it is absent.
func (r *Redis) TryLock(ctx context.Context) (bool, error) {
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire redis lock %s: %w", r.key, err)
	}
	if !ok {
		return false, nil
	}

	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
	return true, nil
}

// Unlock deletes the key if this instance still owns it. A lease that
// expired and was taken over is left alone.
func (r *Redis) Unlock(ctx context.Context) error {
	r.mu.Lock()
	token := r.token
	r.token = ""
	r.mu.Unlock()

	if token == "" {
		return errors.New("redis lock not held")
	}

	deleted, err := unlockScript.Run(ctx, r.rdb, []string{r.key}, token).Int()
	if err != nil {
		return fmt.Errorf("release redis lock %s: %w", r.key, err)
	}
	if deleted == 0 {
		return fmt.Errorf("redis lock %s expired before release", r.key)
	}
	return nil
}

// Extend resets the lease TTL. It fails if the lease expired and was
// taken over, or was never acquired.
func (r *Redis) Extend(ctx context.Context) error {
	r.mu.Lock()
	token := r.token
	r.mu.Unlock()

	if token == "" {
		return errors.New("redis lock not held")
	}

	extended, err := extendScript.Run(ctx, r.rdb, []string{r.key}, token, r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend redis lock %s: %w", r.key, err)
	}
	if extended == 0 {
		return fmt.Errorf("redis lock %s expired before extension", r.key)
	}
	return nil
}

// Close closes the redis connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
