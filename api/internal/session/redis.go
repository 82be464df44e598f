package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"eye-report/api/internal/report"
)

const (
	DefaultTTL      = 30 * time.Minute
	DefaultLeaseTTL = 5 * time.Minute

	defaultPrefix = "eye-report:session:"
	leasePrefix   = "eye-report:inflight:"
)

// releaseLease deletes the lease only while it still holds our token.
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore shares sessions between bot replicas. Sessions expire after TTL of
// inactivity; a chat lease expires after LeaseTTL if its holder dies.
type RedisStore struct {
	LeaseTTL time.Duration

	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{LeaseTTL: DefaultLeaseTTL, rdb: rdb, ttl: ttl, prefix: defaultPrefix}
}

// Connect parses url and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func (r *RedisStore) Get(ctx context.Context, chatID int64) (*report.Session, error) {
	b, err := r.rdb.Get(ctx, key(r.prefix, chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return report.NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	var s report.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, chatID int64, s *report.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	return r.rdb.Set(ctx, key(r.prefix, chatID), b, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, chatID int64) error {
	return r.rdb.Del(ctx, key(r.prefix, chatID)).Err()
}

// TryLock takes the chat lease with SET NX. The returned unlock releases it
// even when the caller's context is already done.
func (r *RedisStore) TryLock(ctx context.Context, chatID int64) (func(), bool, error) {
	ttl := r.LeaseTTL
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	k := key(leasePrefix, chatID)
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("session lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = releaseLease.Run(ctx, r.rdb, []string{k}, token).Err()
	}
	return unlock, true, nil
}
