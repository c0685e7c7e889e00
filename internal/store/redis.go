package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdigest/internal/metrics"
	"github.com/eldtechnologies/chatdigest/internal/models"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore handles Redis operations: scope locks and rate-limit counters.
type RedisStore struct {
	client  *redis.Client
	lockTTL time.Duration
	logger  zerolog.Logger
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string, lockTTL time.Duration, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	return &RedisStore{client: client, lockTTL: lockTTL, logger: logger}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// scopeLockKey returns the key guarding summary runs of a scope.
func scopeLockKey(scope models.Scope) string {
	return "summarize:lock:" + scope.String()
}

// TryLockScope claims the run lock of scope for owner. ok is false when
// another owner holds it. The lock expires after the configured TTL so a
// crashed run cannot hold it forever.
func (s *RedisStore) TryLockScope(ctx context.Context, scope models.Scope, owner string) (func(), bool, error) {
	key := scopeLockKey(scope)

	start := time.Now()
	ok, err := s.client.SetNX(ctx, key, owner, s.lockTTL).Result()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The run context may already be cancelled; releasing must still happen.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, s.client, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("scope", scope.String()).Msg("failed to release scope lock")
		}
	}
	return release, true, nil
}

// ScopeLockHolder returns the owner of the scope lock, or "" when free.
func (s *RedisStore) ScopeLockHolder(ctx context.Context, scope models.Scope) (string, error) {
	owner, err := s.client.Get(ctx, scopeLockKey(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return owner, err
}
