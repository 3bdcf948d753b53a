package secondfactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix namespaces session note hashes in Redis.
const sessionKeyPrefix = "duomfa:session:"

// defaultSessionTTL bounds how long abandoned challenges linger. Refreshed on
// every write.
const defaultSessionTTL = 30 * time.Minute

// RedisSessionRepository implements SessionRepository on a Redis hash per
// session, for deployments with more than one instance behind a balancer.
type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption is a function that configures a RedisSessionRepository
type RedisOption func(*RedisSessionRepository)

// WithSessionTTL overrides the session expiration applied on writes
func WithSessionTTL(ttl time.Duration) RedisOption {
	return func(r *RedisSessionRepository) {
		r.ttl = ttl
	}
}

// NewRedisSessionRepository creates a Redis-backed session repository
func NewRedisSessionRepository(client *redis.Client, opts ...RedisOption) *RedisSessionRepository {
	repository := &RedisSessionRepository{
		client: client,
		ttl:    defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(repository)
	}
	return repository
}

func (r *RedisSessionRepository) GetNote(ctx context.Context, sessionID, name string) (string, error) {
	value, err := r.client.HGet(ctx, sessionKeyPrefix+sessionID, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session note: %w", err)
	}
	return value, nil
}

func (r *RedisSessionRepository) SetNote(ctx context.Context, sessionID, name, value string) error {
	key := sessionKeyPrefix + sessionID
	if err := r.client.HSet(ctx, key, name, value).Err(); err != nil {
		return fmt.Errorf("failed to set session note: %w", err)
	}
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh session expiration: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
