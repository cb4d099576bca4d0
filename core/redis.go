package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const oauthStatePrefix = "oauth_state:"

// ErrUnknownState is returned when a login state was never issued, already
// consumed or expired.
var ErrUnknownState = errors.New("unknown or expired oauth state")

// StateStore keeps pending federated logins between the redirect to the
// provider and its callback. Each state is consumed at most once.
type StateStore interface {
	Save(ctx context.Context, state, payload string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (string, error)
}

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// RedisStateStore implements StateStore using go-redis.
type RedisStateStore struct {
	client redis.Cmdable
}

// NewRedisStateStore wraps a redis client.
func NewRedisStateStore(client redis.Cmdable) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Save records payload under state. An existing state is never overwritten.
func (s *RedisStateStore) Save(ctx context.Context, state, payload string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, oauthStatePrefix+state, payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("oauth state collision")
	}
	return nil
}

// Consume atomically reads and deletes state (GETDEL).
func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrUnknownState
	}
	v, err := s.client.GetDel(ctx, oauthStatePrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnknownState
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// newState returns a random URL-safe nonce.
func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
