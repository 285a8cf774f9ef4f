package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "tariffbot:session:"

// RedisOption configures RedisManager.
type RedisOption func(*RedisManager)

// WithRedisTTL sets the key expiration. Zero keeps sessions until cleared.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(m *RedisManager) { m.ttl = ttl }
}

// WithRedisPrefix sets the key prefix for sessions.
func WithRedisPrefix(prefix string) RedisOption {
	return func(m *RedisManager) {
		if prefix != "" {
			m.prefix = prefix
		}
	}
}

// RedisManager keeps one JSON value per user in Redis.
type RedisManager struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// NewRedisManager creates a Manager on top of an existing client.
func NewRedisManager(client *backend.Client, opts ...RedisOption) *RedisManager {
	m := &RedisManager{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *RedisManager) key(userID int64) string {
	return m.prefix + strconv.FormatInt(userID, 10)
}

// Get loads the session for userID.
func (m *RedisManager) Get(ctx context.Context, userID int64) (*Session, error) {
	raw, err := m.client.Get(ctx, m.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return NewSession(userID), nil
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.Answers == nil {
		s.Answers = make(map[string]any)
	}
	s.UserID = userID
	return &s, nil
}

// Save persists the session with the configured TTL.
func (m *RedisManager) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	cp := *s
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := m.client.Set(ctx, m.key(s.UserID), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Clear deletes the user's key.
func (m *RedisManager) Clear(ctx context.Context, userID int64) error {
	if err := m.client.Del(ctx, m.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

// InProgress reports whether a non-idle session is stored. Redis errors count as idle.
func (m *RedisManager) InProgress(ctx context.Context, userID int64) bool {
	s, err := m.Get(ctx, userID)
	return err == nil && !s.Idle()
}

// Count scans the key space under the prefix.
func (m *RedisManager) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := m.client.Scan(ctx, cursor, m.prefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan sessions: %w", err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// Ping checks connectivity.
func (m *RedisManager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (m *RedisManager) Close() error {
	return m.client.Close()
}
