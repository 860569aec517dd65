package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineSetKey      = "hkchat:online_users"
	lastSeenKeyPrefix = "hkchat:last_seen:"
)

// RedisMirror publishes presence into Redis so other services can read it
// without talking to the relay.
type RedisMirror struct {
	client *redis.Client
}

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisMirror wraps a connected client.
func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client}
}

func lastSeenKey(userID int64) string {
	return lastSeenKeyPrefix + strconv.FormatInt(userID, 10)
}

// SetOnline implements Persister.
func (m *RedisMirror) SetOnline(ctx context.Context, userID int64) error {
	if err := m.client.SAdd(ctx, onlineSetKey, userID).Err(); err != nil {
		return fmt.Errorf("redis online %d: %w", userID, err)
	}
	return nil
}

// SetOffline implements Persister.
func (m *RedisMirror) SetOffline(ctx context.Context, userID int64, lastSeen time.Time) error {
	pipe := m.client.Pipeline()
	pipe.SRem(ctx, onlineSetKey, userID)
	pipe.Set(ctx, lastSeenKey(userID), lastSeen.UTC().Format(time.RFC3339), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis offline %d: %w", userID, err)
	}
	return nil
}

// IsOnline reads the mirrored online flag.
func (m *RedisMirror) IsOnline(ctx context.Context, userID int64) (bool, error) {
	return m.client.SIsMember(ctx, onlineSetKey, userID).Result()
}

// LastSeen reads the mirrored last-seen time. A zero time means unknown.
func (m *RedisMirror) LastSeen(ctx context.Context, userID int64) (time.Time, error) {
	raw, err := m.client.Get(ctx, lastSeenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}

// Reset clears the online set. The relay calls it at startup since handles
// from a previous process are gone.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.client.Del(ctx, onlineSetKey).Err()
}
