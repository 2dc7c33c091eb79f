package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgeee/community/community"
)

// Redis provides caching in Redis.
type Redis struct {
	cli *redis.Client
	ttl time.Duration
}

var _ community.Cache = (*Redis)(nil)

const (
	profilePrefix = "profiles"
	defaultTTL    = 10 * time.Minute
)

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(cli, defaultTTL), nil
}

// New returns a cache backed by cli. Cached profiles expire after ttl.
func New(cli *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{cli: cli, ttl: ttl}
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

func profileKey(userID string) string {
	return fmt.Sprintf("%s:%s", profilePrefix, userID)
}

// GetProfile returns the cached profile of a user. The boolean is false on a
// cache miss.
func (r *Redis) GetProfile(ctx context.Context, userID string) (community.Profile, bool, error) {
	res := r.cli.HGetAll(ctx, profileKey(userID))
	vals, err := res.Result()
	if err != nil {
		return community.Profile{}, false, fmt.Errorf("hgetall: %w", err)
	}
	if len(vals) == 0 {
		return community.Profile{}, false, nil
	}
	var p profile
	if err := res.Scan(&p); err != nil {
		return community.Profile{}, false, fmt.Errorf("scan: %w", err)
	}
	return p.CommunityProfile(), true, nil
}

// SetProfile caches the profile of a user under profiles:USER_ID.
func (r *Redis) SetProfile(ctx context.Context, p community.Profile) error {
	cached := &profile{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Role:        string(p.Role),
		CachedAt:    time.Now().Unix(),
	}
	key := profileKey(p.ID)

	err := r.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, cached)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("redis set profile: %w", err)
	}
	return nil
}

// DeleteProfile evicts the cached profile of a user.
func (r *Redis) DeleteProfile(ctx context.Context, userID string) error {
	if err := r.cli.Del(ctx, profileKey(userID)).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}
