package arbiter

import (
	"context"
	"fmt"
	"time"

	"pvp-duel-engine/models"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still carries our token value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis holds move locks in Redis so several engine instances share them.
// Locks carry a TTL so a crashed holder cannot block a player forever.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// NewRedisFromURL builds a client from a redis:// URL and checks connectivity.
func NewRedisFromURL(ctx context.Context, rawURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(rdb, ttl), nil
}

func (r *Redis) TryBeginMove(ctx context.Context, sessionID, userID string) (Token, error) {
	t := newToken(sessionID, userID)
	ok, err := r.rdb.SetNX(ctx, key(sessionID, userID), t.value, r.ttl).Result()
	if err != nil {
		return Token{}, fmt.Errorf("acquire move lock: %w", err)
	}
	if !ok {
		return Token{}, models.ErrBusy
	}
	return t, nil
}

func (r *Redis) EndMove(ctx context.Context, t Token) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{key(t.SessionID, t.UserID)}, t.value).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release move lock: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
