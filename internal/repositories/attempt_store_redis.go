package repositories

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "tg:login_attempts:"

// RedisAttemptStore keeps each client's sliding window in a sorted set scored
// by attempt time in milliseconds, so every API instance sees the same history.
type RedisAttemptStore struct {
	client *redis.Client
}

func NewRedisAttemptStore(client *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

// NewRedisClient parses a redis:// URL and pings the server
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// HealthCheck pings the server
func (s *RedisAttemptStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func attemptSetKey(clientID string) string {
	return attemptKeyPrefix + clientID
}

// member encodes "<unix nanos>:<0|1>:<id>" so equal timestamps stay distinct
func member(a models.LoginAttempt) string {
	success := "0"
	if a.Success {
		success = "1"
	}
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	return strconv.FormatInt(a.Timestamp.UnixNano(), 10) + ":" + success + ":" + id
}

func parseMember(clientID, m string) (models.LoginAttempt, error) {
	parts := strings.SplitN(m, ":", 3)
	if len(parts) != 3 {
		return models.LoginAttempt{}, fmt.Errorf("malformed attempt member %q", m)
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return models.LoginAttempt{}, fmt.Errorf("malformed attempt timestamp %q: %w", parts[0], err)
	}
	return models.LoginAttempt{
		ID:        parts[2],
		ClientID:  clientID,
		Timestamp: time.Unix(0, nanos),
		Success:   parts[1] == "1",
	}, nil
}

func cutoffScore(cutoff time.Time) string {
	// exclusive: remove strictly older than cutoff
	return "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
}

// Append prunes, adds and refreshes the key TTL in one MULTI/EXEC
func (s *RedisAttemptStore) Append(ctx context.Context, clientID string, attempt models.LoginAttempt, cutoff time.Time) error {
	key := attemptSetKey(clientID)
	ttl := attempt.Timestamp.Sub(cutoff)
	if ttl < time.Second {
		ttl = time.Second
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoffScore(cutoff))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(attempt.Timestamp.UnixMilli()), Member: member(attempt)})
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending login attempt: %w", err)
	}
	return nil
}

// Recent prunes and returns the window, oldest first
func (s *RedisAttemptStore) Recent(ctx context.Context, clientID string, cutoff time.Time) ([]models.LoginAttempt, error) {
	key := attemptSetKey(clientID)

	var rangeCmd *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoffScore(cutoff))
		rangeCmd = pipe.ZRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading login attempts: %w", err)
	}

	members := rangeCmd.Val()
	attempts := make([]models.LoginAttempt, 0, len(members))
	for _, m := range members {
		a, err := parseMember(clientID, m)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}
