package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/petflow/pkg/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the sorted set holding scheduled step messages.
const DefaultRedisKey = "petflow:scheduled_steps"

// RedisStore keeps scheduled messages in a sorted set scored by resume time in unix milliseconds.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}

	return &RedisStore{client: client, key: key}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (s *RedisStore) ScheduleResume(ctx context.Context, msg models.StepMessage, resumeAt time.Time) error {
	value, err := member(msg)
	if err != nil {
		return err
	}

	err = s.client.ZAdd(ctx, s.key, redis.Z{Score: float64(resumeAt.UnixMilli()), Member: value}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule execution %s: %w", msg.ExecutionID, err)
	}

	return nil
}

// Due reads candidates with ZRANGEBYSCORE and claims each with ZREM; only the poller whose ZREM
// removed the member gets the message. Members that fail to decode are dropped and reported
// alongside the decoded batch.
func (s *RedisStore) Due(ctx context.Context, now time.Time, limit int) ([]models.StepMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	candidates, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due steps: %w", err)
	}

	messages := make([]models.StepMessage, 0, len(candidates))

	var skipped error

	for _, candidate := range candidates {
		removed, err := s.client.ZRem(ctx, s.key, candidate).Result()
		if err != nil {
			return messages, fmt.Errorf("failed to claim due step: %w", err)
		}

		if removed == 0 {
			continue
		}

		msg, err := decode(candidate)
		if err != nil {
			skipped = errors.Join(skipped, err)

			continue
		}

		messages = append(messages, msg)
	}

	return messages, skipped
}

// Len returns the number of scheduled messages.
func (s *RedisStore) Len(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, s.key).Result()
}
