package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis keys
const (
	matchHistoryKey = "arena:history"
	playerStatsKey  = "arena:player_stats"
)

// RedisStore appends JSON records to two Redis lists.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis store ready", zap.String("addr", addr))
	return &RedisStore{client: client, logger: logger}, nil
}

func (s *RedisStore) AppendMatch(ctx context.Context, rec MatchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal match: %w", err)
	}
	if err := s.client.RPush(ctx, matchHistoryKey, data).Err(); err != nil {
		return fmt.Errorf("failed to append match %s: %w", rec.MatchID, err)
	}
	return nil
}

// AppendPlayerStats pushes all lines in one pipeline so a match is never
// half recorded.
func (s *RedisStore) AppendPlayerStats(ctx context.Context, stats []PlayerStats) error {
	if len(stats) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(stats))
	for _, st := range stats {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to marshal player stats: %w", err)
		}
		values = append(values, data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, playerStatsKey, values...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append player stats: %w", err)
	}
	return nil
}

// Matches reads back the recorded history, oldest first.
func (s *RedisStore) Matches(ctx context.Context) ([]MatchRecord, error) {
	raw, err := s.client.LRange(ctx, matchHistoryKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]MatchRecord, 0, len(raw))
	for _, r := range raw {
		var rec MatchRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, fmt.Errorf("corrupt history entry: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
