// Package storage records completed matches.
//
// The match engine calls a Store once per finalized match and never on the
// tick path. Adapters exist for Postgres (gorm), Redis and process memory.
package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"arena-clash/internal/config"
)

// MatchRecord is one row of match history.
type MatchRecord struct {
	MatchID     string    `gorm:"primaryKey;size:36" json:"matchId"`
	Code        string    `gorm:"size:12;index" json:"code"`
	CreatedBy   string    `gorm:"size:64;index" json:"createdBy"`
	Status      string    `gorm:"size:16" json:"status"`
	PlayerCount int       `json:"playerCount"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

func (MatchRecord) TableName() string { return "match_history" }

// PlayerStats is one player's final line in a completed match.
type PlayerStats struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	MatchID    string `gorm:"size:36;index" json:"matchId"`
	PlayerID   string `gorm:"size:64;index" json:"playerId"`
	UserName   string `gorm:"size:64" json:"userName"`
	Score      int    `json:"score"`
	Kills      int    `json:"kills"`
	SpawnCount int    `json:"spawnCount"`
	Placement  int    `json:"placement"`
}

func (PlayerStats) TableName() string { return "player_stats" }

// Store appends completed-match records.
type Store interface {
	AppendMatch(ctx context.Context, rec MatchRecord) error
	AppendPlayerStats(ctx context.Context, stats []PlayerStats) error
	Close() error
}

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL, logger)
	case config.StoreRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	case config.StoreMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
