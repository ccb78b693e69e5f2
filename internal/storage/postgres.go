package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresStore writes match history through gorm.
type PostgresStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewPostgresStore connects, pings and migrates the history tables.
func NewPostgresStore(ctx context.Context, dsn string, log *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&MatchRecord{}, &PlayerStats{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history tables: %w", err)
	}

	log.Info("Postgres store ready")
	return &PostgresStore{db: db, log: log}, nil
}

func (s *PostgresStore) AppendMatch(ctx context.Context, rec MatchRecord) error {
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert match %s: %w", rec.MatchID, err)
	}
	return nil
}

func (s *PostgresStore) AppendPlayerStats(ctx context.Context, stats []PlayerStats) error {
	if len(stats) == 0 {
		return nil
	}
	rows := append([]PlayerStats(nil), stats...)
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert player stats for %s: %w", rows[0].MatchID, err)
	}
	return nil
}

// CountMatches is used by health checks and tests.
func (s *PostgresStore) CountMatches(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&MatchRecord{}).Count(&n).Error
	return n, err
}

// StatsForMatch returns the player lines of one match ordered by placement.
func (s *PostgresStore) StatsForMatch(ctx context.Context, matchID string) ([]PlayerStats, error) {
	var out []PlayerStats
	err := s.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("placement ASC").
		Find(&out).Error
	return out, err
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
