package postgres

import (
	"context"
	"fmt"

	"histsync/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresClient is one market_history store reachable through gorm.
type PostgresClient struct {
	name string
	DB   *gorm.DB
}

func NewClient(dsn string) (*PostgresClient, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PostgresClient{DB: db}, nil
}

// Open connects to the store described by cfg and applies its pool limits.
func Open(cfg config.PostgresConfig, env string) (*PostgresClient, error) {
	client, err := NewClient(cfg.DSN(env))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	client.name = cfg.Name

	sqlDB, err := client.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to retrieve raw DB: %w", cfg.Name, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return client, nil
}

// Name is the configured label of the store.
func (p *PostgresClient) Name() string {
	if p.name == "" {
		return "postgres"
	}
	return p.name
}

func (p *PostgresClient) IsHealthy(ctx context.Context) bool {
	db, err := p.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (p *PostgresClient) Close() error {
	db, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
