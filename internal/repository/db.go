package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateSolarUnits,
		migrationCreateEnergyGenerationRecords,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

const migrationCreateSolarUnits = `
CREATE TABLE IF NOT EXISTS solar_units (
    id BIGSERIAL PRIMARY KEY,
    serial_number VARCHAR(64) NOT NULL UNIQUE,
    rated_capacity_w DOUBLE PRECISION NOT NULL CHECK (rated_capacity_w > 0),
    interval_hours DOUBLE PRECISION NOT NULL DEFAULT 2 CHECK (interval_hours > 0),
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`

// 记录只追加，不做更新
const migrationCreateEnergyGenerationRecords = `
CREATE TABLE IF NOT EXISTS energy_generation_records (
    id BIGSERIAL PRIMARY KEY,
    serial_number VARCHAR(64) NOT NULL,
    timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    energy_generated INT NOT NULL CHECK (energy_generated >= 0),
    interval_hours DOUBLE PRECISION NOT NULL DEFAULT 2 CHECK (interval_hours >= 0.1 AND interval_hours <= 24),
    weather_condition VARCHAR(20),
    cloud_cover INT CHECK (cloud_cover BETWEEN 0 AND 100),
    injected_anomaly VARCHAR(40)
);
CREATE INDEX IF NOT EXISTS idx_energy_records_serial_ts ON energy_generation_records(serial_number, timestamp);
CREATE INDEX IF NOT EXISTS idx_energy_records_anomaly ON energy_generation_records(injected_anomaly) WHERE injected_anomaly IS NOT NULL;
`
