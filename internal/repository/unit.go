package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/solarsim/internal/models"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// UnitRepository 发电单元仓库
type UnitRepository struct {
	db *DB
}

// NewUnitRepository 创建发电单元仓库
func NewUnitRepository(db *DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// Upsert 创建或更新单元 (按序列号)
func (r *UnitRepository) Upsert(ctx context.Context, unit *models.SolarUnit) error {
	query := `
		INSERT INTO solar_units (serial_number, rated_capacity_w, interval_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (serial_number) DO UPDATE SET
			rated_capacity_w = EXCLUDED.rated_capacity_w,
			interval_hours = EXCLUDED.interval_hours,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := r.db.Pool.QueryRow(ctx, query,
		unit.SerialNumber,
		unit.RatedCapacityW,
		unit.IntervalHours,
		now,
	).Scan(&unit.ID, &unit.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert solar unit: %w", err)
	}

	unit.UpdatedAt = now
	return nil
}

// GetBySerialNumber 通过序列号获取单元
func (r *UnitRepository) GetBySerialNumber(ctx context.Context, serialNumber string) (*models.SolarUnit, error) {
	query := `
		SELECT id, serial_number, rated_capacity_w, interval_hours, created_at, updated_at
		FROM solar_units WHERE serial_number = $1
	`
	unit := &models.SolarUnit{}
	err := r.db.Pool.QueryRow(ctx, query, serialNumber).Scan(
		&unit.ID,
		&unit.SerialNumber,
		&unit.RatedCapacityW,
		&unit.IntervalHours,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get solar unit %s: %w", serialNumber, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get solar unit: %w", err)
	}
	return unit, nil
}

// List 获取所有单元
func (r *UnitRepository) List(ctx context.Context) ([]*models.SolarUnit, error) {
	query := `
		SELECT id, serial_number, rated_capacity_w, interval_hours, created_at, updated_at
		FROM solar_units ORDER BY id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list solar units: %w", err)
	}
	defer rows.Close()

	var units []*models.SolarUnit
	for rows.Next() {
		unit := &models.SolarUnit{}
		err := rows.Scan(
			&unit.ID,
			&unit.SerialNumber,
			&unit.RatedCapacityW,
			&unit.IntervalHours,
			&unit.CreatedAt,
			&unit.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan solar unit: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solar units: %w", err)
	}

	return units, nil
}
