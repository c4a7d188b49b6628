package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/solarsim/internal/models"
)

var readingColumns = []string{
	"serial_number",
	"timestamp",
	"energy_generated",
	"interval_hours",
	"weather_condition",
	"cloud_cover",
	"injected_anomaly",
}

// ReadingRepository 发电记录仓库
type ReadingRepository struct {
	db *DB
}

// NewReadingRepository 创建发电记录仓库
func NewReadingRepository(db *DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// InsertOne 写入单条记录
func (r *ReadingRepository) InsertOne(ctx context.Context, reading *models.Reading) error {
	query := `
		INSERT INTO energy_generation_records (serial_number, timestamp, energy_generated, interval_hours, weather_condition, cloud_cover, injected_anomaly)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query, readingValues(reading)...).Scan(&reading.ID)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// InsertMany 批量写入，单条 COPY 语句，要么全部成功要么全部失败
func (r *ReadingRepository) InsertMany(ctx context.Context, readings []*models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	n, err := r.db.Pool.CopyFrom(
		ctx,
		pgx.Identifier{"energy_generation_records"},
		readingColumns,
		pgx.CopyFromSlice(len(readings), func(i int) ([]any, error) {
			return readingValues(readings[i]), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy readings: %w", err)
	}
	if int(n) != len(readings) {
		return fmt.Errorf("copy readings: wrote %d of %d rows", n, len(readings))
	}
	return nil
}

// ListBySerialNumber 按时间升序返回记录，since 非空时只返回 timestamp > since
func (r *ReadingRepository) ListBySerialNumber(ctx context.Context, serialNumber string, since *time.Time) ([]*models.Reading, error) {
	query := `
		SELECT id, serial_number, timestamp, energy_generated, interval_hours, weather_condition, cloud_cover, injected_anomaly
		FROM energy_generation_records
		WHERE serial_number = $1 AND ($2::timestamptz IS NULL OR timestamp > $2)
		ORDER BY timestamp ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, serialNumber, since)
	if err != nil {
		return nil, fmt.Errorf("list readings by serial number: %w", err)
	}
	defer rows.Close()

	readings := make([]*models.Reading, 0)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	return readings, nil
}

// CountAnomalies 按异常类型统计
func (r *ReadingRepository) CountAnomalies(ctx context.Context, serialNumber string) (models.AnomalyCounts, error) {
	query := `
		SELECT injected_anomaly, COUNT(*)
		FROM energy_generation_records
		WHERE serial_number = $1 AND injected_anomaly IS NOT NULL
		GROUP BY injected_anomaly
	`
	rows, err := r.db.Pool.Query(ctx, query, serialNumber)
	if err != nil {
		return nil, fmt.Errorf("count anomalies: %w", err)
	}
	defer rows.Close()

	counts := make(models.AnomalyCounts)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan anomaly count: %w", err)
		}
		counts[models.AnomalyKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomaly counts: %w", err)
	}

	return counts, nil
}

// DeleteBySerialNumber 清空某个单元的记录 (仅供 seed 使用)
func (r *ReadingRepository) DeleteBySerialNumber(ctx context.Context, serialNumber string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM energy_generation_records WHERE serial_number = $1`, serialNumber)
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func readingValues(reading *models.Reading) []any {
	var weather, anomaly *string
	if reading.WeatherCondition != nil {
		w := string(*reading.WeatherCondition)
		weather = &w
	}
	if reading.InjectedAnomaly != nil {
		a := string(*reading.InjectedAnomaly)
		anomaly = &a
	}
	return []any{
		reading.SerialNumber,
		reading.Timestamp.UTC(),
		reading.EnergyGenerated,
		reading.IntervalHours,
		weather,
		reading.CloudCover,
		anomaly,
	}
}

func scanReading(row pgx.Row) (*models.Reading, error) {
	reading := &models.Reading{}
	var weather, anomaly *string
	err := row.Scan(
		&reading.ID,
		&reading.SerialNumber,
		&reading.Timestamp,
		&reading.EnergyGenerated,
		&reading.IntervalHours,
		&weather,
		&reading.CloudCover,
		&anomaly,
	)
	if err != nil {
		return nil, fmt.Errorf("scan reading: %w", err)
	}

	reading.Timestamp = reading.Timestamp.UTC()
	if weather != nil {
		w, err := models.ParseWeatherCondition(*weather)
		if err != nil {
			return nil, fmt.Errorf("scan reading %d: %w", reading.ID, err)
		}
		reading.WeatherCondition = &w
	}
	if anomaly != nil {
		a, err := models.ParseAnomalyKind(*anomaly)
		if err != nil {
			return nil, fmt.Errorf("scan reading %d: %w", reading.ID, err)
		}
		reading.InjectedAnomaly = &a
	}
	return reading, nil
}
