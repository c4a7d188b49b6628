package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/langchou/solarsim/internal/config"
	"github.com/langchou/solarsim/internal/generator"
	"github.com/langchou/solarsim/internal/logger"
	"github.com/langchou/solarsim/internal/models"
	"github.com/langchou/solarsim/internal/repository"
	"github.com/langchou/solarsim/internal/service"
)

// seed 重建历史数据：删除单元已有记录后在 BACKFILL_START..BACKFILL_END 上回填
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logger.New(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	unitRepo := repository.NewUnitRepository(db)
	readingRepo := repository.NewReadingRepository(db)

	backfill := service.NewBackfillService(logger, generator.NewFromSeed(cfg.RandomSeed), readingRepo)

	for _, desc := range describeWindows(cfg.AnomalyWindows) {
		logger.Info("Anomaly window configured", zap.String("window", desc))
	}

	failed := false
	for _, u := range cfg.Units {
		unit := &models.SolarUnit{
			SerialNumber:   u.SerialNumber,
			RatedCapacityW: u.RatedCapacityW,
			IntervalHours:  cfg.IntervalHours,
		}
		if err := unitRepo.Upsert(ctx, unit); err != nil {
			logger.Fatal("Failed to register solar unit", zap.String("serial_number", u.SerialNumber), zap.Error(err))
		}

		deleted, err := readingRepo.DeleteBySerialNumber(ctx, unit.SerialNumber)
		if err != nil {
			logger.Fatal("Failed to clear energy records", zap.String("serial_number", unit.SerialNumber), zap.Error(err))
		}
		logger.Info("Cleared existing energy records",
			zap.String("serial_number", unit.SerialNumber),
			zap.Int64("deleted", deleted))

		result, err := backfill.Run(ctx, service.BackfillRequest{
			SerialNumber:   unit.SerialNumber,
			RatedCapacityW: unit.RatedCapacityW,
			IntervalHours:  unit.IntervalHours,
			Start:          cfg.BackfillStart,
			End:            cfg.BackfillEnd,
			Windows:        cfg.AnomalyWindows,
		})
		if err != nil {
			generated := 0
			if result != nil {
				generated = result.Generated
			}
			logger.Error("Backfill failed",
				zap.String("serial_number", unit.SerialNumber),
				zap.Int("uncommitted", generated),
				zap.Error(err))
			failed = true
			continue
		}

		logger.Info("Seed completed",
			zap.String("serial_number", unit.SerialNumber),
			zap.Int("records", result.Inserted),
			zap.Int("anomalies", result.AnomalyCounts.Total()),
			zap.Duration("duration", result.Duration))
	}

	if failed {
		logger.Sync()
		os.Exit(1)
	}
}

func describeWindows(windows []models.AnomalyWindow) []string {
	kinds := make([]string, 0, len(windows))
	for _, w := range windows {
		kinds = append(kinds, fmt.Sprintf("%s %s..%s hours=%v", w.Kind,
			w.Start.Format("2006-01-02T15:04Z07:00"), w.End.Format("2006-01-02T15:04Z07:00"), w.Hours))
	}
	return kinds
}
