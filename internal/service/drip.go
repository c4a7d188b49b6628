package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/solarsim/internal/generator"
)

// DripService 定时为每个发电单元生成一条记录
// 失败只记录日志，不重试，下一次定时仍会触发
type DripService struct {
	logger   *zap.Logger
	gen      *generator.Generator
	units    UnitLister
	sink     Sink
	notifier ReadingNotifier
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewDripService 创建定时生成服务，notifier 可为 nil
func NewDripService(
	logger *zap.Logger,
	gen *generator.Generator,
	units UnitLister,
	sink Sink,
	notifier ReadingNotifier,
	interval time.Duration,
) *DripService {
	return &DripService{
		logger:   logger,
		gen:      gen,
		units:    units,
		sink:     sink,
		notifier: notifier,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start 启动定时循环
func (s *DripService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Info("Drip service already running, skipping start")
		return nil
	}
	if s.interval <= 0 {
		return fmt.Errorf("drip interval must be positive, got %s", s.interval)
	}

	s.stopCh = make(chan struct{})
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Drip service started", zap.Duration("interval", s.interval))
	return nil
}

// Stop 停止服务
func (s *DripService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Drip service stopped")
}

// loop 按间隔对齐触发，例如间隔 2h 时在每个偶数整点触发
func (s *DripService) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := s.now()
		next := nextTick(now, s.interval)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Tick(ctx)
		}
	}
}

func nextTick(now time.Time, interval time.Duration) time.Time {
	return now.UTC().Truncate(interval).Add(interval)
}

// Tick 为所有单元生成并写入一条当前时刻的记录，返回成功写入的数量
func (s *DripService) Tick(ctx context.Context) int {
	units, err := s.units.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list solar units", zap.Error(err))
		return 0
	}

	timestamp := s.now().UTC().Truncate(time.Second)
	stored := 0

	for _, unit := range units {
		reading, err := s.gen.Generate(timestamp, generator.Params{
			SerialNumber:   unit.SerialNumber,
			RatedCapacityW: unit.RatedCapacityW,
			IntervalHours:  unit.IntervalHours,
		})
		if err != nil {
			s.logger.Error("Invalid solar unit configuration",
				zap.String("serial_number", unit.SerialNumber),
				zap.Error(err))
			continue
		}

		if err := s.sink.InsertOne(ctx, reading); err != nil {
			s.logger.Error("Failed to generate energy record",
				zap.String("serial_number", unit.SerialNumber),
				zap.Time("timestamp", timestamp),
				zap.Error(fmt.Errorf("%w: %w", ErrSinkWrite, err)))
			continue
		}

		stored++
		s.logger.Info("Generated energy record",
			zap.String("serial_number", reading.SerialNumber),
			zap.Time("timestamp", reading.Timestamp),
			zap.Int("energy_wh", reading.EnergyGenerated))

		if s.notifier != nil {
			s.notifier.BroadcastReading(reading.SerialNumber, reading)
		}
	}

	return stored
}
