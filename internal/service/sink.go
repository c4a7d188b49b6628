package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/langchou/solarsim/internal/models"
)

// ErrSinkWrite 存储端拒绝写入
var ErrSinkWrite = errors.New("sink write failure")

// Sink 发电记录存储端，只追加
type Sink interface {
	InsertOne(ctx context.Context, reading *models.Reading) error
	InsertMany(ctx context.Context, readings []*models.Reading) error
}

// UnitLister 列出已注册的发电单元
type UnitLister interface {
	List(ctx context.Context) ([]*models.SolarUnit, error)
}

// ReadingNotifier 新记录通知 (WebSocket Hub)
type ReadingNotifier interface {
	BroadcastReading(serialNumber string, reading interface{})
}

// TeeSink 主存储 + 尽力而为的镜像 (Kafka)
// 只有主存储的结果决定写入是否成功
type TeeSink struct {
	primary Sink
	mirror  Sink
	logger  *zap.Logger
}

// NewTeeSink 创建 TeeSink，mirror 为 nil 时直接返回 primary
func NewTeeSink(primary, mirror Sink, logger *zap.Logger) Sink {
	if mirror == nil {
		return primary
	}
	return &TeeSink{primary: primary, mirror: mirror, logger: logger}
}

// InsertOne 写入单条
func (t *TeeSink) InsertOne(ctx context.Context, reading *models.Reading) error {
	if err := t.primary.InsertOne(ctx, reading); err != nil {
		return err
	}
	if err := t.mirror.InsertOne(ctx, reading); err != nil {
		t.logger.Warn("Failed to mirror energy record",
			zap.String("serial_number", reading.SerialNumber),
			zap.Error(err))
	}
	return nil
}

// InsertMany 批量写入
func (t *TeeSink) InsertMany(ctx context.Context, readings []*models.Reading) error {
	if err := t.primary.InsertMany(ctx, readings); err != nil {
		return err
	}
	if err := t.mirror.InsertMany(ctx, readings); err != nil {
		t.logger.Warn("Failed to mirror energy records", zap.Int("count", len(readings)), zap.Error(err))
	}
	return nil
}
