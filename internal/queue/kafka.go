package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/langchou/solarsim/internal/models"
)

// ReadingMessage Kafka 消息体
type ReadingMessage struct {
	Reading     *models.Reading `json:"reading"`
	PublishedAt time.Time       `json:"published_at"`
}

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReadingProducer 将发电记录发布到 Kafka，按序列号分区
type ReadingProducer struct {
	writer messageWriter
	now    func() time.Time
}

// NewReadingProducer 创建生产者
func NewReadingProducer(brokers []string, topic string) *ReadingProducer {
	return &ReadingProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // 同一序列号落在同一分区，保证时间顺序
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		now: time.Now,
	}
}

// InsertOne 发布单条记录
func (p *ReadingProducer) InsertOne(ctx context.Context, reading *models.Reading) error {
	msg, err := p.message(reading)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// InsertMany 批量发布
func (p *ReadingProducer) InsertMany(ctx context.Context, readings []*models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(readings))
	for _, r := range readings {
		msg, err := p.message(r)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

// Close 关闭生产者
func (p *ReadingProducer) Close() error {
	return p.writer.Close()
}

func (p *ReadingProducer) message(reading *models.Reading) (kafka.Message, error) {
	value, err := json.Marshal(ReadingMessage{Reading: reading, PublishedAt: p.now().UTC()})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode reading: %w", err)
	}
	return kafka.Message{
		Key:   []byte(reading.SerialNumber),
		Value: value,
		Time:  reading.Timestamp,
	}, nil
}
