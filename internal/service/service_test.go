package service

import (
	"context"
	"errors"
	"sync"

	"github.com/langchou/solarsim/internal/models"
)

// memorySink 内存存储端
type memorySink struct {
	mu        sync.Mutex
	one       []*models.Reading
	batches   [][]*models.Reading
	err       error
	failFor   string        // 仅对该序列号返回错误
	blockMany chan struct{} // 非 nil 时 InsertMany 等待关闭
}

func (s *memorySink) InsertOne(ctx context.Context, reading *models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil || (s.failFor != "" && reading.SerialNumber == s.failFor) {
		return errors.Join(s.err, errors.New("insert rejected"))
	}
	s.one = append(s.one, reading)
	return nil
}

func (s *memorySink) InsertMany(ctx context.Context, readings []*models.Reading) error {
	if s.blockMany != nil {
		<-s.blockMany
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, readings)
	return nil
}

func (s *memorySink) inserted() []*models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Reading(nil), s.one...)
}

func (s *memorySink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type staticUnits struct {
	units []*models.SolarUnit
	err   error
}

func (u *staticUnits) List(ctx context.Context) ([]*models.SolarUnit, error) {
	return u.units, u.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	serials []string
}

func (n *recordingNotifier) BroadcastReading(serialNumber string, reading interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.serials = append(n.serials, serialNumber)
}
