package generator

import (
	"math/rand/v2"
	"sync"
)

// Source 随机数来源，返回 [0,1) 均匀分布
type Source interface {
	Float64() float64
}

// lockedSource 并发安全的 PCG 随机源
type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

// NewSource 使用系统熵初始化随机源
func NewSource() Source {
	return &lockedSource{rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededSource 固定种子的随机源，用于可复现的场景
func NewSeededSource(seed uint64) Source {
	return &lockedSource{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// uniform 返回 [lo, hi) 区间的均匀分布值
func uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}
