package generator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/langchou/solarsim/internal/models"
)

// 记录间隔 (小时)，与 energy_generation_records 的约束一致
const (
	DefaultIntervalHours = 2.0
	MinIntervalHours     = 0.1
	MaxIntervalHours     = 24.0
)

// ErrInvalidConfiguration 额定功率、间隔或异常窗口无效
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Params 生成参数
type Params struct {
	SerialNumber   string
	RatedCapacityW float64
	IntervalHours  float64
	Windows        []models.AnomalyWindow
}

// Validate 校验参数，不做任何隐式修正
func (p Params) Validate() error {
	if !(p.RatedCapacityW > 0) {
		return fmt.Errorf("%w: rated capacity must be positive, got %v", ErrInvalidConfiguration, p.RatedCapacityW)
	}
	if !(p.IntervalHours >= MinIntervalHours && p.IntervalHours <= MaxIntervalHours) {
		return fmt.Errorf("%w: interval hours must be within [%v, %v], got %v",
			ErrInvalidConfiguration, MinIntervalHours, MaxIntervalHours, p.IntervalHours)
	}
	for i, w := range p.Windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("%w: window %d: %v", ErrInvalidConfiguration, i, err)
		}
	}
	return nil
}

// canonical 返回窗口类型规范化后的副本，别名 (OVERPRODUCTION) 与大小写差异在此消除
func (p Params) canonical() Params {
	if len(p.Windows) == 0 {
		return p
	}
	windows := make([]models.AnomalyWindow, len(p.Windows))
	for i, w := range p.Windows {
		if kind, err := models.ParseAnomalyKind(string(w.Kind)); err == nil {
			w.Kind = kind
		}
		windows[i] = w
	}
	p.Windows = windows
	return p
}

// MaxEnergy 该间隔理论最大发电量 (Wh)
func (p Params) MaxEnergy() float64 {
	return p.RatedCapacityW * p.IntervalHours
}

// Generator 发电量生成模型
type Generator struct {
	profile Profile
	src     Source
}

// Option 生成器选项
type Option func(*Generator)

// WithSource 指定随机源
func WithSource(src Source) Option {
	return func(g *Generator) {
		g.src = src
	}
}

// WithProfile 指定季节/时段曲线
func WithProfile(p Profile) Option {
	return func(g *Generator) {
		g.profile = p
	}
}

// New 创建生成器
func New(opts ...Option) *Generator {
	g := &Generator{
		profile: DefaultProfile(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.src == nil {
		g.src = NewSource()
	}
	return g
}

// NewFromSeed seed 为 0 时使用系统熵，否则结果可复现
func NewFromSeed(seed uint64, opts ...Option) *Generator {
	if seed != 0 {
		opts = append([]Option{WithSource(NewSeededSource(seed))}, opts...)
	}
	return New(opts...)
}

// Generate 为单个时间戳生成一条记录
// 冻结值窗口在单次调用中没有上下文，命中时锁存的就是本条记录的值
func (g *Generator) Generate(ts time.Time, p Params) (*models.Reading, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return g.generate(ts.UTC(), p.canonical(), newLatches()), nil
}

// NewSequence 创建一次有序遍历，冻结值按 (序列号, 窗口) 锁存
func (g *Generator) NewSequence(p Params) (*Sequence, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Sequence{gen: g, params: p.canonical(), latches: newLatches()}, nil
}

func (g *Generator) generate(ts time.Time, p Params, latches *latches) *models.Reading {
	hour := ts.Hour()
	base := p.MaxEnergy() * g.profile.SeasonFraction(ts.Month())
	multiplier := g.profile.TimeMultiplier(hour)
	variation := uniform(g.src, 0.8, 1.2)

	energy := base * multiplier * variation
	if multiplier == 0 {
		energy = 0
	}

	reading := &models.Reading{
		SerialNumber:  p.SerialNumber,
		Timestamp:     ts,
		IntervalHours: p.IntervalHours,
	}

	if g.profile.IsDaylight(hour) {
		w := sampleWeather(g.src)
		energy *= w.factor
		w.apply(reading)
	}

	energy = g.overlay(ts, p, base, energy, reading, latches)

	reading.EnergyGenerated = int(math.Max(0, math.Round(energy)))
	return reading
}

// Sequence 一次顺序遍历 (回填)，不可并发使用
type Sequence struct {
	gen     *Generator
	params  Params
	latches *latches
	last    time.Time
}

// Next 生成下一条记录，时间戳必须单调递增
func (s *Sequence) Next(ts time.Time) (*models.Reading, error) {
	ts = ts.UTC()
	if !s.last.IsZero() && !ts.After(s.last) {
		return nil, fmt.Errorf("sequence timestamps must increase: %s after %s", ts.Format(time.RFC3339), s.last.Format(time.RFC3339))
	}
	s.last = ts
	return s.gen.generate(ts, s.params, s.latches), nil
}
