package generator

import (
	"math"
	"time"

	"github.com/langchou/solarsim/internal/models"
)

// latches 冻结值锁存，按窗口下标保存
type latches struct {
	values map[int]float64
}

func newLatches() *latches {
	return &latches{values: make(map[int]float64)}
}

// hold 首次命中时锁存 value，之后返回锁存值
func (l *latches) hold(window int, value float64) float64 {
	if v, ok := l.values[window]; ok {
		return v
	}
	l.values[window] = value
	return value
}

func (l *latches) reset(window int) {
	delete(l.values, window)
}

// activeKind 是否有该类型的窗口在 ts 生效
func activeKind(windows []models.AnomalyWindow, kind models.AnomalyKind, ts time.Time) bool {
	for _, w := range windows {
		if w.Kind == kind && w.Active(ts) {
			return true
		}
	}
	return false
}

// overlay 按优先级叠加异常，最多一个标签生效；冻结值最后检查并覆盖
func (g *Generator) overlay(ts time.Time, p Params, base, energy float64, r *models.Reading, l *latches) float64 {
	for _, kind := range models.AnomalyPriority {
		if kind == models.AnomalyFrozenGeneration {
			continue
		}
		if !activeKind(p.Windows, kind, ts) {
			continue
		}
		energy = g.inject(kind, p, base, energy, r)
		tag := kind
		r.InjectedAnomaly = &tag
		break
	}

	frozen := false
	for i, w := range p.Windows {
		if w.Kind != models.AnomalyFrozenGeneration {
			continue
		}
		if !w.Contains(ts) {
			l.reset(i)
			continue
		}
		if frozen || !w.MatchesHour(ts) {
			continue
		}
		energy = l.hold(i, math.Max(0, math.Round(energy)))
		tag := models.AnomalyFrozenGeneration
		r.InjectedAnomaly = &tag
		frozen = true
	}

	return energy
}

func (g *Generator) inject(kind models.AnomalyKind, p Params, base, energy float64, r *models.Reading) float64 {
	peakBase := base * g.profile.PeakMultiplier

	switch kind {
	case models.AnomalyNighttimeGeneration:
		return uniform(g.src, 30, 80)

	case models.AnomalyZeroGenerationClearSky:
		weatherSample{condition: models.WeatherClear, cloudCover: cloudCoverBetween(g.src, 0, 20)}.apply(r)
		return 0

	case models.AnomalyEnergyExceedingThreshold:
		return uniform(g.src, 1.05, 1.20) * p.MaxEnergy()

	case models.AnomalyHighGenerationBadWeather:
		// 雨天却按峰值 80% 发电
		weatherSample{condition: models.WeatherRain, cloudCover: 100}.apply(r)
		return peakBase * 0.8

	case models.AnomalyLowGenerationClearWeather:
		// 晴天却只有峰值 20%
		weatherSample{condition: models.WeatherClear, cloudCover: cloudCoverBetween(g.src, 0, 20)}.apply(r)
		return peakBase * 0.2

	case models.AnomalySuddenProductionDrop:
		return energy * uniform(g.src, 0.05, 0.25)

	case models.AnomalyErraticOutput:
		return energy * uniform(g.src, 0.2, 1.8)
	}

	return energy
}
