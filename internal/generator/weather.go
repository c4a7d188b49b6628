package generator

import (
	"math"

	"github.com/langchou/solarsim/internal/models"
)

// weatherSample 一次天气模拟结果
type weatherSample struct {
	condition  models.WeatherCondition
	cloudCover int
	factor     float64 // 对发电量的缩放
}

// sampleWeather 晴 50% / 多云 30% / 阴 15% / 雨 5%
func sampleWeather(src Source) weatherSample {
	r := src.Float64()
	switch {
	case r < 0.50:
		return weatherSample{condition: models.WeatherClear, cloudCover: cloudCoverBetween(src, 0, 20), factor: 1}
	case r < 0.80:
		return weatherSample{condition: models.WeatherPartlyCloudy, cloudCover: cloudCoverBetween(src, 20, 50), factor: 1}
	case r < 0.95:
		return weatherSample{condition: models.WeatherOvercast, cloudCover: cloudCoverBetween(src, 80, 100), factor: 0.5}
	default:
		return weatherSample{condition: models.WeatherRain, cloudCover: 100, factor: 0.3}
	}
}

func cloudCoverBetween(src Source, lo, hi int) int {
	v := int(math.Round(uniform(src, float64(lo), float64(hi))))
	return min(max(v, lo), hi)
}

func (w weatherSample) apply(r *models.Reading) {
	condition := w.condition
	cover := w.cloudCover
	r.WeatherCondition = &condition
	r.CloudCover = &cover
}
