package models

import (
	"fmt"
	"time"
)

// WeatherCondition 模拟天气状况
type WeatherCondition string

const (
	WeatherClear        WeatherCondition = "clear"
	WeatherPartlyCloudy WeatherCondition = "partly_cloudy"
	WeatherOvercast     WeatherCondition = "overcast"
	WeatherRain         WeatherCondition = "rain"
)

// ParseWeatherCondition 解析天气状况
func ParseWeatherCondition(s string) (WeatherCondition, error) {
	switch w := WeatherCondition(s); w {
	case WeatherClear, WeatherPartlyCloudy, WeatherOvercast, WeatherRain:
		return w, nil
	}
	return "", fmt.Errorf("unknown weather condition %q", s)
}

// Reading 发电记录 (一个时间间隔内的模拟遥测数据)
type Reading struct {
	ID               int64             `json:"id" db:"id"`
	SerialNumber     string            `json:"serial_number" db:"serial_number"`
	Timestamp        time.Time         `json:"timestamp" db:"timestamp"`
	EnergyGenerated  int               `json:"energy_generated" db:"energy_generated"` // Wh
	IntervalHours    float64           `json:"interval_hours" db:"interval_hours"`
	WeatherCondition *WeatherCondition `json:"weather_condition,omitempty" db:"weather_condition"` // 仅白天
	CloudCover       *int              `json:"cloud_cover,omitempty" db:"cloud_cover"`             // 0-100 %
	InjectedAnomaly  *AnomalyKind      `json:"injected_anomaly,omitempty" db:"injected_anomaly"`
}

// IsAnomalous 是否为注入的异常记录
func (r *Reading) IsAnomalous() bool {
	return r.InjectedAnomaly != nil
}

// AnomalyCounts 按异常类型统计的数量
type AnomalyCounts map[AnomalyKind]int

// Total 异常总数
func (c AnomalyCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// CountAnomalies 统计一批记录中的异常
func CountAnomalies(readings []*Reading) AnomalyCounts {
	counts := make(AnomalyCounts)
	for _, r := range readings {
		if r.InjectedAnomaly != nil {
			counts[*r.InjectedAnomaly]++
		}
	}
	return counts
}
