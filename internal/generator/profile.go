package generator

import "time"

// Season 季节
type Season string

const (
	SeasonSummer Season = "summer"
	SeasonSpring Season = "spring"
	SeasonFall   Season = "fall"
	SeasonWinter Season = "winter"
)

// Profile 季节/时段发电曲线 (阶梯函数，只读配置)
type Profile struct {
	// 季节基准：额定功率 × 间隔时长 的比例
	SeasonFractions map[Season]float64

	DaylightStartHour  int // 含
	DaylightEndHour    int // 含
	PeakStartHour      int
	PeakEndHour        int
	DaylightMultiplier float64
	PeakMultiplier     float64
}

// DefaultProfile 默认曲线
// 季节比例与 300/250/200/150 Wh 的固定基准保持同样的比例关系
func DefaultProfile() Profile {
	return Profile{
		SeasonFractions: map[Season]float64{
			SeasonSummer: 0.06,
			SeasonSpring: 0.05,
			SeasonFall:   0.04,
			SeasonWinter: 0.03,
		},
		DaylightStartHour:  6,
		DaylightEndHour:    18,
		PeakStartHour:      10,
		PeakEndHour:        14,
		DaylightMultiplier: 1.2,
		PeakMultiplier:     1.5,
	}
}

// SeasonOf 按 UTC 月份划分季节
func SeasonOf(month time.Month) Season {
	switch month {
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.September, time.October, time.November:
		return SeasonFall
	default:
		return SeasonWinter
	}
}

// SeasonFraction 季节基准比例
func (p Profile) SeasonFraction(month time.Month) float64 {
	return p.SeasonFractions[SeasonOf(month)]
}

// IsDaylight 是否为白天时段
func (p Profile) IsDaylight(hour int) bool {
	return hour >= p.DaylightStartHour && hour <= p.DaylightEndHour
}

// IsPeak 是否为峰值日照时段
func (p Profile) IsPeak(hour int) bool {
	return hour >= p.PeakStartHour && hour <= p.PeakEndHour
}

// TimeMultiplier 时段系数，夜间为 0
func (p Profile) TimeMultiplier(hour int) float64 {
	switch {
	case !p.IsDaylight(hour):
		return 0
	case p.IsPeak(hour):
		return p.PeakMultiplier
	default:
		return p.DaylightMultiplier
	}
}
