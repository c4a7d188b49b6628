package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AnomalyKind 注入异常类型
type AnomalyKind string

const (
	AnomalyNighttimeGeneration       AnomalyKind = "NIGHTTIME_GENERATION"
	AnomalyZeroGenerationClearSky    AnomalyKind = "ZERO_GENERATION_CLEAR_SKY"
	AnomalyEnergyExceedingThreshold  AnomalyKind = "ENERGY_EXCEEDING_THRESHOLD"
	AnomalyHighGenerationBadWeather  AnomalyKind = "HIGH_GENERATION_BAD_WEATHER"
	AnomalyLowGenerationClearWeather AnomalyKind = "LOW_GENERATION_CLEAR_WEATHER"
	AnomalySuddenProductionDrop      AnomalyKind = "SUDDEN_PRODUCTION_DROP"
	AnomalyErraticOutput             AnomalyKind = "ERRATIC_OUTPUT"
	AnomalyFrozenGeneration          AnomalyKind = "FROZEN_GENERATION"
)

// AnomalyPriority 异常叠加顺序，先命中者生效；冻结值最后检查并覆盖
var AnomalyPriority = []AnomalyKind{
	AnomalyNighttimeGeneration,
	AnomalyZeroGenerationClearSky,
	AnomalyEnergyExceedingThreshold,
	AnomalyHighGenerationBadWeather,
	AnomalyLowGenerationClearWeather,
	AnomalySuddenProductionDrop,
	AnomalyErraticOutput,
	AnomalyFrozenGeneration,
}

// ParseAnomalyKind 解析异常类型，兼容旧名称 OVERPRODUCTION
func ParseAnomalyKind(s string) (AnomalyKind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "OVERPRODUCTION" {
		return AnomalyEnergyExceedingThreshold, nil
	}
	for _, k := range AnomalyPriority {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown anomaly kind %q", s)
}

// AnomalyWindow 异常注入窗口
// Start/End 均为闭区间；Hours 为空表示窗口内每个小时都生效
type AnomalyWindow struct {
	Kind  AnomalyKind `json:"kind"`
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
	Hours []int       `json:"hours,omitempty"`
}

// Contains 时间戳是否落在窗口内
func (w AnomalyWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// MatchesHour 小时谓词
func (w AnomalyWindow) MatchesHour(ts time.Time) bool {
	if len(w.Hours) == 0 {
		return true
	}
	hour := ts.UTC().Hour()
	for _, h := range w.Hours {
		if h == hour {
			return true
		}
	}
	return false
}

// Active 窗口内且小时匹配时才注入
func (w AnomalyWindow) Active(ts time.Time) bool {
	return w.Contains(ts) && w.MatchesHour(ts)
}

// Validate 校验窗口配置
func (w AnomalyWindow) Validate() error {
	if _, err := ParseAnomalyKind(string(w.Kind)); err != nil {
		return err
	}
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.New("anomaly window requires start and end")
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("anomaly window %s ends before it starts", w.Kind)
	}
	for _, h := range w.Hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("anomaly window %s has invalid hour %d", w.Kind, h)
		}
	}
	return nil
}

// UnmarshalJSON 解析时规范化异常类型名称
func (w *AnomalyWindow) UnmarshalJSON(data []byte) error {
	type alias AnomalyWindow
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseAnomalyKind(string(raw.Kind))
	if err != nil {
		return err
	}
	raw.Kind = kind
	raw.Start = raw.Start.UTC()
	raw.End = raw.End.UTC()
	*w = AnomalyWindow(raw)
	return nil
}

// ParseAnomalyWindows 解析 JSON 数组形式的窗口列表并校验
func ParseAnomalyWindows(data []byte) ([]AnomalyWindow, error) {
	var windows []AnomalyWindow
	if err := json.Unmarshal(data, &windows); err != nil {
		return nil, fmt.Errorf("decode anomaly windows: %w", err)
	}
	for i, w := range windows {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("anomaly window %d: %w", i, err)
		}
	}
	return windows, nil
}
