package repository

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/solarsim/internal/models"
)

// valuesRow 按列顺序回填预设值的 pgx.Row
type valuesRow []any

func (r valuesRow) Scan(dest ...any) error {
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r[i]))
	}
	return nil
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int { return &n }

func TestScanReading(t *testing.T) {
	ts := time.Date(2025, time.August, 10, 20, 0, 0, 0, time.FixedZone("CST", 8*3600))

	reading, err := scanReading(valuesRow{
		int64(7), "SU-0001", ts, 55, 2.0,
		strPtr("clear"), intPtr(10), strPtr("OVERPRODUCTION"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), reading.ID)
	assert.Equal(t, time.UTC, reading.Timestamp.Location())
	assert.True(t, reading.Timestamp.Equal(ts))
	require.NotNil(t, reading.WeatherCondition)
	assert.Equal(t, models.WeatherClear, *reading.WeatherCondition)
	require.NotNil(t, reading.InjectedAnomaly)
	assert.Equal(t, models.AnomalyEnergyExceedingThreshold, *reading.InjectedAnomaly)
	assert.Equal(t, 10, *reading.CloudCover)
}

func TestScanReading_NightRow(t *testing.T) {
	reading, err := scanReading(valuesRow{
		int64(8), "SU-0001", time.Date(2025, time.August, 10, 2, 0, 0, 0, time.UTC), 0, 2.0,
		(*string)(nil), (*int)(nil), (*string)(nil),
	})
	require.NoError(t, err)
	assert.Nil(t, reading.WeatherCondition)
	assert.Nil(t, reading.CloudCover)
	assert.False(t, reading.IsAnomalous())
}

func TestScanReading_UnknownStoredValues(t *testing.T) {
	ts := time.Date(2025, time.August, 10, 12, 0, 0, 0, time.UTC)

	_, err := scanReading(valuesRow{int64(9), "SU-0001", ts, 100, 2.0, strPtr("hail"), intPtr(90), (*string)(nil)})
	assert.ErrorContains(t, err, "hail")

	_, err = scanReading(valuesRow{int64(10), "SU-0001", ts, 100, 2.0, (*string)(nil), (*int)(nil), strPtr("SOLAR_FLARE")})
	assert.Error(t, err)
}
