package models

import "time"

// SolarUnit 太阳能发电单元
type SolarUnit struct {
	ID             int64     `json:"id" db:"id"`
	SerialNumber   string    `json:"serial_number" db:"serial_number"`
	RatedCapacityW float64   `json:"rated_capacity_w" db:"rated_capacity_w"`
	IntervalHours  float64   `json:"interval_hours" db:"interval_hours"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
