package model

import "time"

// DriverValue is one stored driver reading.
type DriverValue struct {
	Id        int64      `json:"id"`
	TimeStamp time.Time  `json:"timestamp"`
	Address   string     `json:"address"`
	Driver    DriverCode `json:"driver"`
	Value     float64    `json:"value"`
	UOM       UOM        `json:"uom"`
}

type DriverValues []DriverValue
