package models

import (
	"errors"
	"time"
)

// Status is the aggregate condition of a device, derived from the alert
// kinds triggered by its most recent committed reading.
type Status string

const (
	StatusNormal         Status = "normal"
	StatusNeedsAttention Status = "needs_attention"
	StatusCritical       Status = "critical"
	StatusOverflowing    Status = "overflowing"
)

// ErrDeviceNotFound is returned when a reading names a device id with no
// corresponding row; the whole ingestion aborts without writing anything.
var ErrDeviceNotFound = errors.New("device not found")

// Location is where a manhole physically sits.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Device is a monitored manhole. Status and LastInspection are written only
// by the ingestion transaction; Thresholds, when non-nil, override the
// default threshold table for this device.
type Device struct {
	ID             string    `json:"deviceId"`
	Name           string    `json:"name,omitempty"`
	Location       Location  `json:"location"`
	Thresholds     Snapshot  `json:"thresholds,omitempty"`
	Status         Status    `json:"status"`
	LastInspection time.Time `json:"lastInspection"`
}
