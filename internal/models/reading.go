package models

import (
	"errors"
	"fmt"
	"time"
)

// Metric names the pipeline evaluates for every reading.
type Metric string

const (
	MetricSewageLevel  Metric = "sewage_level"
	MetricMethaneLevel Metric = "methane_level"
	MetricFlowRate     Metric = "flow_rate"
	MetricTemperature  Metric = "temperature"
	MetricBatteryLevel Metric = "battery_level"
)

// TrackedMetrics lists the metrics checked against thresholds, in a fixed
// order so evaluation and alert output are deterministic.
var TrackedMetrics = []Metric{
	MetricSewageLevel,
	MetricMethaneLevel,
	MetricFlowRate,
	MetricTemperature,
	MetricBatteryLevel,
}

// AlertTypeNormal marks a reading that triggered no alerts.
const AlertTypeNormal = "normal"

// Validation errors. The field sentinels wrap ErrValidation so callers can
// match the family with one errors.Is check.
var (
	ErrValidation         = errors.New("reading validation failed")
	ErrMissingDeviceID    = fmt.Errorf("%w: manholeId is required", ErrValidation)
	ErrMissingSewageLevel = fmt.Errorf("%w: sewageLevel is required", ErrValidation)
	ErrMissingFlowRate    = fmt.Errorf("%w: flowRate is required", ErrValidation)
)

// IsValidationError reports whether err belongs to the validation family.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// ReadingInput is the wire shape of one telemetry message on the broker
// topic. Pointer fields distinguish "absent" from zero so mandatory-field
// validation and defaulting both work off the same struct.
type ReadingInput struct {
	DeviceID     string   `json:"manholeId"`
	SewageLevel  *float64 `json:"sewageLevel"`
	FlowRate     *float64 `json:"flowRate"`
	MethaneLevel *float64 `json:"methaneLevel,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Humidity     *float64 `json:"humidity,omitempty"`
	BatteryLevel *float64 `json:"batteryLevel,omitempty"`
	Timestamp    string   `json:"timestamp,omitempty"`
}

// Validate checks the mandatory fields. Optional metrics are filled in by
// ToReading, not here.
func (in *ReadingInput) Validate() error {
	if in.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if in.SewageLevel == nil {
		return ErrMissingSewageLevel
	}
	if in.FlowRate == nil {
		return ErrMissingFlowRate
	}
	return nil
}

// ToReading converts a validated input into a Reading, applying defaults:
// methane/temperature/humidity 0, battery 100, timestamp now (UTC) when the
// device supplied none or an unparseable one.
func (in *ReadingInput) ToReading(now time.Time) Reading {
	r := Reading{
		DeviceID:     in.DeviceID,
		SewageLevel:  *in.SewageLevel,
		FlowRate:     *in.FlowRate,
		BatteryLevel: 100,
		Timestamp:    now.UTC(),
	}
	if in.MethaneLevel != nil {
		r.MethaneLevel = *in.MethaneLevel
	}
	if in.Temperature != nil {
		r.Temperature = *in.Temperature
	}
	if in.Humidity != nil {
		r.Humidity = *in.Humidity
	}
	if in.BatteryLevel != nil {
		r.BatteryLevel = *in.BatteryLevel
	}
	if in.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, in.Timestamp); err == nil {
			r.Timestamp = ts.UTC()
		}
	}
	return r
}

// Reading is one persisted telemetry sample. Immutable after the commit of
// its transaction; the threshold snapshot records the exact bounds it was
// evaluated against.
type Reading struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"deviceId"`
	SewageLevel  float64   `json:"sewageLevel"`
	FlowRate     float64   `json:"flowRate"`
	MethaneLevel float64   `json:"methaneLevel"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	BatteryLevel float64   `json:"batteryLevel"`
	Thresholds   Snapshot  `json:"thresholds"`
	AlertTypes   []string  `json:"alertTypes"`
	Status       Status    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// Metric returns the reading's value for one tracked metric.
func (r *Reading) Metric(m Metric) float64 {
	switch m {
	case MetricSewageLevel:
		return r.SewageLevel
	case MetricMethaneLevel:
		return r.MethaneLevel
	case MetricFlowRate:
		return r.FlowRate
	case MetricTemperature:
		return r.Temperature
	case MetricBatteryLevel:
		return r.BatteryLevel
	}
	return 0
}

// Snapshot is the per-metric threshold table a reading was evaluated with,
// keyed by metric name.
type Snapshot map[Metric]Threshold

// Threshold is one metric's configured bounds. Nil Max/Min means the bound
// is not checked for that metric.
type Threshold struct {
	Max       *float64 `json:"max,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	AlertType string   `json:"alertType"`
	Severity  Severity `json:"severity"`
}
