package thresholds

import (
	"fmt"

	"drainwatch/internal/models"
)

// Alert kinds produced by the default threshold table.
const (
	AlertHighSewageLevel = "high_sewage_level"
	AlertHighMethane     = "high_methane"
	AlertLowFlowRate     = "low_flow_rate"
	AlertHighTemperature = "high_temperature"
	AlertLowBattery      = "low_battery"
)

func f(v float64) *float64 { return &v }

// Defaults is the fixed threshold table applied to every device that does
// not carry its own overrides. Sewage, methane and temperature check only a
// maximum; flow and battery check only a minimum.
func Defaults() models.Snapshot {
	return models.Snapshot{
		models.MetricSewageLevel: {
			Max:       f(8),
			AlertType: AlertHighSewageLevel,
			Severity:  models.SeverityCritical,
		},
		models.MetricMethaneLevel: {
			Max:       f(50),
			AlertType: AlertHighMethane,
			Severity:  models.SeverityCritical,
		},
		models.MetricFlowRate: {
			Min:       f(5),
			AlertType: AlertLowFlowRate,
			Severity:  models.SeverityWarning,
		},
		models.MetricTemperature: {
			Max:       f(45),
			AlertType: AlertHighTemperature,
			Severity:  models.SeverityWarning,
		},
		models.MetricBatteryLevel: {
			Min:       f(20),
			AlertType: AlertLowBattery,
			Severity:  models.SeverityWarning,
		},
	}
}

// Evaluate checks one metric value against its configured bounds. A value
// exceeds when it is strictly above a defined max or strictly below a
// defined min; both bounds may be set independently.
func Evaluate(value float64, cfg models.Threshold) (exceeded bool, alertType string, severity models.Severity) {
	if cfg.Max != nil && value > *cfg.Max {
		return true, cfg.AlertType, cfg.Severity
	}
	if cfg.Min != nil && value < *cfg.Min {
		return true, cfg.AlertType, cfg.Severity
	}
	return false, cfg.AlertType, cfg.Severity
}

// Describe renders the operator-facing description for a triggered alert.
// Unknown kinds fall back to a generic message.
func Describe(alertType string, value float64, cfg models.Threshold) string {
	switch alertType {
	case AlertHighSewageLevel:
		return fmt.Sprintf("Sewage level %.2fm exceeds the %.2fm limit", value, *cfg.Max)
	case AlertHighMethane:
		return fmt.Sprintf("Methane concentration %.2fppm exceeds the %.2fppm limit", value, *cfg.Max)
	case AlertLowFlowRate:
		return fmt.Sprintf("Flow rate %.2fL/s is below the %.2fL/s minimum", value, *cfg.Min)
	case AlertHighTemperature:
		return fmt.Sprintf("Temperature %.1f°C exceeds the %.1f°C limit", value, *cfg.Max)
	case AlertLowBattery:
		return fmt.Sprintf("Battery at %.0f%% is below the %.0f%% minimum", value, *cfg.Min)
	default:
		return fmt.Sprintf("Alert triggered: %s", alertType)
	}
}
