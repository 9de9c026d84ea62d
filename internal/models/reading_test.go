package models

import (
	"errors"
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func TestValidateMandatoryFields(t *testing.T) {
	valid := ReadingInput{DeviceID: "MH-001", SewageLevel: f(3.2), FlowRate: f(14)}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	cases := []struct {
		name  string
		input ReadingInput
		want  error
	}{
		{"missing device id", ReadingInput{SewageLevel: f(3.2), FlowRate: f(14)}, ErrMissingDeviceID},
		{"missing sewage level", ReadingInput{DeviceID: "MH-001", FlowRate: f(14)}, ErrMissingSewageLevel},
		{"missing flow rate", ReadingInput{DeviceID: "MH-001", SewageLevel: f(3.2)}, ErrMissingFlowRate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("%v does not wrap ErrValidation", err)
			}
			if !IsValidationError(err) {
				t.Fatalf("%v should be a validation error", err)
			}
		})
	}
}

func TestIsValidationErrorExcludesOtherFailures(t *testing.T) {
	if IsValidationError(ErrDeviceNotFound) {
		t.Fatal("device-not-found is not a validation error")
	}
	if IsValidationError(errors.New("disk I/O error")) {
		t.Fatal("arbitrary errors are not validation errors")
	}
	if IsValidationError(nil) {
		t.Fatal("nil is not a validation error")
	}
}

func TestToReadingAppliesDefaults(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := ReadingInput{DeviceID: "MH-001", SewageLevel: f(3.2), FlowRate: f(14)}

	r := in.ToReading(now)
	if r.MethaneLevel != 0 || r.Temperature != 0 || r.Humidity != 0 {
		t.Fatalf("optional metrics should default to 0: %+v", r)
	}
	if r.BatteryLevel != 100 {
		t.Fatalf("battery level = %v, want default 100", r.BatteryLevel)
	}
	if !r.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want fallback %v", r.Timestamp, now)
	}
}

func TestToReadingKeepsSuppliedValues(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := ReadingInput{
		DeviceID:     "MH-003",
		SewageLevel:  f(8.7),
		FlowRate:     f(12.5),
		MethaneLevel: f(14.2),
		Temperature:  f(29.1),
		Humidity:     f(88),
		BatteryLevel: f(0),
		Timestamp:    "2026-08-30T10:30:00+02:00",
	}

	r := in.ToReading(now)
	if r.MethaneLevel != 14.2 || r.Temperature != 29.1 || r.Humidity != 88 {
		t.Fatalf("supplied metrics mangled: %+v", r)
	}
	if r.BatteryLevel != 0 {
		t.Fatalf("battery level = %v, explicit 0 must not be replaced by the default", r.BatteryLevel)
	}
	want := time.Date(2026, 8, 30, 8, 30, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v normalized to UTC", r.Timestamp, want)
	}
}

func TestToReadingUnparseableTimestampFallsBack(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := ReadingInput{DeviceID: "MH-001", SewageLevel: f(3.2), FlowRate: f(14), Timestamp: "yesterday-ish"}

	r := in.ToReading(now)
	if !r.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want fallback %v", r.Timestamp, now)
	}
}

func TestReadingMetricLookup(t *testing.T) {
	r := Reading{SewageLevel: 1, MethaneLevel: 2, FlowRate: 3, Temperature: 4, BatteryLevel: 5}
	want := map[Metric]float64{
		MetricSewageLevel:  1,
		MetricMethaneLevel: 2,
		MetricFlowRate:     3,
		MetricTemperature:  4,
		MetricBatteryLevel: 5,
	}
	for _, m := range TrackedMetrics {
		if got := r.Metric(m); got != want[m] {
			t.Fatalf("Metric(%s) = %v, want %v", m, got, want[m])
		}
	}
	if got := r.Metric(Metric("humidity")); got != 0 {
		t.Fatalf("untracked metric = %v, want 0", got)
	}
}
