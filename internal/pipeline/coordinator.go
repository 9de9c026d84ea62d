package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"drainwatch/internal/logger"
	"drainwatch/internal/metrics"
	"drainwatch/internal/models"
	"drainwatch/internal/store"
	"drainwatch/internal/thresholds"
)

// Result is what one successfully committed ingestion produces, and the
// payload shape pushed to realtime subscribers.
type Result struct {
	Reading         models.Reading `json:"reading"`
	Status          models.Status  `json:"status"`
	AlertTypes      []string       `json:"alertTypes"`
	AlertsGenerated int            `json:"alertsGenerated"`
}

// Coordinator turns one decoded telemetry input into one committed reading
// plus its derived alerts and device status update, all inside a single
// transaction. It never leaves a partial write behind.
type Coordinator struct {
	store    store.Store
	defaults models.Snapshot

	// swappable for tests
	now   func() time.Time
	newID func() string
}

func NewCoordinator(st store.Store) *Coordinator {
	return &Coordinator{
		store:    st,
		defaults: thresholds.Defaults(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Process validates the input, evaluates every tracked metric against the
// device's thresholds, and writes reading + alerts + device status as one
// atomic group. Validation runs before any device lookup; an unknown device
// aborts the transaction with nothing written.
func (c *Coordinator) Process(ctx context.Context, in *models.ReadingInput) (*Result, error) {
	if err := in.Validate(); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("validation_error").Inc()
		return nil, err
	}

	reading := in.ToReading(c.now())
	reading.ID = c.newID()

	var (
		alerts []models.Alert
		result Result
	)

	start := time.Now()
	err := c.store.RunAtomic(ctx, func(tx store.Tx) error {
		device, err := tx.GetDevice(ctx, reading.DeviceID)
		if err != nil {
			return err
		}

		snapshot := c.defaults
		if device.Thresholds != nil {
			snapshot = device.Thresholds
		}
		reading.Thresholds = snapshot

		alerts = alerts[:0]
		var alertTypes []string
		for _, metric := range models.TrackedMetrics {
			cfg, ok := snapshot[metric]
			if !ok {
				continue
			}
			value := reading.Metric(metric)
			exceeded, alertType, severity := thresholds.Evaluate(value, cfg)
			if !exceeded {
				continue
			}
			alertTypes = append(alertTypes, alertType)
			alerts = append(alerts, models.Alert{
				ID:          c.newID(),
				DeviceID:    device.ID,
				ReadingID:   reading.ID,
				Type:        alertType,
				Severity:    severity,
				Description: thresholds.Describe(alertType, value, cfg),
				Location:    device.Location,
				Status:      models.AlertStatusActive,
				CreatedAt:   reading.Timestamp,
			})
		}

		status := thresholds.AggregateStatus(alertTypes)
		reading.Status = status
		if len(alertTypes) == 0 {
			reading.AlertTypes = []string{models.AlertTypeNormal}
		} else {
			reading.AlertTypes = alertTypes
		}

		if err := tx.InsertReading(ctx, &reading); err != nil {
			return err
		}
		for i := range alerts {
			if err := tx.InsertAlert(ctx, &alerts[i]); err != nil {
				return err
			}
		}
		if err := tx.UpdateDeviceStatus(ctx, device.ID, status, reading.Timestamp); err != nil {
			return err
		}

		result = Result{
			Reading:         reading,
			Status:          status,
			AlertTypes:      reading.AlertTypes,
			AlertsGenerated: len(alerts),
		}
		return nil
	})
	if err != nil {
		c.observeFailure(err)
		return nil, err
	}

	metrics.CommitDuration.Observe(time.Since(start).Seconds())
	metrics.IngestMessagesTotal.WithLabelValues("committed").Inc()
	metrics.DeviceStatusTransitions.WithLabelValues(string(result.Status)).Inc()
	for _, a := range alerts {
		metrics.AlertsGeneratedTotal.WithLabelValues(a.Type, string(a.Severity)).Inc()
	}

	log := logger.WithDevice("coordinator", reading.DeviceID)
	log.Info().
		Str("reading_id", reading.ID).
		Str("status", string(result.Status)).
		Int("alerts_generated", result.AlertsGenerated).
		Msg("reading committed")

	return &result, nil
}

func (c *Coordinator) observeFailure(err error) {
	switch {
	case models.IsValidationError(err):
		metrics.IngestMessagesTotal.WithLabelValues("validation_error").Inc()
	case errors.Is(err, models.ErrDeviceNotFound):
		metrics.IngestMessagesTotal.WithLabelValues("device_not_found").Inc()
	default:
		metrics.IngestMessagesTotal.WithLabelValues("storage_fault").Inc()
	}
}
