package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"drainwatch/internal/models"
)

func f(v float64) *float64 { return &v }

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewRepository(db)
}

func testDevice(id string) *models.Device {
	return &models.Device{
		ID:   id,
		Name: "Pump station access",
		Location: models.Location{
			Latitude:  30.04,
			Longitude: 31.23,
			Address:   "Nile Corniche",
		},
		Status:         models.StatusNormal,
		LastInspection: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func testSnapshot() models.Snapshot {
	return models.Snapshot{
		models.MetricSewageLevel: {Max: f(8), AlertType: "high_sewage_level", Severity: models.SeverityCritical},
		models.MetricFlowRate:    {Min: f(5), AlertType: "low_flow_rate", Severity: models.SeverityWarning},
	}
}

func TestRunAtomicCommitsWholeGroup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertDevice(ctx, testDevice("MH-010")); err != nil {
		t.Fatalf("upsert device: %v", err)
	}

	ts := time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
	reading := models.Reading{
		ID:           "rd-1",
		DeviceID:     "MH-010",
		SewageLevel:  9,
		FlowRate:     10,
		BatteryLevel: 100,
		Thresholds:   testSnapshot(),
		AlertTypes:   []string{"high_sewage_level"},
		Status:       models.StatusOverflowing,
		Timestamp:    ts,
	}
	alert := models.Alert{
		ID:          "al-1",
		DeviceID:    "MH-010",
		ReadingID:   "rd-1",
		Type:        "high_sewage_level",
		Severity:    models.SeverityCritical,
		Description: "Sewage level 9.00m exceeds the 8.00m limit",
		Status:      models.AlertStatusActive,
		CreatedAt:   ts,
	}

	err := repo.RunAtomic(ctx, func(tx Tx) error {
		if _, err := tx.GetDevice(ctx, "MH-010"); err != nil {
			return err
		}
		if err := tx.InsertReading(ctx, &reading); err != nil {
			return err
		}
		if err := tx.InsertAlert(ctx, &alert); err != nil {
			return err
		}
		return tx.UpdateDeviceStatus(ctx, "MH-010", models.StatusOverflowing, ts)
	})
	if err != nil {
		t.Fatalf("RunAtomic: %v", err)
	}

	got, err := repo.GetReading(ctx, "rd-1")
	if err != nil {
		t.Fatalf("get reading: %v", err)
	}
	if got.Status != models.StatusOverflowing {
		t.Fatalf("reading status = %q, want overflowing", got.Status)
	}
	if max := got.Thresholds[models.MetricSewageLevel].Max; max == nil || *max != 8 {
		t.Fatalf("thresholds snapshot max = %v, want 8", max)
	}

	alerts, err := repo.AlertsByReading(ctx, "rd-1")
	if err != nil {
		t.Fatalf("alerts by reading: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != "al-1" {
		t.Fatalf("alerts = %+v, want the one inserted", alerts)
	}

	device, err := repo.GetDevice(ctx, "MH-010")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if device.Status != models.StatusOverflowing || !device.LastInspection.Equal(ts) {
		t.Fatalf("device = %+v, want overflowing at %v", device, ts)
	}
}

func TestRunAtomicRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertDevice(ctx, testDevice("MH-011")); err != nil {
		t.Fatalf("upsert device: %v", err)
	}

	boom := errors.New("injected failure")
	reading := models.Reading{
		ID: "rd-gone", DeviceID: "MH-011", Thresholds: testSnapshot(),
		AlertTypes: []string{"normal"}, Status: models.StatusNormal, Timestamp: time.Now().UTC(),
	}

	err := repo.RunAtomic(ctx, func(tx Tx) error {
		if err := tx.InsertReading(ctx, &reading); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want injected failure", err)
	}

	n, err := repo.CountReadings(ctx, "MH-011")
	if err != nil {
		t.Fatalf("count readings: %v", err)
	}
	if n != 0 {
		t.Fatalf("readings after rollback = %d, want 0", n)
	}

	device, err := repo.GetDevice(ctx, "MH-011")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if device.Status != models.StatusNormal {
		t.Fatalf("device status = %q, want untouched normal", device.Status)
	}
}

// Storage fault injected between the reading insert and the device update:
// the transaction must roll back and surface ErrStorageFault.
func TestRunAtomicStorageFaultMidGroupRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewRepository(db)
	ctx := context.Background()

	ts := time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO readings").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE devices").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	reading := models.Reading{
		ID: "rd-2", DeviceID: "MH-012", Thresholds: testSnapshot(),
		AlertTypes: []string{"normal"}, Status: models.StatusNormal, Timestamp: ts,
	}

	err = repo.RunAtomic(ctx, func(tx Tx) error {
		if err := tx.InsertReading(ctx, &reading); err != nil {
			return err
		}
		return tx.UpdateDeviceStatus(ctx, "MH-012", models.StatusNormal, ts)
	})
	if !errors.Is(err, ErrStorageFault) {
		t.Fatalf("err = %v, want ErrStorageFault", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunAtomicCommitFailureIsStorageFault(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err = repo.RunAtomic(context.Background(), func(Tx) error { return nil })
	if !errors.Is(err, ErrStorageFault) {
		t.Fatalf("err = %v, want ErrStorageFault", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetDevice(context.Background(), "MH-404")
	if !errors.Is(err, models.ErrDeviceNotFound) {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
}

func TestUpdateDeviceStatusUnknownDevice(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.RunAtomic(context.Background(), func(tx Tx) error {
		return tx.UpdateDeviceStatus(context.Background(), "MH-404", models.StatusNormal, time.Now())
	})
	if !errors.Is(err, models.ErrDeviceNotFound) {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
}

func TestAlertLifecycleWrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertDevice(ctx, testDevice("MH-020")); err != nil {
		t.Fatalf("upsert device: %v", err)
	}
	ts := time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
	reading := models.Reading{
		ID: "rd-3", DeviceID: "MH-020", Thresholds: testSnapshot(),
		AlertTypes: []string{"low_flow_rate"}, Status: models.StatusNeedsAttention, Timestamp: ts,
	}
	alert := models.Alert{
		ID: "al-3", DeviceID: "MH-020", ReadingID: "rd-3",
		Type: "low_flow_rate", Severity: models.SeverityWarning,
		Description: "Flow rate 2.00L/s is below the 5.00L/s minimum",
		Status:      models.AlertStatusActive, CreatedAt: ts,
	}
	err := repo.RunAtomic(ctx, func(tx Tx) error {
		if err := tx.InsertReading(ctx, &reading); err != nil {
			return err
		}
		return tx.InsertAlert(ctx, &alert)
	})
	if err != nil {
		t.Fatalf("RunAtomic: %v", err)
	}

	action := models.WorkerAction{
		Worker:    "crew-7",
		Action:    "inspected",
		Notes:     "partial blockage cleared",
		Timestamp: ts.Add(time.Hour),
	}
	if err := repo.AppendAlertAction(ctx, "al-3", action); err != nil {
		t.Fatalf("append action: %v", err)
	}
	if err := repo.ResolveAlert(ctx, "al-3", "flow restored"); err != nil {
		t.Fatalf("resolve alert: %v", err)
	}

	alerts, err := repo.AlertsByReading(ctx, "rd-3")
	if err != nil {
		t.Fatalf("alerts by reading: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	got := alerts[0]
	if got.Status != models.AlertStatusResolved || got.ResolutionNotes != "flow restored" {
		t.Fatalf("alert after resolve = %+v", got)
	}
	if len(got.Actions) != 1 || got.Actions[0].Worker != "crew-7" {
		t.Fatalf("actions = %+v, want the appended one", got.Actions)
	}
}
