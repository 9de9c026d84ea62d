package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"drainwatch/internal/models"
)

// Repository is the sqlite-backed Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RunAtomic runs fn inside one transaction. fn errors roll everything back
// and pass through untouched; driver errors come back wrapped in
// ErrStorageFault.
func (r *Repository) RunAtomic(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorageFault, err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorageFault, err)
	}
	return nil
}

// VerifyConn checks the database is still reachable and writable.
func (r *Repository) VerifyConn(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// sqlTx adapts a *sql.Tx to the Tx write surface.
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return scanDevice(t.tx.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, address, thresholds_json, status, last_inspection
		 FROM devices WHERE id = ?`, id))
}

func (t *sqlTx) InsertReading(ctx context.Context, reading *models.Reading) error {
	thresholdsJSON, err := json.Marshal(reading.Thresholds)
	if err != nil {
		return fmt.Errorf("%w: marshal thresholds: %v", ErrStorageFault, err)
	}
	typesJSON, err := json.Marshal(reading.AlertTypes)
	if err != nil {
		return fmt.Errorf("%w: marshal alert types: %v", ErrStorageFault, err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO readings (id, device_id, sewage_level, flow_rate, methane_level, temperature, humidity, battery_level, thresholds_json, alert_types_json, status, ts)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		reading.ID, reading.DeviceID, reading.SewageLevel, reading.FlowRate,
		reading.MethaneLevel, reading.Temperature, reading.Humidity, reading.BatteryLevel,
		string(thresholdsJSON), string(typesJSON), string(reading.Status), reading.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("%w: insert reading: %v", ErrStorageFault, err)
	}
	return nil
}

func (t *sqlTx) InsertAlert(ctx context.Context, alert *models.Alert) error {
	actionsJSON, err := json.Marshal(alert.Actions)
	if err != nil {
		return fmt.Errorf("%w: marshal actions: %v", ErrStorageFault, err)
	}
	if alert.Actions == nil {
		actionsJSON = []byte("[]")
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO alerts (id, device_id, reading_id, type, severity, description, latitude, longitude, address, status, resolution_notes, actions_json, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		alert.ID, alert.DeviceID, alert.ReadingID, alert.Type, string(alert.Severity),
		alert.Description, alert.Location.Latitude, alert.Location.Longitude, alert.Location.Address,
		alert.Status, alert.ResolutionNotes, string(actionsJSON), alert.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: insert alert: %v", ErrStorageFault, err)
	}
	return nil
}

func (t *sqlTx) UpdateDeviceStatus(ctx context.Context, id string, status models.Status, lastInspection time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE devices SET status = ?, last_inspection = ? WHERE id = ?`,
		string(status), lastInspection.UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: update device: %v", ErrStorageFault, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrDeviceNotFound
	}
	return nil
}

// GetDevice reads a device outside any ingestion transaction.
func (r *Repository) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return scanDevice(r.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, address, thresholds_json, status, last_inspection
		 FROM devices WHERE id = ?`, id))
}

// UpsertDevice creates or replaces a device row. Used by seeding and the
// external CRUD surface; never called from the ingestion path.
func (r *Repository) UpsertDevice(ctx context.Context, d *models.Device) error {
	var thresholdsJSON any
	if d.Thresholds != nil {
		b, err := json.Marshal(d.Thresholds)
		if err != nil {
			return fmt.Errorf("marshal thresholds: %w", err)
		}
		thresholdsJSON = string(b)
	}
	status := d.Status
	if status == "" {
		status = models.StatusNormal
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, name, latitude, longitude, address, thresholds_json, status, last_inspection)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			address = excluded.address,
			thresholds_json = excluded.thresholds_json`,
		d.ID, d.Name, d.Location.Latitude, d.Location.Longitude, d.Location.Address,
		thresholdsJSON, string(status), d.LastInspection.UTC())
	return err
}

// CountDevices reports how many devices are registered.
func (r *Repository) CountDevices(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n)
	return n, err
}

// GetReading fetches one committed reading by id.
func (r *Repository) GetReading(ctx context.Context, id string) (*models.Reading, error) {
	var (
		reading        models.Reading
		thresholdsJSON string
		typesJSON      string
		status         string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, device_id, sewage_level, flow_rate, methane_level, temperature, humidity, battery_level, thresholds_json, alert_types_json, status, ts
		 FROM readings WHERE id = ?`, id).
		Scan(&reading.ID, &reading.DeviceID, &reading.SewageLevel, &reading.FlowRate,
			&reading.MethaneLevel, &reading.Temperature, &reading.Humidity, &reading.BatteryLevel,
			&thresholdsJSON, &typesJSON, &status, &reading.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(thresholdsJSON), &reading.Thresholds); err != nil {
		return nil, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	if err := json.Unmarshal([]byte(typesJSON), &reading.AlertTypes); err != nil {
		return nil, fmt.Errorf("unmarshal alert types: %w", err)
	}
	reading.Status = models.Status(status)
	return &reading, nil
}

// CountReadings reports committed readings, optionally scoped to a device
// (empty id counts all).
func (r *Repository) CountReadings(ctx context.Context, deviceID string) (int, error) {
	var n int
	var err error
	if deviceID == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE device_id = ?`, deviceID).Scan(&n)
	}
	return n, err
}

// AlertsByReading returns the alerts a reading generated, oldest first.
func (r *Repository) AlertsByReading(ctx context.Context, readingID string) ([]models.Alert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, reading_id, type, severity, description, latitude, longitude, address, status, resolution_notes, actions_json, created_at
		 FROM alerts WHERE reading_id = ? ORDER BY created_at ASC, type ASC`, readingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var (
			a           models.Alert
			severity    string
			actionsJSON string
		)
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.ReadingID, &a.Type, &severity, &a.Description,
			&a.Location.Latitude, &a.Location.Longitude, &a.Location.Address,
			&a.Status, &a.ResolutionNotes, &actionsJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Severity = models.Severity(severity)
		if err := json.Unmarshal([]byte(actionsJSON), &a.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveAlert closes an alert with resolution notes. Part of the write
// contract consumed by the maintenance workflow.
func (r *Repository) ResolveAlert(ctx context.Context, alertID, notes string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, resolution_notes = ? WHERE id = ?`,
		models.AlertStatusResolved, notes, alertID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendAlertAction appends one worker action to an alert's action log.
func (r *Repository) AppendAlertAction(ctx context.Context, alertID string, action models.WorkerAction) error {
	return r.RunAtomic(ctx, func(tx Tx) error {
		st := tx.(*sqlTx)
		var actionsJSON string
		err := st.tx.QueryRowContext(ctx, `SELECT actions_json FROM alerts WHERE id = ?`, alertID).Scan(&actionsJSON)
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		if err != nil {
			return fmt.Errorf("%w: load actions: %v", ErrStorageFault, err)
		}
		var actions []models.WorkerAction
		if err := json.Unmarshal([]byte(actionsJSON), &actions); err != nil {
			return fmt.Errorf("%w: unmarshal actions: %v", ErrStorageFault, err)
		}
		actions = append(actions, action)
		b, err := json.Marshal(actions)
		if err != nil {
			return fmt.Errorf("%w: marshal actions: %v", ErrStorageFault, err)
		}
		if _, err := st.tx.ExecContext(ctx, `UPDATE alerts SET actions_json = ? WHERE id = ?`, string(b), alertID); err != nil {
			return fmt.Errorf("%w: update actions: %v", ErrStorageFault, err)
		}
		return nil
	})
}

func scanDevice(row *sql.Row) (*models.Device, error) {
	var (
		d              models.Device
		thresholdsJSON sql.NullString
		status         string
	)
	err := row.Scan(&d.ID, &d.Name, &d.Location.Latitude, &d.Location.Longitude, &d.Location.Address,
		&thresholdsJSON, &status, &d.LastInspection)
	if err == sql.ErrNoRows {
		return nil, models.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load device: %v", ErrStorageFault, err)
	}
	d.Status = models.Status(status)
	if thresholdsJSON.Valid && thresholdsJSON.String != "" {
		if err := json.Unmarshal([]byte(thresholdsJSON.String), &d.Thresholds); err != nil {
			return nil, fmt.Errorf("%w: unmarshal thresholds: %v", ErrStorageFault, err)
		}
	}
	return &d, nil
}
