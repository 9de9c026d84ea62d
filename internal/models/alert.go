package models

import "time"

// Severity of an alert, assigned per metric by the threshold table.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert lifecycle states. Ingestion only ever creates active alerts; the
// maintenance workflow resolves them later.
const (
	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
)

// Alert records one threshold violation derived from one reading.
type Alert struct {
	ID              string         `json:"id"`
	DeviceID        string         `json:"deviceId"`
	ReadingID       string         `json:"readingId"`
	Type            string         `json:"type"`
	Severity        Severity       `json:"severity"`
	Description     string         `json:"description"`
	Location        Location       `json:"location"`
	Status          string         `json:"status"`
	ResolutionNotes string         `json:"resolutionNotes,omitempty"`
	Actions         []WorkerAction `json:"actions,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// WorkerAction is one maintenance step taken against an alert. The list is
// append-only.
type WorkerAction struct {
	Worker    string    `json:"worker"`
	Action    string    `json:"action"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
