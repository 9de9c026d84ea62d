package store

import (
	"context"
	"errors"
	"time"

	"drainwatch/internal/models"
)

// ErrStorageFault wraps any driver-level failure inside the atomic write
// group. The group is rolled back before this is returned.
var ErrStorageFault = errors.New("storage fault")

// Tx is the write surface available inside one atomic ingestion group.
// Everything done through a Tx commits or rolls back together.
type Tx interface {
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	InsertReading(ctx context.Context, r *models.Reading) error
	InsertAlert(ctx context.Context, a *models.Alert) error
	UpdateDeviceStatus(ctx context.Context, id string, status models.Status, lastInspection time.Time) error
}

// Store is the durable side of the pipeline. RunAtomic executes fn inside
// one transaction: if fn returns an error nothing it did is observable.
type Store interface {
	RunAtomic(ctx context.Context, fn func(Tx) error) error
	VerifyConn(ctx context.Context) error
}
