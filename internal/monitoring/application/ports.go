package application

import (
	"context"
	"time"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

// Telemetry reads samples from the EFD. Both methods return monitoring.ErrNoData
// when the window is empty.
type Telemetry interface {
	Latest(ctx context.Context, q monitoring.LatestQuery) (any, error)
	Series(ctx context.Context, q monitoring.SeriesQuery) ([]monitoring.Row, error)
}

// AttributeStore reads and writes CMMS asset attributes.
// GetAttribute returns a nil value when the attribute is absent.
type AttributeStore interface {
	GetAttribute(ctx context.Context, assetID, attribute string) (any, error)
	SetAttribute(ctx context.Context, assetID, attribute string, value any) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
