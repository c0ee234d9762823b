package application

import (
	"context"
	"time"

	maintenance "efd-cmms-bridge/internal/maintenance/domain"
	masterdata "efd-cmms-bridge/internal/masterdata/domain"
)

// Registry is the part of the CMMS the PM lifecycle needs.
type Registry interface {
	GetAttribute(ctx context.Context, assetID, attribute string) (any, error)
	ListTriggerConfigs(ctx context.Context) ([]maintenance.TriggerConfig, error)
	GetTriggerConfig(ctx context.Context, configID string) (maintenance.TriggerConfigDetail, error)
	CreatePM(ctx context.Context, detail maintenance.TriggerConfigDetail) (string, error)
	ListPMActivities(ctx context.Context, pmID string) ([]maintenance.PMActivity, error)
	AdvancePM(ctx context.Context, pmID string, req maintenance.AdvanceRequest) error
	ListPMInstances(ctx context.Context) ([]maintenance.PMInstance, error)
}

// ChannelLookup resolves the monitored attribute of an asset.
type ChannelLookup interface {
	ByAsset(assetID string) (masterdata.MonitorChannel, bool)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
