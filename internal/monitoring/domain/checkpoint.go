package monitoring

import (
	"context"
	"time"
)

// CheckpointRecord is the last edge count published for an asset.
type CheckpointRecord struct {
	AssetID           string    `json:"asset_id"`
	LastSeenEdgeCount int64     `json:"last_seen_edge_count"`
	LastUpdate        time.Time `json:"last_update"`
}

// Validate checks record invariants.
func (r CheckpointRecord) Validate() error {
	if r.AssetID == "" {
		return ErrEmptyAssetID
	}
	if r.LastSeenEdgeCount < 0 {
		return ErrNegativeCount
	}
	return nil
}

// CheckpointStore persists one record per asset across restarts.
// Load returns ErrCheckpointNotFound when no record exists.
type CheckpointStore interface {
	Load(ctx context.Context, assetID string) (CheckpointRecord, error)
	Save(ctx context.Context, record CheckpointRecord) error
	List(ctx context.Context) ([]CheckpointRecord, error)
}
