package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

// CheckpointStore stores checkpoints in PostgreSQL through database/sql (pgx driver).
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore constructs a store.
func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// EnsureSchema creates the checkpoint table when missing.
func (s *CheckpointStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("checkpoint store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS monitor_checkpoints (
	asset_id TEXT PRIMARY KEY,
	last_seen_edge_count BIGINT NOT NULL CHECK (last_seen_edge_count >= 0),
	last_update TIMESTAMPTZ NOT NULL
)`)
	return err
}

// Load fetches the record of assetID.
func (s *CheckpointStore) Load(ctx context.Context, assetID string) (monitoring.CheckpointRecord, error) {
	if s == nil || s.db == nil {
		return monitoring.CheckpointRecord{}, errors.New("checkpoint store: nil db")
	}
	if assetID == "" {
		return monitoring.CheckpointRecord{}, monitoring.ErrEmptyAssetID
	}
	row := s.db.QueryRowContext(ctx, `
SELECT asset_id, last_seen_edge_count, last_update
FROM monitor_checkpoints
WHERE asset_id = $1`, assetID)

	var record monitoring.CheckpointRecord
	if err := row.Scan(&record.AssetID, &record.LastSeenEdgeCount, &record.LastUpdate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return monitoring.CheckpointRecord{}, monitoring.ErrCheckpointNotFound
		}
		return monitoring.CheckpointRecord{}, err
	}
	return record, nil
}

// Save inserts or overwrites the record.
func (s *CheckpointStore) Save(ctx context.Context, record monitoring.CheckpointRecord) error {
	if s == nil || s.db == nil {
		return errors.New("checkpoint store: nil db")
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if record.LastUpdate.IsZero() {
		record.LastUpdate = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO monitor_checkpoints (asset_id, last_seen_edge_count, last_update)
VALUES ($1, $2, $3)
ON CONFLICT (asset_id)
DO UPDATE SET
	last_seen_edge_count = EXCLUDED.last_seen_edge_count,
	last_update = EXCLUDED.last_update`,
		record.AssetID,
		record.LastSeenEdgeCount,
		record.LastUpdate,
	)
	return err
}

// List returns every record ordered by asset id.
func (s *CheckpointStore) List(ctx context.Context) ([]monitoring.CheckpointRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("checkpoint store: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT asset_id, last_seen_edge_count, last_update
FROM monitor_checkpoints
ORDER BY asset_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []monitoring.CheckpointRecord
	for rows.Next() {
		var record monitoring.CheckpointRecord
		if err := rows.Scan(&record.AssetID, &record.LastSeenEdgeCount, &record.LastUpdate); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}
