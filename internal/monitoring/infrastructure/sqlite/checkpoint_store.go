package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	asset_id TEXT PRIMARY KEY,
	last_seen_edge_count INTEGER NOT NULL CHECK (last_seen_edge_count >= 0),
	last_update TEXT NOT NULL
)`

// CheckpointStore keeps checkpoints in an embedded SQLite database.
type CheckpointStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*CheckpointStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("checkpoint sqlite: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("checkpoint sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("checkpoint sqlite: schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("checkpoint sqlite: schema: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

// Close closes the database.
func (s *CheckpointStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the record for assetID.
func (s *CheckpointStore) Load(ctx context.Context, assetID string) (monitoring.CheckpointRecord, error) {
	if assetID == "" {
		return monitoring.CheckpointRecord{}, monitoring.ErrEmptyAssetID
	}
	row := s.db.QueryRowContext(ctx, `
SELECT asset_id, last_seen_edge_count, last_update
FROM checkpoints
WHERE asset_id = ?`, assetID)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return monitoring.CheckpointRecord{}, monitoring.ErrCheckpointNotFound
		}
		return monitoring.CheckpointRecord{}, err
	}
	return record, nil
}

// Save upserts the record.
func (s *CheckpointStore) Save(ctx context.Context, record monitoring.CheckpointRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	at := record.LastUpdate
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checkpoints (asset_id, last_seen_edge_count, last_update)
VALUES (?, ?, ?)
ON CONFLICT (asset_id) DO UPDATE SET
	last_seen_edge_count = excluded.last_seen_edge_count,
	last_update = excluded.last_update`,
		record.AssetID, record.LastSeenEdgeCount, at.Format(time.RFC3339Nano))
	return err
}

// List returns all records ordered by asset id.
func (s *CheckpointStore) List(ctx context.Context) ([]monitoring.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT asset_id, last_seen_edge_count, last_update
FROM checkpoints
ORDER BY asset_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []monitoring.CheckpointRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (monitoring.CheckpointRecord, error) {
	var (
		record monitoring.CheckpointRecord
		raw    string
	)
	if err := row.Scan(&record.AssetID, &record.LastSeenEdgeCount, &raw); err != nil {
		return monitoring.CheckpointRecord{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return monitoring.CheckpointRecord{}, fmt.Errorf("checkpoint sqlite: bad timestamp %q: %w", raw, err)
	}
	record.LastUpdate = at
	return record, nil
}
