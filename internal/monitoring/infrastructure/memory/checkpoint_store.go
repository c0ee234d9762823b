package memory

import (
	"context"
	"sort"
	"sync"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

// CheckpointStore is an in-memory store for tests and dry runs.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]monitoring.CheckpointRecord
}

// NewCheckpointStore constructs a store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{data: make(map[string]monitoring.CheckpointRecord)}
}

// Load returns the record for assetID.
func (s *CheckpointStore) Load(ctx context.Context, assetID string) (monitoring.CheckpointRecord, error) {
	_ = ctx
	if assetID == "" {
		return monitoring.CheckpointRecord{}, monitoring.ErrEmptyAssetID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.data[assetID]
	if !ok {
		return monitoring.CheckpointRecord{}, monitoring.ErrCheckpointNotFound
	}
	return record, nil
}

// Save overwrites the record for its asset.
func (s *CheckpointStore) Save(ctx context.Context, record monitoring.CheckpointRecord) error {
	_ = ctx
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[record.AssetID] = record
	return nil
}

// List returns all records ordered by asset id.
func (s *CheckpointStore) List(ctx context.Context) ([]monitoring.CheckpointRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitoring.CheckpointRecord, 0, len(s.data))
	for _, record := range s.data {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}
