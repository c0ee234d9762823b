// Package file stores checkpoints as one JSON document per asset, using the
// activations_<asset>.json layout so existing checkpoint files keep working.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

const (
	filePrefix = "activations_"
	fileSuffix = ".json"
	timeLayout = "2006-01-02T15:04:05"
)

type document struct {
	LastActivations int64  `json:"last_activations"`
	LastUpdate      string `json:"last_update"`
}

// CheckpointStore keeps checkpoints in a directory.
type CheckpointStore struct {
	dir      string
	location *time.Location
}

// NewCheckpointStore creates the directory when missing.
// Timestamps are written in loc, the site timezone.
func NewCheckpointStore(dir string, loc *time.Location) (*CheckpointStore, error) {
	if dir == "" {
		dir = "."
	}
	if loc == nil {
		loc = time.UTC
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("checkpoint file store: create dir: %w", err)
	}
	return &CheckpointStore{dir: dir, location: loc}, nil
}

// Load reads the record of assetID.
func (s *CheckpointStore) Load(ctx context.Context, assetID string) (monitoring.CheckpointRecord, error) {
	_ = ctx
	path, err := s.pathFor(assetID)
	if err != nil {
		return monitoring.CheckpointRecord{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return monitoring.CheckpointRecord{}, monitoring.ErrCheckpointNotFound
		}
		return monitoring.CheckpointRecord{}, fmt.Errorf("checkpoint file store: read %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return monitoring.CheckpointRecord{}, fmt.Errorf("checkpoint file store: decode %s: %w", path, err)
	}
	record := monitoring.CheckpointRecord{
		AssetID:           assetID,
		LastSeenEdgeCount: doc.LastActivations,
	}
	if doc.LastUpdate != "" {
		if at, err := time.ParseInLocation(timeLayout, doc.LastUpdate, s.location); err == nil {
			record.LastUpdate = at
		}
	}
	return record, record.Validate()
}

// Save atomically replaces the record file.
func (s *CheckpointStore) Save(ctx context.Context, record monitoring.CheckpointRecord) error {
	_ = ctx
	if err := record.Validate(); err != nil {
		return err
	}
	path, err := s.pathFor(record.AssetID)
	if err != nil {
		return err
	}
	at := record.LastUpdate
	if at.IsZero() {
		at = time.Now()
	}
	data, err := json.MarshalIndent(document{
		LastActivations: record.LastSeenEdgeCount,
		LastUpdate:      at.In(s.location).Format(timeLayout),
	}, "", "    ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("checkpoint file store: write %s: %w", path, err)
	}
	return nil
}

// List reads every checkpoint file in the directory.
func (s *CheckpointStore) List(ctx context.Context) ([]monitoring.CheckpointRecord, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	out := make([]monitoring.CheckpointRecord, 0, len(matches))
	for _, match := range matches {
		name := filepath.Base(match)
		assetID := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		record, err := s.Load(ctx, assetID)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *CheckpointStore) pathFor(assetID string) (string, error) {
	if assetID == "" {
		return "", monitoring.ErrEmptyAssetID
	}
	if strings.ContainsAny(assetID, `/\`) || assetID == "." || assetID == ".." {
		return "", fmt.Errorf("checkpoint file store: invalid asset id %q", assetID)
	}
	return filepath.Join(s.dir, filePrefix+assetID+fileSuffix), nil
}
