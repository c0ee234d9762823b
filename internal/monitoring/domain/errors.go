package monitoring

import "errors"

var (
	// ErrNoData means the telemetry window held nothing; the cycle is skipped.
	ErrNoData = errors.New("monitoring: no data")
	// ErrCheckpointNotFound is returned by stores when an asset has no record yet.
	ErrCheckpointNotFound = errors.New("monitoring: checkpoint not found")
	// ErrNegativeCount guards checkpoint invariants.
	ErrNegativeCount = errors.New("monitoring: negative edge count")
	// ErrEmptyAssetID is returned when a checkpoint has no asset id.
	ErrEmptyAssetID = errors.New("monitoring: empty asset id")
)
