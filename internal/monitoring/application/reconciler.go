package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
	"efd-cmms-bridge/internal/observability/metrics"
)

// ErrSuperseded is returned by Apply when another evaluation already advanced
// the checkpoint past the decision. Nothing was published.
var ErrSuperseded = errors.New("reconciler: decision superseded")

// Ordering decides whether the checkpoint is advanced before or after the
// registry publish.
type Ordering string

const (
	// PublishThenCommit advances the checkpoint only after the publish succeeded.
	PublishThenCommit Ordering = "publish-then-commit"
	// CommitThenPublish persists the advanced checkpoint first and restores the
	// previous one when the publish fails. A crash between the two steps loses
	// the delta instead of adding it twice.
	CommitThenPublish Ordering = "commit-then-publish"
)

// ParseOrdering validates a configured ordering.
func ParseOrdering(value string) (Ordering, error) {
	switch Ordering(value) {
	case "", PublishThenCommit:
		return PublishThenCommit, nil
	case CommitThenPublish:
		return CommitThenPublish, nil
	default:
		return "", fmt.Errorf("reconciler: unknown ordering %q", value)
	}
}

// Decision is the outcome of comparing a fresh window count with the checkpoint.
type Decision struct {
	AssetID         string `json:"asset_id"`
	FirstRun        bool   `json:"first_run"`
	Checkpoint      int64  `json:"checkpoint"`
	Fresh           int64  `json:"fresh"`
	RegistryCurrent int64  `json:"registry_current"`
	Delta           int64  `json:"delta"`
	Publish         bool   `json:"publish"`
	Value           int64  `json:"value"`
}

// PublishFunc pushes a counter value to the registry.
type PublishFunc func(ctx context.Context, value int64) error

// Reconciler turns per-window edge counts into a running registry total.
// It owns the checkpoint store and caches checkpoints for the process lifetime.
type Reconciler struct {
	store    monitoring.CheckpointStore
	clock    Clock
	location *time.Location
	ordering Ordering

	mu     sync.Mutex
	cache  map[string]int64
	assets map[string]*sync.Mutex
}

// ReconcilerOption customizes the reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerClock overrides the clock.
func WithReconcilerClock(clock Clock) ReconcilerOption {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLocation sets the site timezone used for checkpoint timestamps.
func WithLocation(loc *time.Location) ReconcilerOption {
	return func(r *Reconciler) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithOrdering selects the publish/commit ordering.
func WithOrdering(ordering Ordering) ReconcilerOption {
	return func(r *Reconciler) {
		if ordering != "" {
			r.ordering = ordering
		}
	}
}

// NewReconciler constructs a reconciler.
func NewReconciler(store monitoring.CheckpointStore, opts ...ReconcilerOption) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("reconciler: nil checkpoint store")
	}
	r := &Reconciler{
		store:    store,
		clock:    systemClock{},
		location: time.UTC,
		ordering: PublishThenCommit,
		cache:    make(map[string]int64),
		assets:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Ordering returns the configured ordering.
func (r *Reconciler) Ordering() Ordering {
	return r.ordering
}

// Decide compares fresh with the asset checkpoint. registryCurrent is the value
// currently stored in the CMMS; nil or empty reads as zero.
func (r *Reconciler) Decide(ctx context.Context, assetID string, fresh int64, registryCurrent any) (Decision, error) {
	if assetID == "" {
		return Decision{}, monitoring.ErrEmptyAssetID
	}
	if fresh < 0 {
		return Decision{}, monitoring.ErrNegativeCount
	}
	current, err := monitoring.Count(registryCurrent)
	if err != nil {
		return Decision{}, fmt.Errorf("reconciler: asset %s: %w", assetID, err)
	}
	checkpoint, firstRun, err := r.checkpoint(ctx, assetID)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		AssetID:         assetID,
		FirstRun:        firstRun,
		Checkpoint:      checkpoint,
		Fresh:           fresh,
		RegistryCurrent: current,
		Delta:           fresh - checkpoint,
	}
	if d.Delta > 0 {
		d.Publish = true
		d.Value = current + d.Delta
	}
	return d, nil
}

// Apply publishes a positive decision and advances the checkpoint in the
// configured order. Decisions without a publish are a no-op. A decision whose
// window was already applied returns ErrSuperseded.
func (r *Reconciler) Apply(ctx context.Context, d Decision, publish PublishFunc) error {
	if !d.Publish {
		return nil
	}
	if publish == nil {
		return errors.New("reconciler: nil publish func")
	}
	lock := r.assetLock(d.AssetID)
	lock.Lock()
	defer lock.Unlock()

	if cached, ok := r.cached(d.AssetID); ok && cached >= d.Fresh {
		return ErrSuperseded
	}

	switch r.ordering {
	case CommitThenPublish:
		if err := r.save(ctx, d.AssetID, d.Fresh); err != nil {
			return fmt.Errorf("reconciler: write-ahead checkpoint: %w", err)
		}
		if err := publish(ctx, d.Value); err != nil {
			if restoreErr := r.save(ctx, d.AssetID, d.Checkpoint); restoreErr != nil {
				return fmt.Errorf("reconciler: publish: %w (restore checkpoint: %v)", err, restoreErr)
			}
			return fmt.Errorf("reconciler: publish: %w", err)
		}
		return nil
	default:
		if err := publish(ctx, d.Value); err != nil {
			return fmt.Errorf("reconciler: publish: %w", err)
		}
		if err := r.Commit(ctx, d); err != nil {
			// keep the in-memory checkpoint so this process does not count twice
			r.remember(d.AssetID, d.Fresh)
			return fmt.Errorf("reconciler: commit checkpoint: %w", err)
		}
		return nil
	}
}

// Commit advances the asset checkpoint to the decision's fresh count.
func (r *Reconciler) Commit(ctx context.Context, d Decision) error {
	if !d.Publish {
		return nil
	}
	return r.save(ctx, d.AssetID, d.Fresh)
}

// Checkpoints lists persisted checkpoints.
func (r *Reconciler) Checkpoints(ctx context.Context) ([]monitoring.CheckpointRecord, error) {
	return r.store.List(ctx)
}

func (r *Reconciler) checkpoint(ctx context.Context, assetID string) (int64, bool, error) {
	if value, ok := r.cached(assetID); ok {
		return value, false, nil
	}
	record, err := r.store.Load(ctx, assetID)
	switch {
	case errors.Is(err, monitoring.ErrCheckpointNotFound):
		record.LastSeenEdgeCount = 0
	case err != nil:
		return 0, false, fmt.Errorf("reconciler: load checkpoint %s: %w", assetID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if value, ok := r.cache[assetID]; ok {
		return value, false, nil
	}
	r.cache[assetID] = record.LastSeenEdgeCount
	return record.LastSeenEdgeCount, true, nil
}

func (r *Reconciler) save(ctx context.Context, assetID string, count int64) error {
	record := monitoring.CheckpointRecord{
		AssetID:           assetID,
		LastSeenEdgeCount: count,
		LastUpdate:        r.clock.Now().In(r.location),
	}
	if err := r.store.Save(ctx, record); err != nil {
		return err
	}
	r.remember(assetID, count)
	return nil
}

func (r *Reconciler) remember(assetID string, count int64) {
	r.mu.Lock()
	r.cache[assetID] = count
	r.mu.Unlock()
	metrics.SetCheckpoint(assetID, count)
}

func (r *Reconciler) cached(assetID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.cache[assetID]
	return value, ok
}

func (r *Reconciler) assetLock(assetID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.assets[assetID]
	if !ok {
		lock = &sync.Mutex{}
		r.assets[assetID] = lock
	}
	return lock
}
