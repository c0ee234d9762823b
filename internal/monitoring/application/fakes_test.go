package application

import (
	"context"
	"errors"
	"sync"
	"time"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
	"efd-cmms-bridge/internal/monitoring/infrastructure/memory"
	"efd-cmms-bridge/internal/notify"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type flakyStore struct {
	*memory.CheckpointStore
	loadErr error
	saveErr error
	saves   int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{CheckpointStore: memory.NewCheckpointStore()}
}

func (s *flakyStore) Load(ctx context.Context, assetID string) (monitoring.CheckpointRecord, error) {
	if s.loadErr != nil {
		return monitoring.CheckpointRecord{}, s.loadErr
	}
	return s.CheckpointStore.Load(ctx, assetID)
}

func (s *flakyStore) Save(ctx context.Context, record monitoring.CheckpointRecord) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.CheckpointStore.Save(ctx, record)
}

type fakeTelemetry struct {
	mu        sync.Mutex
	rows      []monitoring.Row
	latest    any
	err       error
	series    []monitoring.SeriesQuery
	latestQry []monitoring.LatestQuery
}

func (f *fakeTelemetry) Latest(_ context.Context, q monitoring.LatestQuery) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestQry = append(f.latestQry, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.latest, nil
}

func (f *fakeTelemetry) Series(_ context.Context, q monitoring.SeriesQuery) ([]monitoring.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series = append(f.series, q)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) == 0 {
		return nil, monitoring.ErrNoData
	}
	return f.rows, nil
}

type setCall struct {
	assetID   string
	attribute string
	value     any
}

type fakeRegistry struct {
	mu     sync.Mutex
	values map[string]any
	getErr error
	setErr error
	sets   []setCall
	gets   int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{values: make(map[string]any)}
}

func (f *fakeRegistry) GetAttribute(_ context.Context, assetID, attribute string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.values[assetID+"."+attribute], nil
}

func (f *fakeRegistry) SetAttribute(_ context.Context, assetID, attribute string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets = append(f.sets, setCall{assetID: assetID, attribute: attribute, value: value})
	f.values[assetID+"."+attribute] = value
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

var errBoom = errors.New("boom")

// barrierRegistry holds every GetAttribute until all expected readers arrived.
type barrierRegistry struct {
	*fakeRegistry
	arrived sync.WaitGroup
}

func newBarrierRegistry(readers int) *barrierRegistry {
	r := &barrierRegistry{fakeRegistry: newFakeRegistry()}
	r.arrived.Add(readers)
	return r
}

func (r *barrierRegistry) GetAttribute(ctx context.Context, assetID, attribute string) (any, error) {
	r.arrived.Done()
	r.arrived.Wait()
	return r.fakeRegistry.GetAttribute(ctx, assetID, attribute)
}
