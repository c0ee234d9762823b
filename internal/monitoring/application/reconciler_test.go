package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

var testNow = time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)

func newTestReconciler(t *testing.T, store monitoring.CheckpointStore, opts ...ReconcilerOption) *Reconciler {
	t.Helper()
	opts = append([]ReconcilerOption{WithReconcilerClock(fixedClock{now: testNow})}, opts...)
	r, err := NewReconciler(store, opts...)
	require.NoError(t, err)
	return r
}

func seed(t *testing.T, store monitoring.CheckpointStore, assetID string, count int64) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), monitoring.CheckpointRecord{
		AssetID:           assetID,
		LastSeenEdgeCount: count,
		LastUpdate:        testNow.Add(-time.Hour),
	}))
}

func publishTo(values *[]int64, err error) PublishFunc {
	return func(_ context.Context, value int64) error {
		if err != nil {
			return err
		}
		*values = append(*values, value)
		return nil
	}
}

func TestReconcilerNoDeltaNoPublish(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "A", 5)
	r := newTestReconciler(t, store)

	d, err := r.Decide(context.Background(), "A", 5, float64(100))
	require.NoError(t, err)
	assert.False(t, d.Publish)
	assert.Equal(t, int64(0), d.Delta)

	var published []int64
	require.NoError(t, r.Apply(context.Background(), d, publishTo(&published, nil)))
	assert.Empty(t, published)

	rec, err := store.Load(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.LastSeenEdgeCount)
}

func TestReconcilerPublishesDelta(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "A", 5)
	r := newTestReconciler(t, store)

	d, err := r.Decide(context.Background(), "A", 8, "100")
	require.NoError(t, err)
	require.True(t, d.Publish)
	assert.Equal(t, int64(103), d.Value)
	assert.Equal(t, int64(3), d.Delta)
	assert.True(t, d.FirstRun)

	var published []int64
	require.NoError(t, r.Apply(context.Background(), d, publishTo(&published, nil)))
	assert.Equal(t, []int64{103}, published)

	rec, err := store.Load(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(8), rec.LastSeenEdgeCount)
	assert.True(t, rec.LastUpdate.Equal(testNow))

	// same window again: the overlap is not counted twice
	again, err := r.Decide(context.Background(), "A", 8, float64(103))
	require.NoError(t, err)
	assert.False(t, again.Publish)
	assert.False(t, again.FirstRun)
}

func TestReconcilerSecondApplyOfSameWindowIsSuperseded(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "A", 5)
	r := newTestReconciler(t, store)

	first, err := r.Decide(context.Background(), "A", 8, float64(100))
	require.NoError(t, err)
	second, err := r.Decide(context.Background(), "A", 8, float64(100))
	require.NoError(t, err)
	require.True(t, second.Publish)

	var published []int64
	require.NoError(t, r.Apply(context.Background(), first, publishTo(&published, nil)))
	err = r.Apply(context.Background(), second, publishTo(&published, nil))
	require.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, []int64{103}, published)
	assert.Equal(t, 2, store.saves)
}

func TestReconcilerFirstRunWithoutCheckpointOrRegistryValue(t *testing.T) {
	r := newTestReconciler(t, newFlakyStore())

	d, err := r.Decide(context.Background(), "A", 3, nil)
	require.NoError(t, err)
	assert.True(t, d.FirstRun)
	assert.True(t, d.Publish)
	assert.Equal(t, int64(3), d.Value)
}

func TestReconcilerShrinkingWindowKeepsCheckpoint(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "A", 8)
	r := newTestReconciler(t, store)

	d, err := r.Decide(context.Background(), "A", 3, float64(50))
	require.NoError(t, err)
	assert.False(t, d.Publish)
	assert.Equal(t, int64(-5), d.Delta)

	rec, err := store.Load(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(8), rec.LastSeenEdgeCount)
}

func TestReconcilerPublishFailureLeavesCheckpoint(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "A", 5)
	r := newTestReconciler(t, store)

	d, err := r.Decide(context.Background(), "A", 8, float64(100))
	require.NoError(t, err)

	var published []int64
	err = r.Apply(context.Background(), d, publishTo(&published, errBoom))
	require.ErrorIs(t, err, errBoom)

	rec, err := store.Load(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.LastSeenEdgeCount)

	retry, err := r.Decide(context.Background(), "A", 8, float64(100))
	require.NoError(t, err)
	assert.True(t, retry.Publish)
	assert.Equal(t, int64(103), retry.Value)
}

func TestReconcilerCommitFailureDoesNotRepublish(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "A", 5)
	r := newTestReconciler(t, store)

	d, err := r.Decide(context.Background(), "A", 8, float64(100))
	require.NoError(t, err)

	store.saveErr = errBoom
	var published []int64
	err = r.Apply(context.Background(), d, publishTo(&published, nil))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []int64{103}, published)

	next, err := r.Decide(context.Background(), "A", 8, float64(103))
	require.NoError(t, err)
	assert.False(t, next.Publish)
}

func TestReconcilerCommitThenPublish(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "A", 5)
	r := newTestReconciler(t, store, WithOrdering(CommitThenPublish))
	assert.Equal(t, CommitThenPublish, r.Ordering())

	d, err := r.Decide(context.Background(), "A", 8, float64(100))
	require.NoError(t, err)

	var published []int64
	err = r.Apply(context.Background(), d, func(ctx context.Context, value int64) error {
		rec, err := store.Load(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, int64(8), rec.LastSeenEdgeCount, "checkpoint written ahead of publish")
		published = append(published, value)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{103}, published)
}

func TestReconcilerCommitThenPublishRestoresOnFailure(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "A", 5)
	r := newTestReconciler(t, store, WithOrdering(CommitThenPublish))

	d, err := r.Decide(context.Background(), "A", 8, float64(100))
	require.NoError(t, err)

	var published []int64
	require.ErrorIs(t, r.Apply(context.Background(), d, publishTo(&published, errBoom)), errBoom)

	rec, err := store.Load(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.LastSeenEdgeCount)

	retry, err := r.Decide(context.Background(), "A", 8, float64(100))
	require.NoError(t, err)
	assert.True(t, retry.Publish)
}

func TestReconcilerErrors(t *testing.T) {
	store := newFlakyStore()
	r := newTestReconciler(t, store)

	_, err := r.Decide(context.Background(), "", 1, nil)
	assert.ErrorIs(t, err, monitoring.ErrEmptyAssetID)

	_, err = r.Decide(context.Background(), "A", -1, nil)
	assert.ErrorIs(t, err, monitoring.ErrNegativeCount)

	_, err = r.Decide(context.Background(), "A", 1, "not-a-number")
	assert.Error(t, err)

	store.loadErr = errBoom
	_, err = r.Decide(context.Background(), "B", 1, nil)
	assert.ErrorIs(t, err, errBoom)

	_, err = NewReconciler(nil)
	assert.Error(t, err)
}

func TestParseOrdering(t *testing.T) {
	got, err := ParseOrdering("")
	require.NoError(t, err)
	assert.Equal(t, PublishThenCommit, got)

	got, err = ParseOrdering("commit-then-publish")
	require.NoError(t, err)
	assert.Equal(t, CommitThenPublish, got)

	_, err = ParseOrdering("sideways")
	assert.Error(t, err)
}
