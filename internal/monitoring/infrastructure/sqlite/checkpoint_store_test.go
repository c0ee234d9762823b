package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

func TestCheckpointStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "checkpoints.db")

	store, err := Open(path)
	require.NoError(t, err)

	_, err = store.Load(ctx, "502539")
	require.ErrorIs(t, err, monitoring.ErrCheckpointNotFound)

	at := time.Date(2025, 7, 8, 9, 10, 11, 0, time.UTC)
	require.NoError(t, store.Save(ctx, monitoring.CheckpointRecord{AssetID: "502539", LastSeenEdgeCount: 4, LastUpdate: at}))
	require.NoError(t, store.Save(ctx, monitoring.CheckpointRecord{AssetID: "502539", LastSeenEdgeCount: 9, LastUpdate: at.Add(time.Minute)}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	record, err := reopened.Load(ctx, "502539")
	require.NoError(t, err)
	assert.Equal(t, int64(9), record.LastSeenEdgeCount)
	assert.True(t, record.LastUpdate.Equal(at.Add(time.Minute)))

	list, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
