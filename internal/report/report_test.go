package report

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	masterdata "efd-cmms-bridge/internal/masterdata/domain"
	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

type fakeReader struct {
	mu     sync.Mutex
	values map[string]any
	calls  int
}

func (f *fakeReader) GetAttribute(_ context.Context, assetID, attribute string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	v, ok := f.values[assetID+"/"+attribute]
	if !ok {
		return nil, errors.New("cmms: not found")
	}
	return v, nil
}

type fakeCheckpoints []monitoring.CheckpointRecord

func (f fakeCheckpoints) Checkpoints(context.Context) ([]monitoring.CheckpointRecord, error) {
	return f, nil
}

var channels = []masterdata.MonitorChannel{
	{
		Name: "Dome Shutter", Measurement: "lsst.sal.MTDome.apertureShutter", AssetID: "502539", Attribute: "AC_count",
		Counter: &masterdata.CounterSpec{Fields: []string{"positionActual0", "positionActual1"}},
	},
	{Name: "Generator", Measurement: "lsst.sal.ESS.agcGenset150", Field: "engineHours", AssetID: "502673", Attribute: "NoiseLevel"},
	{Name: "Chiller", Measurement: "lsst.MTCamera.chiller", Field: "TankLevel", AssetID: "502819", Attribute: "NoiseLevel"},
}

func TestBuildCollectsValuesAndErrors(t *testing.T) {
	reader := &fakeReader{values: map[string]any{
		"502539/AC_count":   "103",
		"502673/NoiseLevel": 1234.5,
	}}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	builder, err := NewBuilder(reader,
		fakeCheckpoints{{AssetID: "502539", LastSeenEdgeCount: 8}},
		WithConcurrency(2),
		WithNow(func() time.Time { return at }))
	require.NoError(t, err)

	snap, err := builder.Build(context.Background(), channels)
	require.NoError(t, err)
	assert.Equal(t, at, snap.GeneratedAt)
	require.Len(t, snap.Rows, 3)
	assert.Equal(t, 3, reader.calls)

	shutter := snap.Rows[0]
	assert.Equal(t, "positionActual0+positionActual1", shutter.Field)
	assert.Equal(t, "103", shutter.Current)
	require.NotNil(t, shutter.Checkpoint)
	assert.Equal(t, int64(8), *shutter.Checkpoint)

	assert.Equal(t, 1234.5, snap.Rows[1].Current)
	assert.Nil(t, snap.Rows[1].Checkpoint)

	assert.Equal(t, "Chiller", snap.Rows[2].Channel)
	assert.NotEmpty(t, snap.Rows[2].Error)
	assert.Nil(t, snap.Rows[2].Current)
}

func TestRenderFormats(t *testing.T) {
	count := int64(8)
	snap := Snapshot{
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Rows: []Row{
			{Channel: "Dome Shutter", Measurement: "lsst.sal.MTDome.apertureShutter", Field: "positionActual0+positionActual1", AssetID: "502539", Attribute: "AC_count", Current: "103", Checkpoint: &count},
			{Channel: "Chiller", AssetID: "502819", Attribute: "NoiseLevel", Error: "cmms: not found"},
		},
	}

	pdfBytes, err := Render(snap, FormatPDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdfBytes, []byte("%PDF")))

	xlsxBytes, err := Render(snap, FormatXLSX)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(xlsxBytes))
	require.NoError(t, err)
	defer f.Close()
	name, err := f.GetCellValue("values", "A4")
	require.NoError(t, err)
	assert.Equal(t, "Dome Shutter", name)
	checkpoint, err := f.GetCellValue("values", "G4")
	require.NoError(t, err)
	assert.Equal(t, "8", checkpoint)
	errText, err := f.GetCellValue("values", "H5")
	require.NoError(t, err)
	assert.Equal(t, "cmms: not found", errText)

	_, err = Render(snap, Format("csv"))
	assert.Error(t, err)
}

func TestNewBuilderRequiresReader(t *testing.T) {
	_, err := NewBuilder(nil, nil)
	assert.Error(t, err)
}
