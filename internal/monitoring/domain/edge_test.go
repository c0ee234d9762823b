package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountRisingEdges(t *testing.T) {
	cases := []struct {
		name  string
		flags []bool
		want  int64
	}{
		{name: "single active sample", flags: []bool{true}, want: 1},
		{name: "two activations", flags: []bool{false, true, true, false, true}, want: 2},
		{name: "all inactive", flags: []bool{false, false, false}, want: 0},
		{name: "held active", flags: []bool{true, true, true}, want: 1},
		{name: "alternating", flags: []bool{true, false, true, false, true, false}, want: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CountRisingEdges(tc.flags)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			again, err := CountRisingEdges(tc.flags)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestCountRisingEdgesEmptyIsNoData(t *testing.T) {
	got, err := CountRisingEdges(nil)
	require.ErrorIs(t, err, ErrNoData)
	assert.Zero(t, got)

	_, err = CountRisingEdges([]bool{})
	require.ErrorIs(t, err, ErrNoData)
}

func TestCountRisingEdgesAllInactiveIsNotNoData(t *testing.T) {
	got, err := CountRisingEdges([]bool{false})
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestActivityFlags(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []Row{
		{Time: base, Values: map[string]any{"positionActual0": 10.0, "positionActual1": 5.0}},
		{Time: base.Add(time.Second), Values: map[string]any{"positionActual0": 95.0, "positionActual1": 5.0}},
		{Time: base.Add(2 * time.Second), Values: map[string]any{"positionActual0": nil, "positionActual1": 91.5}},
		{Time: base.Add(3 * time.Second), Values: map[string]any{"positionActual0": 90.0, "positionActual1": "bad"}},
		{Time: base.Add(4 * time.Second), Values: map[string]any{}},
	}
	flags := ActivityFlags(rows, []string{"positionActual0", "positionActual1"}, 90)
	assert.Equal(t, []bool{false, true, true, false, false}, flags)

	count, err := CountRisingEdges(flags)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCount(t *testing.T) {
	got, err := Count(nil)
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = Count("")
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = Count(100.0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	got, err = Count("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	_, err = Count("many")
	require.Error(t, err)

	_, err = Count(-1.0)
	require.ErrorIs(t, err, ErrNegativeCount)
}

func TestCountRejectsNonWholeValues(t *testing.T) {
	got, err := Count(int64(1 << 62))
	require.NoError(t, err)
	assert.Equal(t, int64(1<<62), got)

	for _, value := range []any{"100.7", 0.5, "Inf", "9223372036854775808", 1e19} {
		_, err := Count(value)
		assert.Error(t, err, "value %v", value)
	}

	_, err = Count(int64(-3))
	require.ErrorIs(t, err, ErrNegativeCount)
}
