package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	maintenance "efd-cmms-bridge/internal/maintenance/domain"
	masterdata "efd-cmms-bridge/internal/masterdata/domain"
	"efd-cmms-bridge/internal/notify"
)

var errBoom = errors.New("boom")

type fakeRegistry struct {
	mu sync.Mutex

	values     map[string]any
	configs    []maintenance.TriggerConfig
	details    map[string]maintenance.TriggerConfigDetail
	instances  []maintenance.PMInstance
	activities []maintenance.PMActivity
	nextPMID   string

	getErr, listCfgErr, detailErr, createErr, listPMErr, activitiesErr, advanceErr error

	calls    []string
	created  []maintenance.TriggerConfigDetail
	advanced []maintenance.AdvanceRequest
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		values:     map[string]any{},
		details:    map[string]maintenance.TriggerConfigDetail{},
		activities: []maintenance.PMActivity{{ID: "act-1"}},
		nextPMID:   "pm-100",
	}
}

func (f *fakeRegistry) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRegistry) called(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeRegistry) GetAttribute(_ context.Context, assetID, attribute string) (any, error) {
	f.record("get_attribute")
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.values[assetID+"."+attribute], nil
}

func (f *fakeRegistry) ListTriggerConfigs(context.Context) ([]maintenance.TriggerConfig, error) {
	f.record("list_configs")
	return f.configs, f.listCfgErr
}

func (f *fakeRegistry) GetTriggerConfig(_ context.Context, id string) (maintenance.TriggerConfigDetail, error) {
	f.record("get_config")
	if f.detailErr != nil {
		return maintenance.TriggerConfigDetail{}, f.detailErr
	}
	detail, ok := f.details[id]
	if !ok {
		detail = maintenance.TriggerConfigDetail{ID: id}
	}
	return detail, nil
}

func (f *fakeRegistry) CreatePM(_ context.Context, detail maintenance.TriggerConfigDetail) (string, error) {
	f.record("create_pm")
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, detail)
	f.instances = append(f.instances, maintenance.PMInstance{ID: f.nextPMID, ConfigID: detail.ID, Status: "Planning"})
	return f.nextPMID, nil
}

func (f *fakeRegistry) ListPMActivities(context.Context, string) ([]maintenance.PMActivity, error) {
	f.record("list_activities")
	return f.activities, f.activitiesErr
}

func (f *fakeRegistry) AdvancePM(_ context.Context, _ string, req maintenance.AdvanceRequest) error {
	f.record("advance_pm")
	if f.advanceErr != nil {
		return f.advanceErr
	}
	f.advanced = append(f.advanced, req)
	return nil
}

func (f *fakeRegistry) ListPMInstances(context.Context) ([]maintenance.PMInstance, error) {
	f.record("list_pm")
	if f.listPMErr != nil {
		return nil, f.listPMErr
	}
	return append([]maintenance.PMInstance(nil), f.instances...), nil
}

type recordingNotifier struct {
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	n.events = append(n.events, event)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testChannels(t *testing.T) *masterdata.ChannelSet {
	t.Helper()
	set, err := masterdata.NewChannelSet([]masterdata.MonitorChannel{
		{Name: "noise", Measurement: "lsst.sal.ESS.noise", Field: "level", AssetID: "A1", Attribute: "NoiseLevel"},
		{Name: "shutter", Measurement: "lsst.sal.MTDome.apertureShutter", AssetID: "A2", Attribute: "Activations",
			Counter: &masterdata.CounterSpec{Fields: []string{"positionActual0"}}},
	})
	require.NoError(t, err)
	return set
}

func noiseConfig() maintenance.TriggerConfig {
	return maintenance.TriggerConfig{ID: "cfg-1", AssetID: "A1", Trigger: maintenance.NumericTrigger{Value: 12}}
}

func newTestController(t *testing.T, reg *fakeRegistry, notifier notify.Notifier) *Controller {
	t.Helper()
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	c, err := NewController(reg, testChannels(t),
		WithClock(fixedClock{now: time.Date(2026, 7, 1, 2, 30, 0, 0, time.UTC)}),
		WithLocation(santiago),
		WithNotifier(notifier),
	)
	require.NoError(t, err)
	return c
}

func TestControllerCreatesAndAdvancesPM(t *testing.T) {
	reg := newFakeRegistry()
	reg.values["A1.NoiseLevel"] = "12"
	reg.details["cfg-1"] = maintenance.TriggerConfigDetail{ID: "cfg-1", Description: "Inspect fan"}
	notifier := &recordingNotifier{}
	c := newTestController(t, reg, notifier)

	res := c.Evaluate(context.Background(), noiseConfig())
	assert.Equal(t, maintenance.OutcomeCreated, res.Outcome)
	assert.Equal(t, "pm-100", res.PMID)
	assert.Equal(t, "NoiseLevel", res.Attribute)
	require.Len(t, reg.created, 1)
	assert.Equal(t, "Inspect fan", reg.created[0].Description)
	require.Len(t, reg.advanced, 1)
	assert.Equal(t, "act-1", reg.advanced[0].ActivityID)
	assert.Equal(t, "acceptance", reg.advanced[0].Status)
	// 02:30 UTC is still the previous day in Santiago
	assert.Equal(t, "2026-06-30", reg.advanced[0].ExecutionDate)

	require.Len(t, notifier.events, 2)
	assert.Equal(t, notify.EventPMCreated, notifier.events[0].Type)
	assert.Equal(t, notify.EventPMAdvanced, notifier.events[1].Type)
}

func TestControllerSecondEvaluationSeesOpenPM(t *testing.T) {
	reg := newFakeRegistry()
	reg.values["A1.NoiseLevel"] = float64(12)
	c := newTestController(t, reg, nil)

	first := c.Evaluate(context.Background(), noiseConfig())
	require.Equal(t, maintenance.OutcomeCreated, first.Outcome)

	second := c.Evaluate(context.Background(), noiseConfig())
	assert.Equal(t, maintenance.OutcomeOpenPM, second.Outcome)
	assert.Equal(t, "pm-100", second.PMID)
	assert.Equal(t, 1, reg.called("create_pm"))
}

func TestControllerAbortedPMDoesNotBlock(t *testing.T) {
	reg := newFakeRegistry()
	reg.values["A1.NoiseLevel"] = float64(12)
	reg.instances = []maintenance.PMInstance{{ID: "pm-1", ConfigID: "cfg-1", Status: "Aborted"}}
	c := newTestController(t, reg, nil)

	res := c.Evaluate(context.Background(), noiseConfig())
	assert.Equal(t, maintenance.OutcomeCreated, res.Outcome)
	assert.Equal(t, 1, reg.called("create_pm"))
}

func TestControllerAcceptancePMBlocks(t *testing.T) {
	reg := newFakeRegistry()
	reg.values["A1.NoiseLevel"] = float64(12)
	reg.instances = []maintenance.PMInstance{
		{ID: "pm-0", ConfigID: "other", Status: "Planning"},
		{ID: "pm-1", ConfigID: "cfg-1", Status: "Acceptance"},
	}
	c := newTestController(t, reg, nil)

	res := c.Evaluate(context.Background(), noiseConfig())
	assert.Equal(t, maintenance.OutcomeOpenPM, res.Outcome)
	assert.Equal(t, "pm-1", res.PMID)
	assert.Zero(t, reg.called("create_pm"))
}

func TestControllerNoChannelForAssetNeverChecksOrCreates(t *testing.T) {
	reg := newFakeRegistry()
	c := newTestController(t, reg, nil)

	res := c.Evaluate(context.Background(), maintenance.TriggerConfig{ID: "cfg-9", AssetID: "unknown", Trigger: maintenance.NumericTrigger{Value: 1}})
	assert.Equal(t, maintenance.OutcomeMissingChannel, res.Outcome)
	assert.Zero(t, reg.called("get_attribute"))
	assert.Zero(t, reg.called("list_pm"))
	assert.Zero(t, reg.called("create_pm"))

	res = c.Evaluate(context.Background(), maintenance.TriggerConfig{ID: "cfg-10", Trigger: maintenance.NumericTrigger{Value: 1}})
	assert.Equal(t, maintenance.OutcomeMissingAsset, res.Outcome)
}

func TestControllerNotTriggered(t *testing.T) {
	cases := []struct {
		name  string
		value any
		cfg   maintenance.TriggerConfig
	}{
		{name: "different value", value: float64(11), cfg: noiseConfig()},
		{name: "nil value", value: nil, cfg: noiseConfig()},
		{name: "cast failure", value: "loud", cfg: noiseConfig()},
		{name: "no trigger", value: float64(12), cfg: maintenance.TriggerConfig{ID: "cfg-1", AssetID: "A1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := newFakeRegistry()
			reg.values["A1.NoiseLevel"] = tc.value
			c := newTestController(t, reg, nil)

			res := c.Evaluate(context.Background(), tc.cfg)
			assert.Equal(t, maintenance.OutcomeNotTriggered, res.Outcome)
			assert.Zero(t, reg.called("list_pm"))
		})
	}
}

func TestControllerFailures(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(*fakeRegistry)
		outcome maintenance.Outcome
		creates int
	}{
		{name: "attribute read fails", setup: func(r *fakeRegistry) { r.getErr = errBoom }, outcome: maintenance.OutcomeValueUnavailable},
		{name: "listing fails skips creation", setup: func(r *fakeRegistry) { r.listPMErr = errBoom }, outcome: maintenance.OutcomeCheckFailed},
		{name: "detail fails", setup: func(r *fakeRegistry) { r.detailErr = errBoom }, outcome: maintenance.OutcomeCreateFailed},
		{name: "create fails", setup: func(r *fakeRegistry) { r.createErr = errBoom }, outcome: maintenance.OutcomeCreateFailed},
		{name: "empty id", setup: func(r *fakeRegistry) { r.nextPMID = "" }, outcome: maintenance.OutcomeCreateFailed, creates: 1},
		{name: "no activities", setup: func(r *fakeRegistry) { r.activities = nil }, outcome: maintenance.OutcomeAdvanceFailed, creates: 1},
		{name: "advance fails", setup: func(r *fakeRegistry) { r.advanceErr = errBoom }, outcome: maintenance.OutcomeAdvanceFailed, creates: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := newFakeRegistry()
			reg.values["A1.NoiseLevel"] = float64(12)
			tc.setup(reg)
			c := newTestController(t, reg, nil)

			res := c.Evaluate(context.Background(), noiseConfig())
			assert.Equal(t, tc.outcome, res.Outcome)
			assert.True(t, res.Outcome.Failed())
			assert.NotEmpty(t, res.Error)
			assert.ErrorIs(t, res.Err, maintenance.ErrWorkflow)
			assert.Len(t, reg.created, tc.creates)
		})
	}
}

func TestControllerSweepReport(t *testing.T) {
	reg := newFakeRegistry()
	reg.values["A1.NoiseLevel"] = float64(12)
	reg.configs = []maintenance.TriggerConfig{
		noiseConfig(),
		{ID: "cfg-2", AssetID: "A2", Trigger: maintenance.NumericTrigger{Value: 1000}},
		{ID: "cfg-3", AssetID: "missing", Trigger: maintenance.StringTrigger{Value: "x"}},
	}
	c := newTestController(t, reg, nil)

	_, ok := c.LastReport()
	assert.False(t, ok)

	report, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.SweepID)
	assert.Equal(t, 3, report.Configs)
	assert.Equal(t, 1, report.Counts[maintenance.OutcomeCreated])
	assert.Equal(t, 1, report.Counts[maintenance.OutcomeNotTriggered])
	assert.Equal(t, 1, report.Counts[maintenance.OutcomeMissingChannel])
	assert.Equal(t, []string{"pm-100"}, report.Created())

	last, ok := c.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.SweepID, last.SweepID)

	again, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Counts[maintenance.OutcomeOpenPM])
	assert.NotEqual(t, report.SweepID, again.SweepID)
}

func TestControllerSweepListFailure(t *testing.T) {
	reg := newFakeRegistry()
	reg.listCfgErr = errBoom
	c := newTestController(t, reg, nil)

	report, err := c.Sweep(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.NotEmpty(t, report.Error)
}

func TestNewControllerValidates(t *testing.T) {
	_, err := NewController(nil, testChannels(t))
	assert.Error(t, err)
	_, err = NewController(newFakeRegistry(), nil)
	assert.Error(t, err)
}
