package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	masterdata "efd-cmms-bridge/internal/masterdata/domain"
	monitoring "efd-cmms-bridge/internal/monitoring/domain"
	"efd-cmms-bridge/internal/notify"
	"efd-cmms-bridge/internal/observability/metrics"
)

// PollStatus summarizes one poll of a channel.
type PollStatus string

const (
	PollPublished PollStatus = "published"
	PollUnchanged PollStatus = "unchanged"
	PollNoData    PollStatus = "no_data"
)

const (
	kindCounter     = "counter"
	kindPassThrough = "pass_through"
)

// PollResult describes what a poll did.
type PollResult struct {
	Channel  string     `json:"channel"`
	AssetID  string     `json:"asset_id"`
	Status   PollStatus `json:"status"`
	Value    any        `json:"value,omitempty"`
	Decision *Decision  `json:"decision,omitempty"`
}

// Monitor moves telemetry values into CMMS asset attributes.
type Monitor struct {
	telemetry  Telemetry
	registry   AttributeStore
	reconciler *Reconciler
	notifier   notify.Notifier
	logger     *slog.Logger
	clock      Clock
}

// MonitorOption customizes the monitor.
type MonitorOption func(*Monitor)

// WithNotifier sets the event notifier.
func WithNotifier(notifier notify.Notifier) MonitorOption {
	return func(m *Monitor) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMonitorClock overrides the clock.
func WithMonitorClock(clock Clock) MonitorOption {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMonitor constructs a monitor.
func NewMonitor(telemetry Telemetry, registry AttributeStore, reconciler *Reconciler, opts ...MonitorOption) (*Monitor, error) {
	if telemetry == nil {
		return nil, errors.New("monitor: nil telemetry")
	}
	if registry == nil {
		return nil, errors.New("monitor: nil attribute store")
	}
	if reconciler == nil {
		return nil, errors.New("monitor: nil reconciler")
	}
	m := &Monitor{
		telemetry:  telemetry,
		registry:   registry,
		reconciler: reconciler,
		notifier:   notify.Nop{},
		logger:     slog.Default(),
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Poll runs one monitoring cycle for the channel. An empty telemetry window is
// reported as PollNoData with a nil error.
func (m *Monitor) Poll(ctx context.Context, ch masterdata.MonitorChannel) (PollResult, error) {
	start := m.clock.Now()
	kind := kindPassThrough
	if ch.IsCounter() {
		kind = kindCounter
	}
	var (
		result PollResult
		err    error
	)
	if kind == kindCounter {
		result, err = m.pollCounter(ctx, ch)
	} else {
		result, err = m.pollValue(ctx, ch)
	}
	outcome := string(result.Status)
	if err != nil {
		outcome = metrics.ResultError
	}
	metrics.ObservePoll(kind, outcome, m.clock.Now().Sub(start))
	return result, err
}

func (m *Monitor) pollCounter(ctx context.Context, ch masterdata.MonitorChannel) (PollResult, error) {
	result := PollResult{Channel: ch.Name, AssetID: ch.AssetID}
	logger := m.logger.With("channel", ch.Name, "asset_id", ch.AssetID, "attribute", ch.Attribute)

	rows, err := m.telemetry.Series(ctx, monitoring.SeriesQuery{
		Database:    ch.Database,
		Measurement: ch.Measurement,
		Fields:      ch.Counter.Fields,
		Interval:    ch.Interval,
	})
	if errors.Is(err, monitoring.ErrNoData) {
		logger.Debug("no telemetry in window", "interval", ch.Interval)
		result.Status = PollNoData
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("monitor: series %s: %w", ch.Name, err)
	}
	fresh, err := monitoring.CountRisingEdges(monitoring.ActivityFlags(rows, ch.Counter.Fields, ch.Counter.ThresholdPct))
	if errors.Is(err, monitoring.ErrNoData) {
		result.Status = PollNoData
		return result, nil
	}
	if err != nil {
		return result, err
	}

	current, err := m.registry.GetAttribute(ctx, ch.AssetID, ch.Attribute)
	if err != nil {
		return result, fmt.Errorf("monitor: read %s.%s: %w", ch.AssetID, ch.Attribute, err)
	}
	decision, err := m.reconciler.Decide(ctx, ch.AssetID, fresh, current)
	if err != nil {
		return result, err
	}
	result.Decision = &decision
	if !decision.Publish {
		logger.Debug("counter unchanged", "fresh", fresh, "checkpoint", decision.Checkpoint)
		result.Status = PollUnchanged
		result.Value = decision.RegistryCurrent
		return result, nil
	}

	err = m.reconciler.Apply(ctx, decision, func(ctx context.Context, value int64) error {
		return m.registry.SetAttribute(ctx, ch.AssetID, ch.Attribute, value)
	})
	if errors.Is(err, ErrSuperseded) {
		logger.Debug("counter already published by a concurrent poll", "fresh", decision.Fresh)
		result.Status = PollUnchanged
		result.Value = decision.RegistryCurrent
		return result, nil
	}
	if err != nil {
		return result, err
	}
	result.Status = PollPublished
	result.Value = decision.Value
	logger.Info("counter published",
		"value", decision.Value,
		"delta", decision.Delta,
		"fresh", decision.Fresh,
		"first_run", decision.FirstRun,
	)
	m.notifier.Notify(ctx, notify.Event{
		Type:      notify.EventCounterPublished,
		At:        m.clock.Now(),
		Channel:   ch.Name,
		AssetID:   ch.AssetID,
		Attribute: ch.Attribute,
		Value:     decision.Value,
	})
	return result, nil
}

func (m *Monitor) pollValue(ctx context.Context, ch masterdata.MonitorChannel) (PollResult, error) {
	result := PollResult{Channel: ch.Name, AssetID: ch.AssetID}
	value, err := m.telemetry.Latest(ctx, monitoring.LatestQuery{
		Database:    ch.Database,
		Measurement: ch.Measurement,
		Field:       ch.Field,
		Interval:    ch.Interval,
		SalIndex:    ch.SalIndex,
	})
	if errors.Is(err, monitoring.ErrNoData) || (err == nil && value == nil) {
		m.logger.Debug("no telemetry in window", "channel", ch.Name, "interval", ch.Interval)
		result.Status = PollNoData
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("monitor: latest %s: %w", ch.Name, err)
	}
	value = publishValue(value)
	if err := m.registry.SetAttribute(ctx, ch.AssetID, ch.Attribute, value); err != nil {
		return result, fmt.Errorf("monitor: write %s.%s: %w", ch.AssetID, ch.Attribute, err)
	}
	result.Status = PollPublished
	result.Value = value
	m.logger.Info("value published", "channel", ch.Name, "asset_id", ch.AssetID, "attribute", ch.Attribute, "value", value)
	return result, nil
}

// publishValue sends whole numbers as integers so integer CMMS attributes accept
// them. Other values are forwarded unchanged.
func publishValue(value any) any {
	if _, isString := value.(string); isString {
		return value
	}
	f, ok := monitoring.Float(value)
	if !ok {
		return value
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// PollAll polls every channel once, in order, and returns per-channel results.
// Errors are collected and do not stop the pass.
func (m *Monitor) PollAll(ctx context.Context, channels []masterdata.MonitorChannel) ([]PollResult, error) {
	results := make([]PollResult, 0, len(channels))
	var errs []error
	for _, ch := range channels {
		res, err := m.Poll(ctx, ch)
		if err != nil {
			errs = append(errs, err)
			m.logger.Error("poll failed", "channel", ch.Name, "asset_id", ch.AssetID, "error", err)
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// ChannelTask wraps a channel poll as a scheduler task.
func (m *Monitor) ChannelTask(ch masterdata.MonitorChannel) Task {
	period := ch.Period
	if period <= 0 {
		period = masterdata.DefaultPeriod
	}
	return Task{
		Name:   "channel:" + ch.Name,
		Period: period,
		Run: func(ctx context.Context) error {
			_, err := m.Poll(ctx, ch)
			return err
		},
	}
}
