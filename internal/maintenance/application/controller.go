package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	maintenance "efd-cmms-bridge/internal/maintenance/domain"
	"efd-cmms-bridge/internal/notify"
	"efd-cmms-bridge/internal/observability/metrics"
)

// ErrSweepInProgress is returned when a sweep is requested while one runs.
var ErrSweepInProgress = errors.New("maintenance: sweep in progress")

// Result is the outcome of one configuration in a sweep.
type Result struct {
	ConfigID  string              `json:"config_id"`
	AssetID   string              `json:"asset_id,omitempty"`
	Attribute string              `json:"attribute,omitempty"`
	Value     any                 `json:"value,omitempty"`
	Outcome   maintenance.Outcome `json:"outcome"`
	PMID      string              `json:"pm_id,omitempty"`
	Error     string              `json:"error,omitempty"`
	// Err wraps maintenance.ErrWorkflow and the cause on failed outcomes.
	Err error `json:"-"`
}

// Report summarizes a sweep.
type Report struct {
	SweepID    string                      `json:"sweep_id"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
	Configs    int                         `json:"configs"`
	Counts     map[maintenance.Outcome]int `json:"counts"`
	Results    []Result                    `json:"results"`
	Error      string                      `json:"error,omitempty"`
}

// Created returns the ids of PMs created in the sweep.
func (r Report) Created() []string {
	var ids []string
	for _, res := range r.Results {
		if res.PMID != "" && (res.Outcome == maintenance.OutcomeCreated || res.Outcome == maintenance.OutcomeAdvanceFailed) {
			ids = append(ids, res.PMID)
		}
	}
	return ids
}

// Controller runs the PM lifecycle for every registry trigger configuration.
type Controller struct {
	registry  Registry
	channels  ChannelLookup
	evaluator *Evaluator
	notifier  notify.Notifier
	logger    *slog.Logger
	clock     Clock
	location  *time.Location

	sweeping sync.Mutex
	mu       sync.RWMutex
	last     *Report
}

// ControllerOption customizes the controller.
type ControllerOption func(*Controller)

// WithNotifier sets the event notifier.
func WithNotifier(notifier notify.Notifier) ControllerOption {
	return func(c *Controller) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) ControllerOption {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLocation sets the site timezone of PM execution dates.
func WithLocation(loc *time.Location) ControllerOption {
	return func(c *Controller) {
		if loc != nil {
			c.location = loc
		}
	}
}

// NewController constructs a controller.
func NewController(registry Registry, channels ChannelLookup, opts ...ControllerOption) (*Controller, error) {
	if registry == nil {
		return nil, errors.New("maintenance: nil registry")
	}
	if channels == nil {
		return nil, errors.New("maintenance: nil channel lookup")
	}
	c := &Controller{
		registry: registry,
		channels: channels,
		notifier: notify.Nop{},
		logger:   slog.Default(),
		clock:    systemClock{},
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.evaluator = NewEvaluator(c.logger)
	return c, nil
}

// Sweep evaluates every trigger configuration once. Failures of single
// configurations are recorded in the report; only a failed configuration
// listing is returned as an error.
func (c *Controller) Sweep(ctx context.Context) (Report, error) {
	if !c.sweeping.TryLock() {
		return Report{}, ErrSweepInProgress
	}
	defer c.sweeping.Unlock()

	report := Report{
		SweepID:   uuid.NewString(),
		StartedAt: c.clock.Now(),
		Counts:    make(map[maintenance.Outcome]int),
	}
	logger := c.logger.With("sweep_id", report.SweepID)

	configs, err := c.registry.ListTriggerConfigs(ctx)
	if err != nil {
		err = fmt.Errorf("maintenance: list trigger configs: %w", err)
		report.Error = err.Error()
		report.FinishedAt = c.clock.Now()
		metrics.ObserveSweep(err, report.FinishedAt.Sub(report.StartedAt))
		c.remember(report)
		return report, err
	}
	report.Configs = len(configs)
	logger.Info("trigger configs fetched", "count", len(configs))

	for _, cfg := range configs {
		if ctx.Err() != nil {
			break
		}
		res := c.evaluate(ctx, logger, report.SweepID, cfg)
		report.Results = append(report.Results, res)
		report.Counts[res.Outcome]++
	}
	report.FinishedAt = c.clock.Now()
	metrics.ObserveSweep(ctx.Err(), report.FinishedAt.Sub(report.StartedAt))
	c.remember(report)
	logger.Info("sweep finished", "configs", report.Configs, "created", len(report.Created()))
	return report, ctx.Err()
}

// Evaluate runs the lifecycle for a single configuration.
func (c *Controller) Evaluate(ctx context.Context, cfg maintenance.TriggerConfig) Result {
	return c.evaluate(ctx, c.logger, "", cfg)
}

// LastReport returns the most recent sweep report.
func (c *Controller) LastReport() (Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}

func (c *Controller) remember(report Report) {
	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()
}

func (c *Controller) evaluate(ctx context.Context, logger *slog.Logger, sweepID string, cfg maintenance.TriggerConfig) (res Result) {
	res = Result{ConfigID: cfg.ID, AssetID: cfg.AssetID}
	logger = logger.With("config_id", cfg.ID, "asset_id", cfg.AssetID)
	defer func() { metrics.IncPMOutcome(string(res.Outcome)) }()

	if cfg.AssetID == "" {
		logger.Warn("trigger config has no related asset")
		res.Outcome = maintenance.OutcomeMissingAsset
		return res
	}
	ch, ok := c.channels.ByAsset(cfg.AssetID)
	if !ok {
		logger.Warn("no monitored channel for asset")
		res.Outcome = maintenance.OutcomeMissingChannel
		return res
	}
	res.Attribute = ch.Attribute
	logger = logger.With("attribute", ch.Attribute)

	value, err := c.registry.GetAttribute(ctx, cfg.AssetID, ch.Attribute)
	if err != nil {
		logger.Warn("read asset attribute", "error", err)
		return c.fail(ctx, res, sweepID, maintenance.OutcomeValueUnavailable, err)
	}
	res.Value = value

	if !c.evaluator.IsTriggered(value, cfg) {
		res.Outcome = maintenance.OutcomeNotTriggered
		return res
	}
	logger.Info("trigger met", "value", value, "trigger", cfg.Trigger.String())

	instances, err := c.registry.ListPMInstances(ctx)
	if err != nil {
		logger.Error("check existing PM", "value", value, "error", err)
		return c.fail(ctx, res, sweepID, maintenance.OutcomeCheckFailed, err)
	}
	for _, pm := range instances {
		if pm.ConfigID == cfg.ID && pm.Open() {
			logger.Info("open PM exists", "pm_id", pm.ID, "status", pm.Status)
			res.Outcome = maintenance.OutcomeOpenPM
			res.PMID = pm.ID
			return res
		}
	}

	detail, err := c.registry.GetTriggerConfig(ctx, cfg.ID)
	if err != nil {
		logger.Error("fetch trigger config detail", "value", value, "error", err)
		return c.fail(ctx, res, sweepID, maintenance.OutcomeCreateFailed, err)
	}
	pmID, err := c.registry.CreatePM(ctx, detail)
	if err == nil && pmID == "" {
		err = errors.New("registry returned no PM id")
	}
	if err != nil {
		logger.Error("create PM", "value", value, "error", err)
		return c.fail(ctx, res, sweepID, maintenance.OutcomeCreateFailed, err)
	}
	res.PMID = pmID
	logger = logger.With("pm_id", pmID)
	logger.Info("PM created")
	c.notifier.Notify(ctx, c.event(notify.EventPMCreated, sweepID, res, ""))

	if err := c.advance(ctx, pmID); err != nil {
		logger.Error("advance PM", "value", value, "error", err)
		return c.fail(ctx, res, sweepID, maintenance.OutcomeAdvanceFailed, err)
	}
	logger.Info("PM advanced", "status", maintenance.AdvanceStatus)
	res.Outcome = maintenance.OutcomeCreated
	c.notifier.Notify(ctx, c.event(notify.EventPMAdvanced, sweepID, res, ""))
	return res
}

func (c *Controller) advance(ctx context.Context, pmID string) error {
	activities, err := c.registry.ListPMActivities(ctx, pmID)
	if err != nil {
		return err
	}
	if len(activities) == 0 {
		return maintenance.ErrNoActivities
	}
	return c.registry.AdvancePM(ctx, pmID, maintenance.AdvanceRequest{
		ActivityID:    activities[0].ID,
		Status:        maintenance.AdvanceStatus,
		ExecutionDate: c.clock.Now().In(c.location).Format("2006-01-02"),
	})
}

func (c *Controller) fail(ctx context.Context, res Result, sweepID string, outcome maintenance.Outcome, err error) Result {
	res.Outcome = outcome
	res.Err = fmt.Errorf("%w: %s: %w", maintenance.ErrWorkflow, outcome, err)
	res.Error = res.Err.Error()
	if outcome == maintenance.OutcomeValueUnavailable {
		return res
	}
	c.notifier.Notify(ctx, c.event(notify.EventPMFailed, sweepID, res, res.Error))
	return res
}

func (c *Controller) event(eventType notify.EventType, sweepID string, res Result, message string) notify.Event {
	return notify.Event{
		Type:      eventType,
		At:        c.clock.Now(),
		SweepID:   sweepID,
		AssetID:   res.AssetID,
		Attribute: res.Attribute,
		ConfigID:  res.ConfigID,
		PMID:      res.PMID,
		Value:     res.Value,
		Message:   message,
	}
}
