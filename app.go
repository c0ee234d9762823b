package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"efd-cmms-bridge/internal/cmmsadapter"
	"efd-cmms-bridge/internal/efdadapter"
	"efd-cmms-bridge/internal/logging"
	maintenanceapp "efd-cmms-bridge/internal/maintenance/application"
	masterdata "efd-cmms-bridge/internal/masterdata/domain"
	"efd-cmms-bridge/internal/masterdata/infrastructure/yamlfile"
	monitoringapp "efd-cmms-bridge/internal/monitoring/application"
	monitoring "efd-cmms-bridge/internal/monitoring/domain"
	"efd-cmms-bridge/internal/monitoring/infrastructure/file"
	"efd-cmms-bridge/internal/monitoring/infrastructure/memory"
	"efd-cmms-bridge/internal/monitoring/infrastructure/postgres"
	"efd-cmms-bridge/internal/monitoring/infrastructure/sqlite"
	"efd-cmms-bridge/internal/notify"
	"efd-cmms-bridge/internal/report"
)

// needs selects the collaborators a command builds.
type needs struct {
	telemetry bool
	registry  bool
	store     bool
	channels  bool
}

// components is the wired object graph shared by the commands.
type components struct {
	cfg        config
	logger     *slog.Logger
	location   *time.Location
	channels   *masterdata.ChannelSet
	cmms       *cmmsadapter.Client
	efd        *efdadapter.Client
	store      monitoring.CheckpointStore
	reconciler *monitoringapp.Reconciler
	notifier   notify.Notifier
	monitor    *monitoringapp.Monitor
	controller *maintenanceapp.Controller
	reports    *report.Builder

	closers []func() error
}

func newLogger(cfg logConfig) *slog.Logger {
	return logging.New(logging.Config{Level: cfg.Level, Format: cfg.Format, Output: os.Stderr})
}

func buildComponents(ctx context.Context, cfg config, logger *slog.Logger, n needs) (_ *components, err error) {
	c := &components{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if c.location, err = cfg.location(); err != nil {
		return nil, err
	}
	if n.channels || n.telemetry {
		if c.channels, err = yamlfile.Load(cfg.Channels.File); err != nil {
			return nil, err
		}
		logger.Info("channels loaded", "file", cfg.Channels.File, "count", c.channels.Len())
	}
	if n.store {
		if c.store, err = c.openStore(ctx); err != nil {
			return nil, err
		}
		var ordering monitoringapp.Ordering
		if ordering, err = monitoringapp.ParseOrdering(cfg.Reconcile.Ordering); err != nil {
			return nil, err
		}
		c.reconciler, err = monitoringapp.NewReconciler(c.store,
			monitoringapp.WithLocation(c.location),
			monitoringapp.WithOrdering(ordering))
		if err != nil {
			return nil, err
		}
	}
	if n.registry {
		if c.cmms, err = newCMMSClient(cfg.CMMS); err != nil {
			return nil, err
		}
		if c.notifier, err = c.buildNotifier(); err != nil {
			return nil, err
		}
		if c.channels != nil {
			c.controller, err = maintenanceapp.NewController(c.cmms, c.channels,
				maintenanceapp.WithNotifier(c.notifier),
				maintenanceapp.WithLogger(logger),
				maintenanceapp.WithLocation(c.location))
			if err != nil {
				return nil, err
			}
			var checkpoints report.CheckpointLister
			if c.reconciler != nil {
				checkpoints = c.reconciler
			}
			c.reports, err = report.NewBuilder(c.cmms, checkpoints, report.WithLogger(logger))
			if err != nil {
				return nil, err
			}
		}
	}
	if n.telemetry {
		if c.efd, err = newEFDClient(ctx, cfg.EFD); err != nil {
			return nil, err
		}
		if c.cmms == nil || c.reconciler == nil {
			return nil, errors.New("telemetry polling needs the registry and the checkpoint store")
		}
		c.monitor, err = monitoringapp.NewMonitor(c.efd, c.cmms, c.reconciler,
			monitoringapp.WithNotifier(c.notifier),
			monitoringapp.WithMonitorLogger(logger))
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Close releases stores and broker connections in reverse order.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *components) openStore(ctx context.Context) (monitoring.CheckpointStore, error) {
	cfg := c.cfg.Store
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		c.logger.Warn("memory checkpoint store: counters restart from zero on every start")
		return memory.NewCheckpointStore(), nil
	case "", "file":
		return file.NewCheckpointStore(cfg.Dir, c.location)
	case "sqlite":
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		return store, nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("store.dsn (PG_DSN) is required for the postgres store")
		}
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres open: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		store := postgres.NewCheckpointStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (c *components) buildNotifier() (notify.Notifier, error) {
	cfg := c.cfg.Notify
	var sinks []notify.Sink
	if cfg.WebhookURL != "" {
		sink, err := notify.NewWebhookSink(cfg.WebhookURL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.MQTT.Broker != "" {
		sink, err := notify.NewMQTTSink(notify.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      byte(cfg.MQTT.QoS),
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, sink.Close)
		sinks = append(sinks, sink)
	}
	if len(sinks) == 0 {
		return notify.Nop{}, nil
	}

	opts := []notify.Option{
		notify.WithLogger(c.logger),
		notify.WithDedupeWindow(cfg.DedupeWindow),
		notify.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.Template != "" {
		tpl, err := notify.NewTemplate(cfg.Template)
		if err != nil {
			return nil, err
		}
		opts = append(opts, notify.WithTemplate(tpl))
	}
	if len(cfg.Events) > 0 {
		types := make([]notify.EventType, 0, len(cfg.Events))
		for _, name := range cfg.Events {
			types = append(types, notify.EventType(strings.TrimSpace(name)))
		}
		opts = append(opts, notify.WithEventTypes(types...))
	}
	return notify.NewDispatcher(sinks, opts...)
}

func newCMMSClient(cfg cmmsConfig) (*cmmsadapter.Client, error) {
	return cmmsadapter.NewClient(cmmsadapter.Config{
		BaseURL:      cfg.BaseURL,
		AuthURL:      cfg.AuthURL,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Token:        cfg.Token,
		Timeout:      cfg.Timeout,
		AssetClass:   cfg.AssetClass,
		ConfigClass:  cfg.ConfigClass,
		ProcessClass: cfg.ProcessClass,
	})
}

func newEFDClient(ctx context.Context, cfg efdConfig) (*efdadapter.Client, error) {
	return efdadapter.NewClient(ctx, efdadapter.Config{
		Site:           cfg.Site,
		CredentialsURL: cfg.CredentialsURL,
		URL:            cfg.URL,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Timeout:        cfg.Timeout,
	})
}

// sweepTask runs the PM sweep on the scheduler. A sweep still running from
// an API request is not an error.
func sweepTask(controller *maintenanceapp.Controller, period time.Duration) monitoringapp.Task {
	return monitoringapp.Task{
		Name:   "pm-sweep",
		Period: period,
		Run: func(ctx context.Context) error {
			_, err := controller.Sweep(ctx)
			if errors.Is(err, maintenanceapp.ErrSweepInProgress) {
				return nil
			}
			return err
		},
	}
}

func schedulerTasks(c *components) []monitoringapp.Task {
	var tasks []monitoringapp.Task
	if c.monitor != nil {
		for _, ch := range c.channels.All() {
			tasks = append(tasks, c.monitor.ChannelTask(ch))
		}
	}
	if c.controller != nil && c.cfg.Sweep.Enabled {
		period := c.cfg.Sweep.Period
		if period <= 0 {
			period = time.Minute
		}
		tasks = append(tasks, sweepTask(c.controller, period))
	}
	return tasks
}
