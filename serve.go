package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apihttp "efd-cmms-bridge/internal/api/http"
	"efd-cmms-bridge/internal/auth"
	monitoringapp "efd-cmms-bridge/internal/monitoring/application"
	"efd-cmms-bridge/internal/observability/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the channel loops, the PM sweep and the status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
	cmd.Flags().String("http-addr", ":8080", "status API listen address (empty disables it)")
	cmd.Flags().Bool("no-sweep", false, "disable the PM sweep loop")
	_ = opts.v.BindPFlag("http.addr", cmd.Flags().Lookup("http-addr"))
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if noSweep, _ := cmd.Flags().GetBool("no-sweep"); noSweep {
			opts.cfg.Sweep.Enabled = false
		}
		return nil
	}
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger
	metrics.Init()

	c, err := buildComponents(ctx, cfg, logger, needs{telemetry: true, registry: true, store: true, channels: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("close components", "err", err)
		}
	}()

	scheduler, err := monitoringapp.NewScheduler(schedulerTasks(c), logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("scheduler started", "channels", c.channels.Len(), "sweep", cfg.Sweep.Enabled)
		return scheduler.Start(gctx)
	})

	if cfg.HTTP.Addr != "" {
		handler, err := statusHandler(c)
		if err != nil {
			return err
		}
		server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("http listening", "addr", cfg.HTTP.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func statusHandler(c *components) (http.Handler, error) {
	secret := []byte(c.cfg.HTTP.JWTSecret)
	anonymous := c.cfg.HTTP.AnonymousViewer
	if len(secret) == 0 {
		c.logger.Warn("http.jwt_secret unset: status API is read-only")
		anonymous = true
	}
	mw := auth.NewMiddleware(secret,
		auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil),
		auth.WithAnonymousViewer(anonymous))

	server, err := apihttp.NewServer(c.channels, c.reconciler, c.controller,
		apihttp.WithLogger(c.logger),
		apihttp.WithAuth(mw),
		apihttp.WithPoller(c.monitor),
		apihttp.WithReports(c.reports))
	if err != nil {
		return nil, err
	}
	return server.Handler(), nil
}
