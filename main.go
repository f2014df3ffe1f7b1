package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"probeserver/health"
	"probeserver/httpserver"
	"probeserver/internal/audit"
	"probeserver/internal/config"
	"probeserver/internal/metrics"
	"probeserver/internal/registry"
	"probeserver/notifier"
	"probeserver/scheduler"
)

const (
	jobsChannel     = "jobs"
	shutdownTimeout = 5 * time.Second
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file with PROBE_* and SCHEDULER_* settings")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	audit.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Fatal("probe host failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// host wires the scheduler, notifier, probe server and metrics endpoint of
// one process.
type host struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	notifier   *notifier.Notifier
	scheduler  *scheduler.Manager
	schedulers *registry.Set[health.Scheduler]
	notifiers  *registry.Set[health.Notifier]

	probe       *httpserver.Server
	metricz     *http.Server
	metricsAddr net.Addr
}

func newHost(cfg *config.Config, logger *zap.Logger) *host {
	h := &host{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics.New(true),
		schedulers: &registry.Set[health.Scheduler]{},
		notifiers:  &registry.Set[health.Notifier]{},
	}

	h.notifier = notifier.New(
		notifier.WithLogger(logger.Named("notifier")),
		notifier.WithMetrics(h.metrics),
	)
	h.scheduler = scheduler.NewManager(
		scheduler.WithLogger(logger.Named("scheduler")),
		scheduler.WithMetrics(h.metrics),
		scheduler.WithWorkers(cfg.SchedulerWorkers),
		scheduler.WithPollInterval(cfg.SchedulerPollInterval),
		scheduler.WithMaxAttempts(cfg.SchedulerMaxAttempts),
		scheduler.WithEnqueueHook(h.announce),
	)
	h.notifier.Subscribe(func(msg notifier.Message) {
		if msg.Channel == jobsChannel {
			h.scheduler.Wake()
		}
	})

	h.probe = httpserver.New(
		health.NewResponder(h.schedulers, h.notifiers),
		httpserver.Config{
			Address:         cfg.BindAddress,
			Port:            cfg.Port,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			AllowedNetworks: cfg.AllowedNetworks,
		},
		httpserver.WithLogger(logger.Named("probe")),
		httpserver.WithMetrics(h.metrics),
	)
	return h
}

// announce tells listeners a job was queued so idle schedulers wake up.
func (h *host) announce(job scheduler.Job) {
	if err := h.notifier.Publish(notifier.Message{Channel: jobsChannel, Payload: job.ID}); err != nil {
		h.logger.Debug("job notification not sent", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (h *host) start() error {
	h.notifier.Listen()
	h.notifiers.Add(h.notifier)
	h.scheduler.Start()
	h.schedulers.Add(h.scheduler)

	if err := h.probe.Start(); err != nil {
		h.scheduler.Stop()
		h.notifier.Stop()
		return err
	}
	audit.Log("probe server bound to %s", h.probe.Addr())

	if h.cfg.MetricsAddr != "" {
		srv, addr, err := startMetricsServer(h.cfg.MetricsAddr, h.metrics.Registry, h.logger)
		if err != nil {
			h.probe.Stop()
			h.scheduler.Stop()
			h.notifier.Stop()
			return err
		}
		h.metricz = srv
		h.metricsAddr = addr
		h.logger.Info("metrics server listening", zap.Stringer("addr", addr))
	}
	return nil
}

// stop takes the probe down first so supervisors stop routing to this
// process before its workers wind down.
func (h *host) stop(ctx context.Context) {
	if err := h.probe.Shutdown(ctx); err != nil {
		h.logger.Warn("probe connections still open at shutdown", zap.Error(err))
	}
	h.scheduler.Stop()
	h.notifier.Stop()
	if h.metricz != nil {
		if err := h.metricz.Shutdown(ctx); err != nil {
			h.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, ready chan<- net.Addr) error {
	h := newHost(cfg, logger)
	if err := h.start(); err != nil {
		return err
	}
	if ready != nil {
		ready <- h.probe.Addr()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	h.stop(shutdownCtx)
	return nil
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger *zap.Logger) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv, ln.Addr(), nil
}
