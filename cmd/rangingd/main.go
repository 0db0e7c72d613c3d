// rangingd -- reference host for the ranging core.
//
// It wires internal/ranging's session kernels to a WebSocket-backed OOB
// transport, serves a read-only JSON introspection API, and exposes
// Prometheus metrics. It is the integration-test/local-experimentation
// host named in spec section 10; a real device deployment embeds
// internal/ranging directly instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/multirange/core/internal/config"
	"github.com/multirange/core/internal/ranging/adapter"
	"github.com/multirange/core/internal/ranging/engine"
	"github.com/multirange/core/internal/ranging/fusion"
	rangingmetrics "github.com/multirange/core/internal/ranging/metrics"
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/oob"
	rangingserver "github.com/multirange/core/internal/ranging/server"
	"github.com/multirange/core/internal/ranging/session"
	"github.com/multirange/core/internal/ranging/tech"
	appversion "github.com/multirange/core/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("rangingd"))
		return 0
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("rangingd starting",
		slog.String("version", appversion.Version),
		slog.String("server_addr", cfg.Server.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.String("ranging_mode", cfg.Ranging.Mode),
	)

	reg := prometheus.NewRegistry()
	metricsCollector := rangingmetrics.NewCollector(reg)

	rd, err := newRangingDaemon(cfg, logger, metricsCollector)
	if err != nil {
		logger.Error("failed to build ranging daemon",
			slog.String("error", err.Error()),
		)
		return 1
	}

	if err := runServers(cfg, rd, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("rangingd exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("rangingd stopped")
	return 0
}

// -------------------------------------------------------------------------
// Ranging daemon assembly
// -------------------------------------------------------------------------

// rangingDaemon bundles the long-lived ranging-core objects rangingd
// drives: the engines/kernels for locally-initiated and remotely-accepted
// peers, the OOB transport, and the introspection registry.
type rangingDaemon struct {
	logger *slog.Logger

	caps model.LocalCapabilities
	mode engine.Mode

	initiatorEngine *engine.Engine
	initiatorKernel *session.Kernel
	initiator       *oob.Initiator

	responderEngine *engine.Engine
	responderKernel *session.Kernel
	responderListen *oob.Listener
	responder       *oob.Responder

	registry *rangingserver.KernelRegistry

	initiatorPeers []model.RangingDevice
}

func newRangingDaemon(cfg *config.Config, logger *slog.Logger, metricsCollector *rangingmetrics.Collector) (*rangingDaemon, error) {
	caps, err := cfg.Ranging.LocalCapabilities()
	if err != nil {
		return nil, fmt.Errorf("local capabilities: %w", err)
	}

	mode, err := cfg.Ranging.EngineMode()
	if err != nil {
		return nil, fmt.Errorf("engine mode: %w", err)
	}

	sessCfg, err := cfg.Ranging.SessionConfig()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	initiatorEngine, err := engine.New(engine.Config{Local: caps, Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("build initiator engine: %w", err)
	}
	responderEngine, err := engine.New(engine.Config{Local: caps, Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("build responder engine: %w", err)
	}

	metricsListener := &metricsSessionListener{collector: metricsCollector, logger: logger}
	kernelCfg := session.Config{
		SessionConfig: sessCfg,
		PrimerConfig:  fusion.DefaultPrimerConfig(),
		NewFuser:      func() fusion.DataFuser { return fusion.NewPassthrough() },
	}
	initiatorKernel := session.New(kernelCfg, metricsListener, session.WithLogger(logger.With(slog.String("kernel", "initiator"))))
	responderKernel := session.New(kernelCfg, metricsListener, session.WithLogger(logger.With(slog.String("kernel", "responder"))))

	addressOf, peers, err := peerAddressTable(cfg.Peers)
	if err != nil {
		return nil, fmt.Errorf("peer table: %w", err)
	}

	localDevice := model.RandomRangingDevice()
	dialer := oob.NewWebSocketDialer(addressOf, localDevice)
	initiator := oob.NewInitiator(dialer, initiatorEngine, initiatorKernel,
		oob.WithInitiatorTimeout(cfg.Ranging.OOBCapabilityTimeout),
		oob.WithInitiatorLogger(logger.With(slog.String("component", "oob-initiator"))),
	)

	listener := oob.NewListener(cfg.Server.OOBAddr)
	responder := oob.NewResponder(listener, func() model.LocalCapabilities { return caps }, responderKernel, referenceAdapterFactory,
		oob.WithResponderTimeout(cfg.Ranging.OOBSetConfigTimeout),
		oob.WithResponderLogger(logger.With(slog.String("component", "oob-responder"))),
	)

	registry := rangingserver.NewKernelRegistry()
	registry.Put("initiator", initiatorKernel)
	registry.Put("responder", responderKernel)

	return &rangingDaemon{
		logger:          logger,
		caps:            caps,
		mode:            mode,
		initiatorEngine: initiatorEngine,
		initiatorKernel: initiatorKernel,
		initiator:       initiator,
		responderEngine: responderEngine,
		responderKernel: responderKernel,
		responderListen: listener,
		responder:       responder,
		registry:        registry,
		initiatorPeers:  peers,
	}, nil
}

// metricsSessionListener adapts session.Listener events onto the
// Prometheus collector (spec section 10's "injected via functional
// options" metrics wiring, simplified to a single shared listener since
// rangingd has no per-session metrics fan-out requirement).
type metricsSessionListener struct {
	collector *rangingmetrics.Collector
	logger    *slog.Logger
}

func (l *metricsSessionListener) OnConfigFinalized(_ []model.TechnologyConfig) {
	l.collector.SessionStarted()
}

func (l *metricsSessionListener) OnPeerStarted(_ model.RangingDevice, technology tech.Technology) {
	l.collector.PeerActive(technology.String())
}

func (l *metricsSessionListener) OnPeerStopped(_ model.RangingDevice, technology tech.Technology, _ model.Reason) {
	l.collector.PeerInactive(technology.String())
}

func (l *metricsSessionListener) OnRangingData(_ model.RangingDevice, _ model.RangingData) {}

func (l *metricsSessionListener) OnSessionClosed(_ model.Reason) {
	l.collector.SessionStopped()
}

// referenceAdapterFactory builds Fake adapters for every TechnologyConfig
// the session kernel starts. Real UWB/CS/RTT/RSSI radio backends are
// vendor/OS-specific and out of scope (spec section 1); rangingd is the
// reference/integration-test host, not a production device.
func referenceAdapterFactory(cfg model.TechnologyConfig) (adapter.Adapter, error) {
	return adapter.NewFake(false, false), nil
}

// peerAddressTable builds the dial-address lookup and the initiator-role
// peer list from the declarative peer configuration.
func peerAddressTable(peers []config.PeerConfig) (func(model.RangingDevice) string, []model.RangingDevice, error) {
	addrs := make(map[model.RangingDevice]string, len(peers))
	var initiatorPeers []model.RangingDevice

	for _, pc := range peers {
		device, err := pc.DeviceID()
		if err != nil {
			return nil, nil, err
		}
		role, err := pc.DeviceRole()
		if err != nil {
			return nil, nil, err
		}
		addrs[device] = "ws://" + pc.Address + "/oob"
		if role == model.RoleInitiator {
			initiatorPeers = append(initiatorPeers, device)
		}
	}

	addressOf := func(peer model.RangingDevice) string { return addrs[peer] }
	return addressOf, initiatorPeers, nil
}

// -------------------------------------------------------------------------
// Server orchestration
// -------------------------------------------------------------------------

func runServers(
	cfg *config.Config,
	d *rangingDaemon,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	introspectionSrv := newIntrospectionServer(d.registry, logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	startHTTPServers(gCtx, g, cfg, introspectionSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	g.Go(func() error {
		return d.responderListen.Serve(gCtx)
	})
	g.Go(func() error {
		return d.responder.Serve(gCtx)
	})

	if len(d.initiatorPeers) > 0 {
		g.Go(func() error {
			return d.initiator.Run(gCtx, d.initiatorPeers, referenceAdapterFactory)
		})
	}

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, d, logger, introspectionSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	introspectionSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		logger.Info("introspection server listening", slog.String("addr", cfg.Server.Addr))
		return listenAndServe(ctx, &lc, introspectionSrv, cfg.Server.Addr)
	})
}

func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd integration -- sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP reload -- log level only. Declarative peer reconciliation would
// need the OOB Initiator to add a peer to an already-running capability
// exchange, which it does not support (Run drives one batch to
// completion); a peer list change currently requires a restart.
// -------------------------------------------------------------------------

func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(
	ctx context.Context,
	d *rangingDaemon,
	logger *slog.Logger,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	d.initiator.Stop(stopCtx, model.ReasonLocalRequest)
	d.responderKernel.Stop(model.ReasonLocalRequest)
	stopCancel()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Server setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newIntrospectionServer builds the JSON introspection API's http.Server,
// served cleartext HTTP/2 (h2c) exactly like the teacher's control API.
func newIntrospectionServer(registry *rangingserver.KernelRegistry, logger *slog.Logger) *http.Server {
	handler := rangingserver.NewH2C(rangingserver.New(registry, logger))
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// -------------------------------------------------------------------------
// Config / logging
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload. Output rotates through
// lumberjack when cfg.File is set; otherwise it goes to stdout.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var w = io.Writer(os.Stdout)
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
