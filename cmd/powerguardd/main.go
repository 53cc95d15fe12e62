// Command powerguardd runs the repowerd decision engine standalone,
// driving one built-in session against inert sinks. Structure mirrors
// client/doublezerod/cmd/doublezerod/main.go: flags, a JSON slog logger,
// an optional Prometheus metrics listener, signal.NotifyContext for
// graceful shutdown, then daemon construction and Run.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ubports/repowerd/internal/adapters/logging"
	"github.com/ubports/repowerd/internal/adapters/noop"
	"github.com/ubports/repowerd/internal/config"
	"github.com/ubports/repowerd/internal/core"
)

var (
	configPath          = flag.String("config", "", "path to a YAML config file; defaults are used if unset")
	verbose             = flag.Bool("v", false, "enable debug logging")
	metricsEnable       = flag.Bool("metrics-enable", false, "serve Prometheus metrics")
	metricsAddr         = flag.String("metrics-addr", "127.0.0.1:9102", "address for the metrics listener")
	defaultSessionID    = flag.String("session-id", "default", "id of the single built-in session")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("powerguardd exited with error", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := config.Config{
		InactivityTimeout:        core.DefaultInactivityTimeout,
		ReducedInactivityTimeout: core.DefaultReducedInactivityTimeout,
		DimBeforeOffDuration:     core.DefaultDimBeforeOffDuration,
		TurnOnDisplayAtStartup:   true,
	}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating default config: %w", err)
	}

	if *metricsEnable {
		go serveMetrics(logger, *metricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timer := core.NewClockworkTimer(clockwork.NewRealClock(), logger.With("component", "timer"))

	sinks := noop.Sinks{}
	display := logging.Display{Next: sinks, Log: logger.With("component", "display")}
	power := logging.SystemPower{Next: sinks, Log: logger.With("component", "system_power")}
	displaySink := logging.DisplayEventSink{Next: sinks, Log: logger.With("component", "display_event_sink")}

	machine := core.NewStateMachine(*defaultSessionID, cfg.StateMachineConfig(), core.StateMachineDeps{
		Timer:       timer,
		Display:     display,
		Brightness:  sinks,
		DisplaySink: displaySink,
		Modem:       sinks,
		Perf:        sinks,
		ButtonSink:  sinks,
		Proximity:   sinks,
		Power:       power,
	}, logger.With("component", "statemachine"))
	machine.Start()

	adapter := core.NewEventAdapter(machine, power)

	tracker := &noop.StaticSessionTracker{SessionID: *defaultSessionID}

	daemon := core.NewDaemon(cfg.DaemonConfig(), core.DaemonDeps{
		Timer:          timer,
		SessionTracker: tracker,
	}, logger.With("component", "daemon"))

	if err := daemon.AddSession(&core.Session{
		ID:      *defaultSessionID,
		Type:    core.SessionTypeCompatible,
		Machine: machine,
		Adapter: adapter,
	}); err != nil {
		return fmt.Errorf("adding session: %w", err)
	}

	logger.Info("powerguardd starting", "session_id", *defaultSessionID)
	return daemon.Run(ctx)
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "err", err)
	}
}
