package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/powsim/app/services/simnode/handlers"
	"github.com/ardanlabs/powsim/business/sys/metrics"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/simulator"
	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/ardanlabs/powsim/foundation/events"
	"github.com/ardanlabs/powsim/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("SIMNODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// The Sim values are the defaults for every session started through the
	// API. A request only overrides the fields it sets.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			CORSOrigin      string        `conf:"default:*"`
		}
		Sim struct {
			AutoStart        bool          `conf:"default:false"`
			Miners           int           `conf:"default:3"`
			HashRate         float64       `conf:"default:100"`
			Difficulty       uint          `conf:"default:3"`
			Data             string        `conf:"default:Hello Blockchain!"`
			NetworkDelay     time.Duration `conf:"default:100ms"`
			NetworkJitter    time.Duration `conf:"default:50ms"`
			TargetBlockTime  time.Duration `conf:"default:10s"`
			SampleCount      int           `conf:"default:5"`
			StillnessTimeout time.Duration `conf:"default:1m"`
			SweepInterval    time.Duration `conf:"default:5s"`
			PruneDepth       uint64        `conf:"default:10"`
			MiningCycle      time.Duration `conf:"default:50ms"`
			MaxFutureDrift   time.Duration `conf:"default:2m"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work blockchain simulation",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "SIMNODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Simulation Support

	defaults := state.Config{
		Miners:           cfg.Sim.Miners,
		HashRate:         cfg.Sim.HashRate,
		Difficulty:       cfg.Sim.Difficulty,
		Data:             cfg.Sim.Data,
		NetworkDelay:     cfg.Sim.NetworkDelay,
		NetworkJitter:    cfg.Sim.NetworkJitter,
		TargetBlockTime:  cfg.Sim.TargetBlockTime,
		SampleCount:      cfg.Sim.SampleCount,
		StillnessTimeout: cfg.Sim.StillnessTimeout,
		SweepInterval:    cfg.Sim.SweepInterval,
		PruneDepth:       cfg.Sim.PruneDepth,
		MiningCycle:      cfg.Sim.MiningCycle,
		MaxFutureDrift:   cfg.Sim.MaxFutureDrift,
	}

	// The simulation hands every event to this sink. For now, the events are
	// logged and sent to any websocket client that is connected into the
	// system through the events package.
	evts := events.New()
	sink := func(evt event.Event) error {
		log.Infow(evt.Message, "traceid", "00000000-0000-0000-0000-000000000000", "kind", evt.Kind)

		dropped, err := evts.Send(evt)
		if dropped > 0 {
			log.Warnw("events", "status", "slow subscribers", "dropped", dropped)
		}
		return err
	}

	// The simulator owns at most one session at a time and records every
	// session into the prometheus collectors.
	sim := simulator.New(log, metrics.NewSimulation())
	defer sim.Reset()

	if cfg.Sim.AutoStart {
		if err := sim.Start(defaults, sink); err != nil {
			return fmt.Errorf("starting simulation: %w", err)
		}
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The debug mux carries pprof, expvar, the health checks and the
	// prometheus collectors.
	debugMux := handlers.DebugMux(build, log, sim)

	// The debug listener is not part of the graceful shutdown.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// The signal package requires a buffered channel.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Buffered so the listener goroutine can exit if nobody reads the error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux, err := handlers.PublicMux(handlers.MuxConfig{
		Build:      build,
		Shutdown:   shutdown,
		Log:        log,
		Sim:        sim,
		Evts:       evts,
		Sink:       sink,
		Defaults:   defaults,
		CORSOrigin: cfg.Web.CORSOrigin,
	})
	if err != nil {
		return fmt.Errorf("constructing public mux: %w", err)
	}

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Stop the simulation before the subscribers go away.
		log.Infow("shutdown", "status", "stop simulation")
		sim.Reset()

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
