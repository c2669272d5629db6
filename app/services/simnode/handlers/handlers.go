// Package handlers manages the different versions of the API.
package handlers

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/ardanlabs/powsim/app/services/simnode/handlers/debug/checkgrp"
	v1 "github.com/ardanlabs/powsim/app/services/simnode/handlers/v1"
	"github.com/ardanlabs/powsim/app/services/simnode/handlers/viewergrp"
	"github.com/ardanlabs/powsim/business/web/mid"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/simulator"
	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/ardanlabs/powsim/foundation/events"
	"github.com/ardanlabs/powsim/foundation/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Build      string
	Shutdown   chan os.Signal
	Log        *zap.SugaredLogger
	Sim        *simulator.Simulator
	Evts       *events.Events
	Sink       event.Sink
	Defaults   state.Config
	CORSOrigin string
}

// PublicMux constructs a http.Handler with all application routes defined.
func PublicMux(cfg MuxConfig) (http.Handler, error) {
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}

	// Every route shares the logging, error, metrics, cors and panic middleware.
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Metrics(),
		mid.Cors(cfg.CORSOrigin),
		mid.Panics(),
	)

	// Accept CORS 'OPTIONS' preflight requests so a browser dashboard on
	// another origin can drive the simulation.
	h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return nil
	}
	app.Handle(http.MethodOptions, "", "/*", h, mid.Cors(cfg.CORSOrigin))

	// Load the v1 routes.
	v1.Routes(app, v1.Config{
		Log:      cfg.Log,
		Sim:      cfg.Sim,
		Evts:     cfg.Evts,
		Sink:     cfg.Sink,
		Defaults: cfg.Defaults,
	})

	// Register the dashboard page for the website.
	vgh, err := viewergrp.New(cfg.Build)
	if err != nil {
		return nil, fmt.Errorf("loading dashboard: %w", err)
	}
	app.Handle(http.MethodGet, "", "/", vgh.Index)

	return app, nil
}

// DebugStandardLibraryMux registers the standard library debug routes on a
// private mux. The DefaultServeMux is never used so no imported package can
// register a handler on the debug port.
func DebugStandardLibraryMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Register all the standard library debug endpoints.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	return mux
}

// DebugMux adds the health checks and the prometheus scrape endpoint to the
// standard library debug routes.
func DebugMux(build string, log *zap.SugaredLogger, sim *simulator.Simulator) http.Handler {
	mux := DebugStandardLibraryMux()

	// Register debug check endpoints.
	cgh := checkgrp.Handlers{
		Build: build,
		Log:   log,
		Sim:   sim,
	}
	mux.HandleFunc("/debug/readiness", cgh.Readiness)
	mux.HandleFunc("/debug/liveness", cgh.Liveness)

	// Expose the prometheus collectors for scraping.
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
