// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/powsim/app/services/simnode/handlers/v1/simgrp"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/simulator"
	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/ardanlabs/powsim/foundation/events"
	"github.com/ardanlabs/powsim/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log      *zap.SugaredLogger
	Sim      *simulator.Simulator
	Evts     *events.Events
	Sink     event.Sink
	Defaults state.Config
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	sgh := simgrp.Handlers{
		Log:      cfg.Log,
		Sim:      cfg.Sim,
		Evts:     cfg.Evts,
		Sink:     cfg.Sink,
		Defaults: cfg.Defaults,
	}

	app.Handle(http.MethodPost, version, "/sim/start", sgh.Start)
	app.Handle(http.MethodPost, version, "/sim/stop", sgh.Stop)
	app.Handle(http.MethodPost, version, "/sim/pause", sgh.Pause)
	app.Handle(http.MethodPost, version, "/sim/resume", sgh.Resume)
	app.Handle(http.MethodPost, version, "/sim/reset", sgh.Reset)
	app.Handle(http.MethodPost, version, "/sim/data", sgh.SubmitData)
	app.Handle(http.MethodPut, version, "/sim/miners/:id/rate", sgh.SetMinerRate)
	app.Handle(http.MethodGet, version, "/sim/stats", sgh.Stats)
	app.Handle(http.MethodGet, version, "/sim/chain", sgh.Chain)
	app.Handle(http.MethodGet, version, "/sim/forks", sgh.Forks)
	app.Handle(http.MethodGet, version, "/events", sgh.Events)
}
