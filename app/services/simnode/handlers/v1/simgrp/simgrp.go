// Package simgrp maintains the group of handlers for driving the simulation.
package simgrp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/powsim/business/web/errs"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/miner"
	"github.com/ardanlabs/powsim/foundation/blockchain/simulator"
	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/ardanlabs/powsim/foundation/events"
	"github.com/ardanlabs/powsim/foundation/validate"
	"github.com/ardanlabs/powsim/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Websocket timings for the events stream.
const (
	writeWait    = 10 * time.Second
	pingInterval = time.Second
)

// Handlers manages the set of simulation endpoints.
type Handlers struct {
	Log      *zap.SugaredLogger
	Sim      *simulator.Simulator
	Evts     *events.Events
	Sink     event.Sink
	Defaults state.Config
	WS       websocket.Upgrader
}

// Start begins a new simulation session.
func (h Handlers) Start(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req StartRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	cfg := req.toConfig(h.Defaults)

	h.Log.Infow("start simulation", "traceid", web.GetTraceID(ctx), "miners", cfg.Miners, "hash_rate", cfg.HashRate, "difficulty", cfg.Difficulty)
	if err := h.Sim.Start(cfg, h.Sink); err != nil {
		return err
	}

	return web.Respond(ctx, w, h.Sim.Stats(), http.StatusOK)
}

// Stop terminates the current session.
func (h Handlers) Stop(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Sim.Stop()
	return web.Respond(ctx, w, h.Sim.Stats(), http.StatusOK)
}

// Pause suspends the miners of the current session.
func (h Handlers) Pause(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Sim.Pause()
	return web.Respond(ctx, w, h.Sim.Stats(), http.StatusOK)
}

// Resume continues a paused session.
func (h Handlers) Resume(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Sim.Resume()
	return web.Respond(ctx, w, h.Sim.Stats(), http.StatusOK)
}

// Reset discards the current session.
func (h Handlers) Reset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Sim.Reset()
	return web.Respond(ctx, w, h.Sim.Stats(), http.StatusOK)
}

// SubmitData replaces the payload of the blocks being mined.
func (h Handlers) SubmitData(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req DataRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	h.Sim.SubmitData(req.Data)

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "data submitted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SetMinerRate changes the hash rate of a single miner.
func (h Handlers) SetMinerRate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	minerID := web.Param(r, "id")

	var req RateRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	if err := h.Sim.SetMinerRate(minerID, *req.Rate); err != nil {
		switch {
		case errors.Is(err, state.ErrMinerNotFound):
			return errs.NewTrusted(err, http.StatusNotFound)
		case errors.Is(err, miner.ErrInvalidHashRate):
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return err
	}

	resp := struct {
		Miner string  `json:"miner"`
		Rate  float64 `json:"rate"`
	}{
		Miner: minerID,
		Rate:  *req.Rate,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Stats returns a snapshot of the current session.
func (h Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Sim.Stats(), http.StatusOK)
}

// Chain returns the canonical chain of the current session.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.Sim.Canonical()
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Forks returns the fork tree of the current session.
func (h Handlers) Forks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tree := h.Sim.ForkTree()
	if tree == nil {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, tree, http.StatusOK)
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Register before the handshake completes so the client sees every
	// event sent after it connected.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	h.Log.Infow("events", "traceid", v.TraceID, "status", "subscriber connected", "remoteaddr", r.RemoteAddr)
	defer h.Log.Infow("events", "traceid", v.TraceID, "status", "subscriber disconnected")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return nil
			}

		case <-ticker.C:
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}
