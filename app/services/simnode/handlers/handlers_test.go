package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/powsim/app/services/simnode/handlers"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/simulator"
	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/ardanlabs/powsim/foundation/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type node struct {
	sim    *simulator.Simulator
	evts   *events.Events
	server *httptest.Server
}

func newNode(t *testing.T) *node {
	t.Helper()

	log := zap.NewNop().Sugar()
	evts := events.New()
	sim := simulator.New(log, nil)

	sink := func(evt event.Event) error {
		_, err := evts.Send(evt)
		return err
	}

	mux, err := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      log,
		Sim:      sim,
		Evts:     evts,
		Sink:     sink,
		Defaults: state.Config{
			Difficulty:   8,
			NetworkDelay: time.Millisecond,
		},
	})
	require.NoError(t, err)

	n := node{
		sim:    sim,
		evts:   evts,
		server: httptest.NewServer(mux),
	}

	t.Cleanup(func() {
		sim.Reset()
		evts.Shutdown()
		n.server.Close()
	})

	return &n
}

func (n *node) do(t *testing.T, method string, path string, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, n.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func stats(t *testing.T, resp *http.Response) state.Stats {
	t.Helper()

	var s state.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func TestDashboard(t *testing.T) {
	n := newNode(t)

	resp := n.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestStartValidation(t *testing.T) {
	n := newNode(t)

	resp := n.do(t, http.MethodPost, "/v1/sim/start", `{"miners": 0}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body.Fields, "miners")

	resp = n.do(t, http.MethodPost, "/v1/sim/start", `{"miners": 2, "hash_rate": 1e11}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/v1/sim/start", `{"miners": 2, "unknown": true}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.False(t, n.sim.Stats().Running)
}

func TestSessionLifecycle(t *testing.T) {
	n := newNode(t)

	resp := n.do(t, http.MethodGet, "/v1/sim/chain", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/v1/sim/start", `{"miners": 2, "hash_rate": 10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s := stats(t, resp)
	require.True(t, s.Running)
	require.Len(t, s.Miners, 2)
	require.Equal(t, uint(8), s.Difficulty)
	require.Len(t, s.CanonicalBlocks, 1)

	resp = n.do(t, http.MethodGet, "/v1/sim/chain", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var blocks []json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&blocks))
	require.NotEmpty(t, blocks)

	resp = n.do(t, http.MethodGet, "/v1/sim/forks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/v1/sim/pause", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, stats(t, resp).Paused)

	resp = n.do(t, http.MethodPost, "/v1/sim/resume", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, stats(t, resp).Paused)

	resp = n.do(t, http.MethodPost, "/v1/sim/data", `{"data": "hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = n.do(t, http.MethodGet, "/v1/sim/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello", stats(t, resp).Data)

	resp = n.do(t, http.MethodPost, "/v1/sim/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, stats(t, resp).Running)
}

func TestSetMinerRate(t *testing.T) {
	n := newNode(t)

	resp := n.do(t, http.MethodPost, "/v1/sim/start", `{"miners": 2, "hash_rate": 10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = n.do(t, http.MethodPut, "/v1/sim/miners/miner_1/rate", `{"rate": 50}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = n.do(t, http.MethodPut, "/v1/sim/miners/miner_9/rate", `{"rate": 50}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = n.do(t, http.MethodPut, "/v1/sim/miners/miner_1/rate", `{"rate": -1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = n.do(t, http.MethodPut, "/v1/sim/miners/miner_1/rate", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = n.do(t, http.MethodPut, "/v1/sim/miners/miner_1/rate", `{"rate": 1e11}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var found bool
	for _, ms := range n.sim.Stats().Miners {
		if ms.ID == "miner_1" {
			found = true
			require.Equal(t, 50.0, ms.HashRate)
		}
	}
	require.True(t, found)
}

func TestEventsStream(t *testing.T) {
	n := newNode(t)

	url := "ws" + strings.TrimPrefix(n.server.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return n.evts.Receivers() == 1 }, 5*time.Second, 10*time.Millisecond)

	resp := n.do(t, http.MethodPost, "/v1/sim/start", `{"miners": 1, "hash_rate": 10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt event.Event
	require.NoError(t, json.Unmarshal(msg, &evt))
	require.Equal(t, event.KindSimulationStart, evt.Kind)

	payload, ok := evt.Payload.(event.LifecyclePayload)
	require.True(t, ok)
	require.Equal(t, 1, payload.Miners)
}
