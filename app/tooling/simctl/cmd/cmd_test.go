package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/chain"
	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/ardanlabs/powsim/foundation/blockchain/state"
	"github.com/stretchr/testify/require"
)

func TestEventsURL(t *testing.T) {
	tt := []struct {
		node string
		exp  string
	}{
		{"http://localhost:8080", "ws://localhost:8080/v1/events"},
		{"https://sim.example.com/", "wss://sim.example.com/v1/events"},
		{"localhost:8080", "localhost:8080/v1/events"},
	}

	for _, tst := range tt {
		require.Equal(t, tst.exp, eventsURL(tst.node))
	}
}

func TestCallDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/sim/stats":
			w.Write([]byte(`{"running": true, "height": 4}`))
		case "/v1/sim/chain":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "miner not found"}`))
		}
	}))
	defer srv.Close()

	saved := url
	url = srv.URL
	defer func() { url = saved }()

	var s state.Stats
	require.NoError(t, call(http.MethodGet, "/v1/sim/stats", nil, &s))
	require.True(t, s.Running)
	require.Equal(t, uint64(4), s.Height)

	var blocks []chain.Block
	require.NoError(t, call(http.MethodGet, "/v1/sim/chain", nil, &blocks))
	require.Empty(t, blocks)

	err := call(http.MethodPut, "/v1/sim/miners/miner_9/rate", map[string]float64{"rate": 1}, nil)
	require.ErrorContains(t, err, "miner not found")
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, state.Stats{
		Running:    true,
		Paused:     true,
		Height:     7,
		Difficulty: 3,
		Miners: []state.MinerStats{
			{Accepted: 2},
		},
	})

	require.Contains(t, buf.String(), "paused")
	require.Contains(t, buf.String(), "height:      7")
}

func TestPrintEvent(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	b := chain.Block{Height: 3, MinerID: "miner_2"}

	var buf bytes.Buffer
	printEvent(&buf, event.BlockStale(now, b, "unknown parent"))
	require.Contains(t, buf.String(), "block_stale")
	require.Contains(t, buf.String(), "miner_2")
	require.Contains(t, buf.String(), `reason="unknown parent"`)

	buf.Reset()
	printEvent(&buf, event.DifficultyUpdate(now, event.DifficultyPayload{Previous: 3, Current: 4, Trigger: "fast"}))
	require.Contains(t, buf.String(), "3 -> 4 trigger=fast")
}
