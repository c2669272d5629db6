package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/state"
)

var client = http.Client{Timeout: 10 * time.Second}

// call sends a request to the node and decodes the response into resp when
// one is provided. A body of nil sends no payload.
func call(method string, path string, body any, resp any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(url, "/")+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return fmt.Errorf("node returned %s", res.Status)
		}
		if len(e.Fields) > 0 {
			return fmt.Errorf("%s: %v", e.Error, e.Fields)
		}
		return fmt.Errorf("%s: %s", res.Status, e.Error)
	}

	if resp == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}

	return json.NewDecoder(res.Body).Decode(resp)
}

// eventsURL turns the node url into the websocket address of the event stream.
func eventsURL(node string) string {
	node = strings.TrimSuffix(node, "/")

	switch {
	case strings.HasPrefix(node, "https://"):
		node = "wss://" + strings.TrimPrefix(node, "https://")
	case strings.HasPrefix(node, "http://"):
		node = "ws://" + strings.TrimPrefix(node, "http://")
	}

	return node + "/v1/events"
}

// printStats writes a short human readable summary of a snapshot.
func printStats(w io.Writer, s state.Stats) {
	status := "stopped"
	switch {
	case s.Paused:
		status = "paused"
	case s.Running:
		status = "running"
	}

	fmt.Fprintf(w, "status:      %s\n", status)
	fmt.Fprintf(w, "height:      %d\n", s.Height)
	fmt.Fprintf(w, "difficulty:  %d (p=%g)\n", s.Difficulty, s.Probability)
	fmt.Fprintf(w, "blocks:      found=%d accepted=%d stale=%d pending=%d\n", s.FoundCount, s.AcceptedCount, s.StaleCount, s.Pending)
	fmt.Fprintf(w, "fork rate:   %.2f%%\n", s.ForkRate*100)
	fmt.Fprintf(w, "block time:  avg=%.2fs target=%.2fs\n", s.AverageBlockTime, s.TargetBlockTime)
	fmt.Fprintf(w, "data:        %q\n", s.Data)

	for _, m := range s.Miners {
		fmt.Fprintf(w, "  %-10s %-8s rate=%-8g attempts=%-10d found=%-6d accepted=%d\n", m.ID, m.Status, m.HashRate, m.Attempts, m.Found, m.Accepted)
	}
}
