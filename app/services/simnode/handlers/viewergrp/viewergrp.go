// Package viewergrp serves the browser dashboard for the simulation.
package viewergrp

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed index.html
var indexHTML string

// Handlers manages the dashboard endpoints.
type Handlers struct {
	page []byte
}

// New parses the dashboard template once so every request serves the
// same rendered page.
func New(build string) (*Handlers, error) {
	tmpl, err := template.New("index").Parse(indexHTML)
	if err != nil {
		return nil, fmt.Errorf("parsing index template: %w", err)
	}

	data := struct {
		Build  string
		Events string
		API    string
	}{
		Build:  build,
		Events: "/v1/events",
		API:    "/v1/sim",
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing index template: %w", err)
	}

	return &Handlers{page: buf.Bytes()}, nil
}

// Index renders the dashboard page.
func (h *Handlers) Index(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(h.page); err != nil {
		return fmt.Errorf("writing index page: %w", err)
	}

	return nil
}
