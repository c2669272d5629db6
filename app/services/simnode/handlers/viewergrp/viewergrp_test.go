package viewergrp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ardanlabs/powsim/app/services/simnode/handlers/viewergrp"
	"github.com/stretchr/testify/require"
)

func TestIndex(t *testing.T) {
	h, err := viewergrp.New("test-build")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	require.NoError(t, h.Index(context.Background(), w, r))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")
	require.Contains(t, w.Body.String(), "test-build")
	require.Contains(t, w.Body.String(), "new WebSocket")
}
