package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arena-clash/internal/game"
)

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"10.1.2.3:6060", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLoopback(tt.addr), tt.addr)
	}
}

func TestDebugServerForcedToLocalhost(t *testing.T) {
	stats := func() game.Stats { return game.Stats{} }
	d := NewDebugServer(ObservabilityConfig{Enabled: true, ListenAddr: "0.0.0.0:6060"}, stats, zaptest.NewLogger(t))
	assert.Equal(t, "127.0.0.1:6060", d.srv.Addr)

	d = NewDebugServer(ObservabilityConfig{Enabled: true, ListenAddr: "0.0.0.0:6060", AllowExternal: true}, stats, zaptest.NewLogger(t))
	assert.Equal(t, "0.0.0.0:6060", d.srv.Addr)
}

func TestDebugEndpoints(t *testing.T) {
	stats := func() game.Stats { return game.Stats{Matches: 3, Active: 1, Players: 5} }
	d := NewDebugServer(DefaultObservabilityConfig(), stats, zaptest.NewLogger(t))
	ts := httptest.NewServer(d.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, float64(3), body["matches"])
	assert.Equal(t, float64(5), body["players"])

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDebugBasicAuth(t *testing.T) {
	cfg := DefaultObservabilityConfig()
	cfg.BasicAuthUser = "ops"
	cfg.BasicAuthPass = "s3cret"
	d := NewDebugServer(cfg, func() game.Stats { return game.Stats{} }, zaptest.NewLogger(t))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r.SetBasicAuth("ops", "s3cret")
	w = httptest.NewRecorder()
	d.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
