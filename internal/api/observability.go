package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"arena-clash/internal/game"
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // must resolve to a loopback address
	AllowExternal bool   // permit a non-loopback ListenAddr
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugServer exposes pprof, prometheus metrics and a health probe.
type DebugServer struct {
	srv *http.Server
	log *zap.Logger
}

// NewDebugServer builds the debug server. pprof can be used to exhaust the
// process, so non-loopback addresses are rewritten unless AllowExternal.
func NewDebugServer(cfg ObservabilityConfig, stats func() game.Stats, logger *zap.Logger) *DebugServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("debug")

	if !cfg.AllowExternal && !isLoopback(cfg.ListenAddr) {
		logger.Warn("Debug server forced to localhost", zap.String("requested", cfg.ListenAddr))
		cfg.ListenAddr = DefaultObservabilityConfig().ListenAddr
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthBody(stats()))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	return &DebugServer{
		srv: &http.Server{Addr: cfg.ListenAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		log: logger,
	}
}

// Handler returns the debug mux for use with httptest.
func (d *DebugServer) Handler() http.Handler {
	return d.srv.Handler
}

// Start serves in the background. Failures are logged; the game keeps
// running without its debug endpoints.
func (d *DebugServer) Start() {
	go func() {
		d.log.Info("Debug server starting",
			zap.String("pprof", "http://"+d.srv.Addr+"/debug/pprof/"),
			zap.String("metrics", "http://"+d.srv.Addr+"/metrics"),
		)
		if err := d.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Warn("Debug server error", zap.Error(err))
		}
	}()
}

// Stop shuts the debug server down.
func (d *DebugServer) Stop(ctx context.Context) error {
	return d.srv.Shutdown(ctx)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
