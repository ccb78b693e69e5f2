package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"arena-clash/internal/arena"
	"arena-clash/internal/config"
	"arena-clash/internal/game"
	"arena-clash/internal/metrics"
)

// GameService is the part of the match registry the API calls.
// *game.Registry satisfies it; tests can substitute a fake.
type GameService interface {
	CreateMatch(a arena.Arena, creatorID string) (string, error)
	MatchView(code string) (game.MatchView, error)
	Stats() game.Stats

	AddPlayerToMatch(code string, req game.JoinRequest) (game.JoinResult, error)
	StartMatch(code, requesterID string) (game.StartResult, error)
	UpdatePlayerPosition(playerID, dir string) (string, error)
	CreateBullet(playerID string) (string, error)
	RemovePlayer(playerID string) (game.LeaveResult, error)
	RemovePlayerBySocketID(socketID string) (game.LeaveResult, error)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Game:     registry,
//	    Verifier: verifier,
//	    Arena:    config.DefaultArena(),
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Game is the match registry (required)
	Game GameService

	// Verifier authenticates REST calls and WebSocket handshakes (required)
	Verifier *TokenVerifier

	// Hub serves /ws. When nil the WebSocket routes are not mounted.
	Hub *Hub

	// Arena is the generator configuration used by match creation
	Arena config.ArenaConfig

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	// If both are nil, the default resource limits apply.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins defaults to the local development origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool

	Logger *zap.Logger
}

type routerHandlers struct {
	game     GameService
	verifier *TokenVerifier
	hub      *Hub
	events   *EventHandler
	arena    config.ArenaConfig
	log      *zap.Logger
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter has no side effects beyond the rate limiter's cleanup goroutine
// when it has to build one: no listeners are opened, so it is safe to use
// with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Middleware - Order matters!
	r.Use(middleware.RequestID)
	if !cfg.DisableLogging {
		r.Use(requestLogger(logger.Named("http")))
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := RateLimitFromLimits(config.DefaultLimits())
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = config.DefaultServer().AllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		game:     cfg.Game,
		verifier: cfg.Verifier,
		hub:      cfg.Hub,
		arena:    cfg.Arena,
		log:      logger,
	}

	r.Get("/health", h.handleHealth)

	r.Route("/game", func(r chi.Router) {
		r.Use(cfg.Verifier.Middleware)
		r.Post("/match/create", h.handleCreateMatch)
		r.Get("/match/{id}/data", h.handleMatchData)
	})

	if cfg.Hub != nil {
		h.events = NewEventHandler(cfg.Game, cfg.Hub, logger)
		r.Get("/ws", h.handleWS)
		// path kept for clients built against the Socket.IO server
		r.Get("/socket.io/", h.handleWS)
	}

	return r
}

// requestLogger logs every request through zap and records the request
// metrics, labelled by route pattern to keep cardinality bounded.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				// hijacked WebSocket connections never write a status
				status = http.StatusSwitchingProtocols
			}
			pattern := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				pattern = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.RecordRequest(r.Method, pattern, status, elapsed)

			log.Debug("Request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
