package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"arena-clash/internal/arena"
	"arena-clash/internal/config"
	"arena-clash/internal/game"
	"arena-clash/internal/metrics"
)

type createMatchRequest struct {
	SpawnCount int `json:"spawnCount"`
}

func (h *routerHandlers) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Meta Data not found!")
		return
	}
	if req.SpawnCount < arena.MinSpawns || req.SpawnCount > arena.MaxSpawns {
		writeError(w, http.StatusBadRequest, "Exceeded SpawnCount Limit!")
		return
	}

	a, err := generateArena(h.arena, req.SpawnCount)
	if err != nil {
		h.log.Error("Arena generation failed", zap.Int("spawn_count", req.SpawnCount), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Arena Generation Failed!")
		return
	}

	userID := UserIDFrom(r.Context())
	code, err := h.game.CreateMatch(a, userID)
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "The Match created successfully!",
		"roomCode": code,
	})
}

func (h *routerHandlers) handleMatchData(w http.ResponseWriter, r *http.Request) {
	view, err := h.game.MatchView(chi.URLParam(r, "id"))
	if err != nil {
		h.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "The Match Data fetched successfully!",
		"gameData": view,
	})
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthBody(h.game.Stats()))
}

func healthBody(s game.Stats) map[string]any {
	return map[string]any{
		"status":  "ok",
		"matches": s.Matches,
		"waiting": s.Waiting,
		"active":  s.Active,
		"players": s.Players,
		"bullets": s.Bullets,
	}
}

func (h *routerHandlers) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.FromRequest(r)
	if err != nil {
		metrics.RecordConnectionRejected("auth")
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	h.hub.Serve(w, r, userID, h.events)
}

// generateArena retries until the generator places every requested spawn.
func generateArena(ac config.ArenaConfig, spawnCount int) (arena.Arena, error) {
	cfg := arena.Config{
		Size:              ac.Size,
		SpawnCount:        spawnCount,
		FillPercent:       ac.FillPercent,
		SimulationSteps:   ac.SimulationSteps,
		SurvivalThreshold: ac.SurvivalThreshold,
		BirthThreshold:    ac.BirthThreshold,
		MinRegionSize:     ac.MinRegionSize,
		TunnelRadius:      ac.TunnelRadius,
		MaxSpawnAttempts:  ac.MaxSpawnAttempts,
	}
	attempts := max(ac.GenerationAttempts, 1)

	for i := 0; i < attempts; i++ {
		a, err := arena.Generate(cfg)
		if err != nil {
			return arena.Arena{}, err
		}
		if len(a.Spawns) == spawnCount {
			return a, nil
		}
	}
	return arena.Arena{}, errTooFewSpawns
}

var errTooFewSpawns = errors.New("arena: could not place every spawn")

// statusFor maps registry error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *routerHandlers) writeGameError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", zap.Error(err))
		msg = "Internal Server Error"
	}
	writeError(w, status, msg)
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
