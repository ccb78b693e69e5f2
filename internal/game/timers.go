package game

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"arena-clash/internal/metrics"
	"arena-clash/internal/storage"
)

// timerHandle is owned by a match. Callbacks compare the handle they were
// armed with against the one stored on the match, so a timer that fired
// while a replacement was being armed does nothing.
type timerHandle struct {
	timer clockwork.Timer
}

func stopTimer(h *timerHandle) {
	if h != nil && h.timer != nil {
		h.timer.Stop()
	}
}

func (r *Registry) stopTimersLocked(m *Match) {
	stopTimer(m.idle)
	m.idle = nil
	stopTimer(m.finalize)
	m.finalize = nil
	for id, h := range m.respawns {
		stopTimer(h)
		delete(m.respawns, id)
	}
}

// armIdleLocked starts the waiting-room timeout. A room that has not
// started when it fires is closed.
func (r *Registry) armIdleLocked(m *Match) {
	stopTimer(m.idle)
	h := &timerHandle{}
	h.timer = r.clock.AfterFunc(r.cfg.WaitingTimeout, func() { r.onIdleExpired(m, h) })
	m.idle = h
	m.idleDeadline = r.clock.Now().Add(r.cfg.WaitingTimeout)
}

func (r *Registry) onIdleExpired(m *Match, h *timerHandle) {
	r.mu.Lock()
	var out outbox
	if r.liveLocked(m) && m.idle == h && m.Status == StatusWaiting {
		m.idle = nil
		r.deleteLocked(m, &out, "idle")
	}
	r.mu.Unlock()

	r.flush(out)
}

// armFinalizeLocked starts the match clock. When it runs out the match is
// recorded and deleted.
func (r *Registry) armFinalizeLocked(m *Match) {
	stopTimer(m.finalize)
	h := &timerHandle{}
	h.timer = r.clock.AfterFunc(r.cfg.ActiveTimeout, func() { r.onActiveExpired(m, h) })
	m.finalize = h
}

func (r *Registry) onActiveExpired(m *Match, h *timerHandle) {
	r.mu.Lock()
	var out outbox
	if r.liveLocked(m) && m.finalize == h && m.Status == StatusActive {
		m.finalize = nil
		r.finalizeLocked(m, &out)
	}
	r.mu.Unlock()

	r.flush(out)
}

func (r *Registry) finalizeLocked(m *Match, out *outbox) {
	now := r.clock.Now()
	m.Status = StatusCompleted
	m.LastActivity = now

	rec, stats := r.recordLocked(m, now)
	r.deleteLocked(m, out, "completed")
	r.persist(rec, stats)
}

func (r *Registry) recordLocked(m *Match, now time.Time) (storage.MatchRecord, []storage.PlayerStats) {
	rec := storage.MatchRecord{
		MatchID:     m.ID,
		Code:        m.Code,
		CreatedBy:   m.CreatorID,
		Status:      string(StatusCompleted),
		PlayerCount: len(m.order),
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: now,
	}

	standings := Standings(m.playersInOrder())
	stats := make([]storage.PlayerStats, 0, len(standings))
	for _, s := range standings {
		stats = append(stats, storage.PlayerStats{
			MatchID:    m.ID,
			PlayerID:   s.PlayerID,
			UserName:   s.UserName,
			Score:      s.Score,
			Kills:      s.Kills,
			SpawnCount: s.SpawnCount,
			Placement:  s.Placement,
		})
	}
	return rec, stats
}

// persist writes a completed match in the background. The match is already
// gone from memory; a failure is logged and counted.
func (r *Registry) persist(rec storage.MatchRecord, stats []storage.PlayerStats) {
	if r.store == nil {
		return
	}
	r.persisting.Add(1)
	go func() {
		defer r.persisting.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
		defer cancel()

		log := r.log.With(zap.String("match_id", rec.MatchID), zap.String("room_code", rec.Code))
		if err := r.store.AppendMatch(ctx, rec); err != nil {
			metrics.IncPersistFailures()
			log.Error("Failed to record match", zap.Error(err))
			return
		}
		if err := r.store.AppendPlayerStats(ctx, stats); err != nil {
			metrics.IncPersistFailures()
			log.Error("Failed to record player stats", zap.Error(err))
			return
		}
		log.Info("Match recorded", zap.Int("players", len(stats)))
	}()
}

// armRespawnLocked schedules a dead player's return.
func (r *Registry) armRespawnLocked(m *Match, playerID string) {
	stopTimer(m.respawns[playerID])
	h := &timerHandle{}
	h.timer = r.clock.AfterFunc(r.cfg.RespawnDelay, func() { r.onRespawn(m, playerID, h) })
	m.respawns[playerID] = h
}

func (r *Registry) onRespawn(m *Match, playerID string, h *timerHandle) {
	r.mu.Lock()
	var out outbox
	if r.liveLocked(m) && m.respawns[playerID] == h {
		delete(m.respawns, playerID)
		if p := m.players[playerID]; p != nil {
			p.Health = r.cfg.MaxHealth
			p.SpawnCount++
			if p.SocketID != "" {
				p.Status = PlayerAlive
			} else {
				p.Status = PlayerDisconnected
			}
			out.toRoom(m.Code, EventStateUpdateInfo, InfoMessage{Message: fmt.Sprintf(MsgRespawned, p.UserName)})
		}
	}
	r.mu.Unlock()

	r.flush(out)
}
