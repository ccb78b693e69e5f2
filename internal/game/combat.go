package game

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"arena-clash/internal/metrics"
)

// damageEntry accumulates every hit a victim takes during one tick, so
// damage is applied and clamped once.
type damageEntry struct {
	victim   *Player
	total    int
	shooters []string // in order of first hit
	dealt    map[string]int
}

func (e *damageEntry) add(shooterID string, damage int) {
	if _, seen := e.dealt[shooterID]; !seen {
		e.shooters = append(e.shooters, shooterID)
	}
	e.dealt[shooterID] += damage
	e.total += damage
}

// killer credits the shooter with the largest share of the tick's damage.
// Equal shares go to whoever hit first.
func (e *damageEntry) killer() string {
	best := ""
	for _, id := range e.shooters {
		if best == "" || e.dealt[id] > e.dealt[best] {
			best = id
		}
	}
	return best
}

// Tick advances every active match by one step and broadcasts a snapshot
// of every live match. Called by the Scheduler at the tick rate.
func (r *Registry) Tick() {
	start := time.Now()

	r.mu.Lock()
	var out outbox
	now := r.clock.Now()
	for _, m := range r.matches {
		r.tickMatchLocked(m, now, &out)
	}
	s := r.statsLocked()
	r.mu.Unlock()

	r.flush(out)

	metrics.UpdateMatchGauges(s.Waiting, s.Active, s.Players, s.Bullets)
	metrics.RecordTick(time.Since(start))
}

// tickMatchLocked contains faults to the match that raised them.
func (r *Registry) tickMatchLocked(m *Match, now time.Time, out *outbox) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncTickPanics()
			r.log.Error("Match tick failed",
				zap.String("room_code", m.Code),
				zap.String("match_id", m.ID),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
	}()

	switch m.Status {
	case StatusActive:
		r.resolveCombatLocked(m, out)
		out.toRoom(m.Code, EventStateUpdate, r.stateSnapshotLocked(m, now))
	case StatusWaiting:
		out.toRoom(m.Code, EventStateUpdate, r.lobbySnapshotLocked(m, now))
	}
}

// resolveCombatLocked moves every bullet one cell, records hits in the
// damage ledger, then applies each victim's total once.
func (r *Registry) resolveCombatLocked(m *Match, out *outbox) {
	var hits []*damageEntry
	ledger := make(map[string]*damageEntry)

	n := 0
	for _, b := range m.bullets {
		next := Step(b.Position, b.Direction)
		if !m.Arena.IsPath(next) {
			continue
		}
		b.Position = next

		victim := m.targetAt(next, b.OwnerPlayerID)
		if victim == nil {
			m.bullets[n] = b
			n++
			continue
		}

		if shooter := m.players[b.OwnerPlayerID]; shooter != nil {
			shooter.Score += r.cfg.DamageScore
		}
		e := ledger[victim.PlayerID]
		if e == nil {
			e = &damageEntry{victim: victim, dealt: make(map[string]int)}
			ledger[victim.PlayerID] = e
			hits = append(hits, e)
		}
		e.add(b.OwnerPlayerID, r.cfg.BulletDamage)
	}
	for i := n; i < len(m.bullets); i++ {
		m.bullets[i] = nil
	}
	m.bullets = m.bullets[:n]

	for _, e := range hits {
		r.applyDamageLocked(m, e, out)
	}
}

// targetAt returns the first player in join order standing on p that a
// bullet owned by ownerID can hit. Players waiting on a respawn are skipped
// even if they disconnected meanwhile.
func (m *Match) targetAt(p Position, ownerID string) *Player {
	for _, id := range m.order {
		if id == ownerID {
			continue
		}
		pl := m.players[id]
		if pl.Status != PlayerDead && pl.Health > 0 && pl.Position == p {
			return pl
		}
	}
	return nil
}

func (r *Registry) applyDamageLocked(m *Match, e *damageEntry, out *outbox) {
	v := e.victim
	v.Health -= e.total
	if v.Health > 0 {
		return
	}
	v.Health = 0
	v.Status = PlayerDead

	if k := m.players[e.killer()]; k != nil {
		k.Score += r.cfg.KillScore
		k.Kills++
	}
	metrics.IncKills()

	out.toRoom(m.Code, EventStateUpdateInfo, InfoMessage{Message: fmt.Sprintf(MsgDead, v.UserName)})
	r.armRespawnLocked(m, v.PlayerID)
}
