package game

import (
	"time"

	"arena-clash/internal/arena"
)

// Snapshots are value copies built under the registry lock and handed to the
// gateway after it is released. The grid is shared because a match never
// mutates its arena.

// StateSnapshot is broadcast every tick for an active match.
type StateSnapshot struct {
	Map      [][]arena.Cell    `json:"map"`
	Players  map[string]Player `json:"players"` // keyed by socket id, or player id while disconnected
	Bullets  []Bullet          `json:"bullets"`
	Status   MatchStatus       `json:"status"`
	TimeLeft int64             `json:"timeLeft"` // milliseconds
}

// LobbyPlayer is a member as shown in the waiting room
type LobbyPlayer struct {
	UserName string       `json:"userName"`
	Status   PlayerStatus `json:"status"`
}

// LobbySnapshot is broadcast every tick for a waiting match.
type LobbySnapshot struct {
	SpawnCount int           `json:"spawnCount"`
	Players    []LobbyPlayer `json:"players"`
	Status     MatchStatus   `json:"status"`
	CreatedBy  string        `json:"createdBy"` // creator's socket id
	TimeLeft   int64         `json:"timeLeft"`  // milliseconds
}

func (r *Registry) stateSnapshotLocked(m *Match, now time.Time) StateSnapshot {
	players := make(map[string]Player, len(m.order))
	for _, id := range m.order {
		p := m.players[id]
		key := p.SocketID
		if key == "" {
			key = p.PlayerID
		}
		players[key] = *p
	}
	bullets := make([]Bullet, len(m.bullets))
	for i, b := range m.bullets {
		bullets[i] = *b
	}
	return StateSnapshot{
		Map:      m.Arena.Grid,
		Players:  players,
		Bullets:  bullets,
		Status:   m.Status,
		TimeLeft: r.timeLeftLocked(m, now).Milliseconds(),
	}
}

func (r *Registry) lobbySnapshotLocked(m *Match, now time.Time) LobbySnapshot {
	players := make([]LobbyPlayer, 0, len(m.order))
	createdBy := ""
	for _, id := range m.order {
		p := m.players[id]
		players = append(players, LobbyPlayer{UserName: p.UserName, Status: p.Status})
		if id == m.CreatorID {
			createdBy = p.SocketID
		}
	}
	return LobbySnapshot{
		SpawnCount: m.capacity(),
		Players:    players,
		Status:     m.Status,
		CreatedBy:  createdBy,
		TimeLeft:   r.timeLeftLocked(m, now).Milliseconds(),
	}
}

// timeLeftLocked is the time until the match's governing timer fires.
func (r *Registry) timeLeftLocked(m *Match, now time.Time) time.Duration {
	var deadline time.Time
	switch {
	case m.Status == StatusActive:
		deadline = m.StartedAt.Add(r.cfg.ActiveTimeout)
	case m.idle != nil:
		deadline = m.idleDeadline
	default:
		deadline = m.LastActivity.Add(r.cfg.WaitingTimeout)
	}
	if left := deadline.Sub(now); left > 0 {
		return left
	}
	return 0
}

func (m *Match) playersInOrder() []Player {
	out := make([]Player, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.players[id])
	}
	return out
}

// MatchView is the full state of one match for the REST API.
type MatchView struct {
	MatchID    string         `json:"matchId"`
	Code       string         `json:"roomCode"`
	Status     MatchStatus    `json:"status"`
	CreatedBy  string         `json:"createdBy"`
	CreatedAt  time.Time      `json:"createdAt"`
	SpawnCount int            `json:"spawnCount"`
	Map        [][]arena.Cell `json:"map"`
	Players    []Player       `json:"players"` // join order
	Bullets    []Bullet       `json:"bullets"`
	Standings  []Standing     `json:"standings"`
	TimeLeft   int64          `json:"timeLeft"`
}

// MatchView returns a copy of the match with the given code.
func (r *Registry) MatchView(code string) (MatchView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.matchByCodeLocked(code)
	if m == nil {
		return MatchView{}, notFoundError(msgRoomNotFound)
	}
	players := m.playersInOrder()
	bullets := make([]Bullet, len(m.bullets))
	for i, b := range m.bullets {
		bullets[i] = *b
	}
	return MatchView{
		MatchID:    m.ID,
		Code:       m.Code,
		Status:     m.Status,
		CreatedBy:  m.CreatorID,
		CreatedAt:  m.CreatedAt,
		SpawnCount: m.capacity(),
		Map:        m.Arena.Grid,
		Players:    players,
		Bullets:    bullets,
		Standings:  Standings(players),
		TimeLeft:   r.timeLeftLocked(m, r.clock.Now()).Milliseconds(),
	}, nil
}
