package game

import (
	"strings"
	"time"

	"arena-clash/internal/arena"
)

// Position is a cell on the arena grid.
type Position = arena.Point

// MatchStatus is the match lifecycle state. Transitions only move forward:
// waiting -> active -> completed.
type MatchStatus string

const (
	StatusWaiting   MatchStatus = "waiting"
	StatusActive    MatchStatus = "active"
	StatusCompleted MatchStatus = "completed"
)

// PlayerStatus is a member's presence in a match
type PlayerStatus string

const (
	PlayerAlive        PlayerStatus = "alive"
	PlayerDead         PlayerStatus = "dead"
	PlayerDisconnected PlayerStatus = "disconnected" // still a member, slot kept for reconnect
)

// Direction is a facing on the grid.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// ParseDirection accepts any casing of up/down/left/right.
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Up, Down, Left, Right:
		return d, true
	}
	return "", false
}

// Offset returns the one-cell step for the direction. Row 0 is the top.
func (d Direction) Offset() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

// Step returns p moved one cell in direction d.
func Step(p Position, d Direction) Position {
	dx, dy := d.Offset()
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Player is one member of a match.
type Player struct {
	PlayerID   string       `json:"playerId"`
	SocketID   string       `json:"socketId"` // empty while the transport is disconnected
	UserName   string       `json:"userName"`
	Health     int          `json:"health"`
	Score      int          `json:"score"`
	Kills      int          `json:"kills"`
	SpawnCount int          `json:"spawnCount"`
	Position   Position     `json:"position"`
	Direction  Direction    `json:"direction"`
	Status     PlayerStatus `json:"status"`
}

func newPlayer(req JoinRequest, health int) *Player {
	return &Player{
		PlayerID:   req.PlayerID,
		SocketID:   req.SocketID,
		UserName:   req.UserName,
		Health:     health,
		SpawnCount: 1,
		Direction:  Up,
		Status:     PlayerAlive,
	}
}

// BulletSpeed is cells travelled per tick.
const BulletSpeed = 1

// Bullet is a projectile in flight.
type Bullet struct {
	BulletID      string    `json:"bulletId"`
	OwnerPlayerID string    `json:"ownerPlayerId"`
	Position      Position  `json:"position"`
	Direction     Direction `json:"direction"`
	Speed         int       `json:"speed"`
	CreatedAt     time.Time `json:"createdAt"`
}
