// Package game is the authoritative match engine.
//
// A Registry owns every live match, its players and bullets, and the timers
// that govern room lifetime. All state sits behind one mutex; messages for
// clients are queued while the lock is held and handed to the Gateway after
// it is released, so a slow client can never stall the engine.
package game

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"arena-clash/internal/arena"
	"arena-clash/internal/config"
	"arena-clash/internal/metrics"
	"arena-clash/internal/storage"
)

// Gateway delivers messages to connected clients. Implementations must not
// block; delivery is best effort.
type Gateway interface {
	Emit(room, event string, payload any)
	CloseRoom(room string)
}

// Outbound event names
const (
	EventStateUpdate     = "stateUpdate"
	EventStateUpdateInfo = "stateUpdateInfo"
	EventMatchDeleted    = "matchDeleted"
)

// Options configures a Registry. Only Config is required.
type Options struct {
	Config  config.GameConfig
	Gateway Gateway
	Store   storage.Store
	Logger  *zap.Logger
	Clock   clockwork.Clock // defaults to the real clock
	Seed    int64           // 0 seeds from the clock
}

// Registry holds every live match.
type Registry struct {
	mu    sync.Mutex
	cfg   config.GameConfig
	gw    Gateway
	store storage.Store
	log   *zap.Logger
	clock clockwork.Clock
	rng   *rand.Rand

	matches map[string]*Match    // internal id -> match
	codes   map[string]string    // public code -> internal id
	players map[string]playerRef // player id -> membership, at most one match per player
	sockets map[string]string    // socket id -> player id

	persisting sync.WaitGroup
}

type playerRef struct {
	matchID  string
	socketID string
}

// Match is one game session. Fields are only touched under the registry lock.
type Match struct {
	ID           string
	Code         string
	Status       MatchStatus
	Arena        arena.Arena // immutable after creation
	CreatorID    string
	CreatedAt    time.Time
	LastActivity time.Time
	StartedAt    time.Time

	players map[string]*Player
	order   []string  // join order
	bullets []*Bullet // creation order

	idle         *timerHandle
	idleDeadline time.Time
	finalize     *timerHandle
	respawns     map[string]*timerHandle
	closed       bool
}

func (m *Match) capacity() int { return m.Arena.SpawnCount }

// NewRegistry builds an empty registry.
func NewRegistry(opts Options) *Registry {
	cfg := opts.Config
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = config.DefaultGame().PersistTimeout
	}
	if cfg.CodeDigits <= 0 {
		cfg.CodeDigits = config.DefaultGame().CodeDigits
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gw := opts.Gateway
	if gw == nil {
		gw = nopGateway{}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Registry{
		cfg:     cfg,
		gw:      gw,
		store:   opts.Store,
		log:     logger,
		clock:   clock,
		rng:     rand.New(rand.NewSource(seed)),
		matches: make(map[string]*Match),
		codes:   make(map[string]string),
		players: make(map[string]playerRef),
		sockets: make(map[string]string),
	}
}

// =============================================================================
// LIFECYCLE OPERATIONS
// =============================================================================

// CreateMatch registers a new waiting match on arena a and returns its code.
func (r *Registry) CreateMatch(a arena.Arena, creatorID string) (string, error) {
	if creatorID == "" {
		return "", validationError("creator id is required")
	}
	if a.SpawnCount < arena.MinSpawns || a.SpawnCount > arena.MaxSpawns {
		return "", validationError(fmt.Sprintf("spawn count must be between %d and %d", arena.MinSpawns, arena.MaxSpawns))
	}
	if len(a.Spawns) < a.SpawnCount {
		return "", internalError("arena has %d of %d spawn points", len(a.Spawns), a.SpawnCount)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.newCodeLocked()
	if err != nil {
		return "", err
	}
	now := r.clock.Now()
	m := &Match{
		ID:           uuid.NewString(),
		Code:         code,
		Status:       StatusWaiting,
		Arena:        a.Clone(),
		CreatorID:    creatorID,
		CreatedAt:    now,
		LastActivity: now,
		players:      make(map[string]*Player),
		respawns:     make(map[string]*timerHandle),
	}
	r.matches[m.ID] = m
	r.codes[code] = m.ID

	r.log.Info("Match created",
		zap.String("room_code", code),
		zap.String("match_id", m.ID),
		zap.String("player_id", creatorID),
		zap.Int("capacity", a.SpawnCount),
	)
	return code, nil
}

func (r *Registry) newCodeLocked() (string, error) {
	lo := 1
	for i := 1; i < r.cfg.CodeDigits; i++ {
		lo *= 10
	}
	for attempt := 0; attempt < 100; attempt++ {
		code := strconv.Itoa(lo + r.rng.Intn(9*lo))
		if _, taken := r.codes[code]; !taken {
			return code, nil
		}
	}
	return "", internalError("could not allocate a room code")
}

// JoinRequest identifies who is joining and over which connection.
type JoinRequest struct {
	PlayerID string
	SocketID string
	UserName string
}

// JoinResult describes an admitted or reconnected player.
type JoinResult struct {
	Code             string
	Message          string
	Reconnected      bool
	PreviousSocketID string // set when a reconnect replaced a live socket
}

// AddPlayerToMatch admits a player, or rebinds the socket of a player that
// is already a member of the room.
func (r *Registry) AddPlayerToMatch(code string, req JoinRequest) (JoinResult, error) {
	if code == "" {
		return JoinResult{}, validationError("Room id is required")
	}
	if req.PlayerID == "" {
		return JoinResult{}, validationError("player id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.matchByCodeLocked(code)
	if m == nil {
		return JoinResult{}, notFoundError(fmt.Sprintf("The match %s doesn't exists", code))
	}
	now := r.clock.Now()

	if ref, ok := r.players[req.PlayerID]; ok {
		if ref.matchID != m.ID {
			return JoinResult{}, conflictError(msgAlreadyInRoom)
		}
		return r.reconnectLocked(m, m.players[req.PlayerID], req, now), nil
	}

	if m.Status != StatusWaiting {
		return JoinResult{}, conflictError(msgRoomStarted)
	}
	if len(m.order) >= m.capacity() {
		return JoinResult{}, conflictError(msgRoomFull)
	}
	if req.UserName == "" {
		return JoinResult{}, validationError("userName is required")
	}

	p := newPlayer(req, r.cfg.MaxHealth)
	m.players[p.PlayerID] = p
	m.order = append(m.order, p.PlayerID)
	m.LastActivity = now
	r.players[p.PlayerID] = playerRef{matchID: m.ID, socketID: req.SocketID}
	if req.SocketID != "" {
		r.sockets[req.SocketID] = p.PlayerID
	}
	if len(m.order) == 1 {
		r.armIdleLocked(m)
	}

	r.log.Info("Player joined",
		zap.String("room_code", m.Code),
		zap.String("player_id", p.PlayerID),
		zap.String("socket_id", req.SocketID),
		zap.Int("occupancy", len(m.order)),
	)
	return JoinResult{Code: m.Code, Message: fmt.Sprintf(MsgJoined, p.UserName)}, nil
}

func (r *Registry) reconnectLocked(m *Match, p *Player, req JoinRequest, now time.Time) JoinResult {
	prev := p.SocketID
	if prev != "" {
		delete(r.sockets, prev)
	}
	p.SocketID = req.SocketID
	if req.SocketID != "" {
		r.sockets[req.SocketID] = p.PlayerID
	}
	// a pending respawn means the player is still dead
	if _, pending := m.respawns[p.PlayerID]; pending {
		p.Status = PlayerDead
	} else {
		p.Status = PlayerAlive
	}
	r.players[p.PlayerID] = playerRef{matchID: m.ID, socketID: req.SocketID}
	m.LastActivity = now

	r.log.Info("Player reconnected",
		zap.String("room_code", m.Code),
		zap.String("player_id", p.PlayerID),
		zap.String("socket_id", req.SocketID),
	)
	res := JoinResult{Code: m.Code, Message: fmt.Sprintf(MsgReconnected, p.UserName), Reconnected: true}
	if prev != req.SocketID {
		res.PreviousSocketID = prev
	}
	return res
}

// StartResult is returned by a successful StartMatch.
type StartResult struct {
	Code    string
	Message string
}

// StartMatch moves a waiting room to active. Only the creator may start it,
// and only with at least two members.
func (r *Registry) StartMatch(code, requesterID string) (StartResult, error) {
	if code == "" {
		return StartResult{}, validationError("Room id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.matchByCodeLocked(code)
	if m == nil {
		return StartResult{}, notFoundError(msgRoomNotFound)
	}
	switch {
	case m.Status != StatusWaiting:
		return StartResult{}, conflictError(msgRoomStarted)
	case len(m.order) < 2:
		return StartResult{}, conflictError(msgNeedTwo)
	case requesterID != m.CreatorID:
		return StartResult{}, conflictError(msgNotCreator)
	case m.players[requesterID] == nil:
		return StartResult{}, conflictError(msgNotMember)
	}

	spawns := append([]Position(nil), m.Arena.Spawns...)
	for i := len(spawns) - 1; i > 0; i-- {
		j := r.rng.Intn(i + 1)
		spawns[i], spawns[j] = spawns[j], spawns[i]
	}
	for i, id := range m.order {
		p := m.players[id]
		p.Position = spawns[i]
		p.Health = r.cfg.MaxHealth
	}

	now := r.clock.Now()
	m.Status = StatusActive
	m.StartedAt = now
	m.LastActivity = now
	stopTimer(m.idle)
	m.idle = nil
	r.armFinalizeLocked(m)

	r.log.Info("Match started",
		zap.String("room_code", m.Code),
		zap.String("match_id", m.ID),
		zap.Int("players", len(m.order)),
	)
	return StartResult{Code: m.Code, Message: MsgStarted}, nil
}

// LeaveResult describes a player that left or lost its connection.
type LeaveResult struct {
	Code     string
	PlayerID string
	UserName string
	SocketID string
}

// RemovePlayer drops a player from its match and from the player index.
// The player's pending respawn and in-flight bullets go with it.
func (r *Registry) RemovePlayer(playerID string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, p, err := r.memberLocked(playerID)
	if err != nil {
		return LeaveResult{}, err
	}
	res := LeaveResult{Code: m.Code, PlayerID: p.PlayerID, UserName: p.UserName, SocketID: p.SocketID}
	r.dropMemberLocked(m, p)
	m.LastActivity = r.clock.Now()

	r.log.Info("Player left",
		zap.String("room_code", m.Code),
		zap.String("player_id", playerID),
		zap.Int("occupancy", len(m.order)),
	)
	return res, nil
}

// RemovePlayerBySocketID marks the socket's player disconnected. The player
// keeps its slot so it can reconnect.
func (r *Registry) RemovePlayerBySocketID(socketID string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	playerID, ok := r.sockets[socketID]
	if !ok {
		return LeaveResult{}, notFoundError(msgPlayerNotFound)
	}
	m, p, err := r.memberLocked(playerID)
	if err != nil {
		delete(r.sockets, socketID)
		return LeaveResult{}, err
	}

	delete(r.sockets, socketID)
	p.SocketID = ""
	p.Status = PlayerDisconnected
	r.players[playerID] = playerRef{matchID: m.ID}

	r.log.Info("Player disconnected",
		zap.String("room_code", m.Code),
		zap.String("player_id", playerID),
		zap.String("socket_id", socketID),
	)
	return LeaveResult{Code: m.Code, PlayerID: playerID, UserName: p.UserName, SocketID: socketID}, nil
}

// UpdatePlayerPosition moves a player one cell. Walking into a wall or off
// the grid succeeds with MsgWallBlocked and changes nothing.
func (r *Registry) UpdatePlayerPosition(playerID, dir string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, p, err := r.memberLocked(playerID)
	if err != nil {
		return "", err
	}
	d, ok := ParseDirection(dir)
	if !ok {
		return "", validationError(msgInvalidMove)
	}
	if p.Status != PlayerAlive {
		return "", conflictError(msgNotAlive)
	}

	next := Step(p.Position, d)
	if !m.Arena.IsPath(next) {
		return MsgWallBlocked, nil
	}
	p.Position = next
	p.Direction = d
	m.LastActivity = r.clock.Now()
	return MsgMoved, nil
}

// CreateBullet fires from the player's cell along its facing.
func (r *Registry) CreateBullet(playerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, p, err := r.memberLocked(playerID)
	if err != nil {
		return "", err
	}
	if m.Status != StatusActive {
		return "", conflictError(msgNotActive)
	}
	if p.Status != PlayerAlive {
		return "", conflictError(msgNotAlive)
	}

	now := r.clock.Now()
	m.bullets = append(m.bullets, &Bullet{
		BulletID:      uuid.NewString(),
		OwnerPlayerID: p.PlayerID,
		Position:      p.Position,
		Direction:     p.Direction,
		Speed:         BulletSpeed,
		CreatedAt:     now,
	})
	m.LastActivity = now
	metrics.IncBulletsFired()
	return MsgShot, nil
}

// DeleteMatch closes a room. It reports false when the code is unknown.
func (r *Registry) DeleteMatch(code string) bool {
	r.mu.Lock()
	m := r.matchByCodeLocked(code)
	if m == nil {
		r.mu.Unlock()
		return false
	}
	var out outbox
	r.deleteLocked(m, &out, "deleted")
	r.mu.Unlock()

	r.flush(out)
	return true
}

// Reap deletes waiting rooms that have had no members for longer than the
// waiting timeout. It returns how many were removed.
func (r *Registry) Reap() int {
	r.mu.Lock()
	var out outbox
	now := r.clock.Now()
	n := 0
	for _, m := range r.matches {
		if m.Status == StatusWaiting && len(m.order) == 0 && now.Sub(m.LastActivity) > r.cfg.WaitingTimeout {
			r.deleteLocked(m, &out, "reaped")
			n++
		}
	}
	r.mu.Unlock()

	r.flush(out)
	return n
}

// Stats summarises registry occupancy.
type Stats struct {
	Matches int `json:"matches"`
	Waiting int `json:"waiting"`
	Active  int `json:"active"`
	Players int `json:"players"`
	Bullets int `json:"bullets"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statsLocked()
}

func (r *Registry) statsLocked() Stats {
	s := Stats{Matches: len(r.matches), Players: len(r.players)}
	for _, m := range r.matches {
		switch m.Status {
		case StatusWaiting:
			s.Waiting++
		case StatusActive:
			s.Active++
		}
		s.Bullets += len(m.bullets)
	}
	return s
}

// Close stops every timer and forgets all matches, then waits for
// in-flight persistence to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	for _, m := range r.matches {
		r.stopTimersLocked(m)
		m.closed = true
	}
	r.matches = make(map[string]*Match)
	r.codes = make(map[string]string)
	r.players = make(map[string]playerRef)
	r.sockets = make(map[string]string)
	r.mu.Unlock()

	r.persisting.Wait()
}

// =============================================================================
// INTERNAL HELPERS (caller holds r.mu)
// =============================================================================

func (r *Registry) matchByCodeLocked(code string) *Match {
	id, ok := r.codes[code]
	if !ok {
		return nil
	}
	return r.matches[id]
}

func (r *Registry) memberLocked(playerID string) (*Match, *Player, error) {
	ref, ok := r.players[playerID]
	if !ok {
		return nil, nil, notFoundError(msgPlayerNotFound)
	}
	m := r.matches[ref.matchID]
	if m == nil {
		delete(r.players, playerID)
		return nil, nil, notFoundError(msgRoomNotFound)
	}
	p := m.players[playerID]
	if p == nil {
		delete(r.players, playerID)
		return nil, nil, notFoundError(msgPlayerNotFound)
	}
	return m, p, nil
}

// liveLocked reports whether a timer callback may still act on m.
func (r *Registry) liveLocked(m *Match) bool {
	return !m.closed && r.matches[m.ID] == m
}

func (r *Registry) dropMemberLocked(m *Match, p *Player) {
	if h, ok := m.respawns[p.PlayerID]; ok {
		stopTimer(h)
		delete(m.respawns, p.PlayerID)
	}

	n := 0
	for _, id := range m.order {
		if id != p.PlayerID {
			m.order[n] = id
			n++
		}
	}
	m.order = m.order[:n]

	n = 0
	for _, b := range m.bullets {
		if b.OwnerPlayerID != p.PlayerID {
			m.bullets[n] = b
			n++
		}
	}
	for i := n; i < len(m.bullets); i++ {
		m.bullets[i] = nil
	}
	m.bullets = m.bullets[:n]

	delete(m.players, p.PlayerID)
	delete(r.players, p.PlayerID)
	if p.SocketID != "" {
		delete(r.sockets, p.SocketID)
	}
}

// deleteLocked cancels every timer of m before releasing its state.
func (r *Registry) deleteLocked(m *Match, out *outbox, reason string) {
	r.stopTimersLocked(m)
	m.closed = true

	out.toRoom(m.Code, EventMatchDeleted, InfoMessage{Message: fmt.Sprintf(MsgRoomClosed, m.Code)})
	out.closeRoom(m.Code)

	for _, id := range m.order {
		if p := m.players[id]; p != nil && p.SocketID != "" {
			delete(r.sockets, p.SocketID)
		}
		delete(r.players, id)
	}
	delete(r.codes, m.Code)
	delete(r.matches, m.ID)

	metrics.RecordMatchClosed(reason)
	r.log.Info("Match deleted",
		zap.String("room_code", m.Code),
		zap.String("match_id", m.ID),
		zap.String("reason", reason),
	)
}

// =============================================================================
// OUTBOX
// =============================================================================

// InfoMessage is the payload of narration and deletion events.
type InfoMessage struct {
	Message string `json:"message"`
}

type envelope struct {
	room      string
	event     string
	payload   any
	closeRoom bool
}

// outbox collects messages while the registry lock is held.
type outbox []envelope

func (o *outbox) toRoom(room, event string, payload any) {
	*o = append(*o, envelope{room: room, event: event, payload: payload})
}

func (o *outbox) closeRoom(room string) {
	*o = append(*o, envelope{room: room, closeRoom: true})
}

// flush must be called without r.mu held.
func (r *Registry) flush(out outbox) {
	for _, e := range out {
		if e.closeRoom {
			r.gw.CloseRoom(e.room)
			continue
		}
		r.gw.Emit(e.room, e.event, e.payload)
	}
}

type nopGateway struct{}

func (nopGateway) Emit(string, string, any) {}
func (nopGateway) CloseRoom(string)         {}
