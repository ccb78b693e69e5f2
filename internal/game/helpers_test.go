package game

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arena-clash/internal/arena"
	"arena-clash/internal/config"
	"arena-clash/internal/storage"
)

// recorder is a Gateway that remembers everything it was asked to send.
type recorder struct {
	mu     sync.Mutex
	sent   []sentMessage
	closed []string
}

type sentMessage struct {
	room    string
	event   string
	payload any
}

func (r *recorder) Emit(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{room, event, payload})
}

func (r *recorder) CloseRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, room)
}

func (r *recorder) count(room, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.room == room && s.event == event {
			n++
		}
	}
	return n
}

// infos returns the narration messages sent to room.
func (r *recorder) infos(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		if s.room == room && s.event == EventStateUpdateInfo {
			out = append(out, s.payload.(InfoMessage).Message)
		}
	}
	return out
}

func (r *recorder) last(room, event string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].room == room && r.sent[i].event == event {
			return r.sent[i].payload
		}
	}
	return nil
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type harness struct {
	reg   *Registry
	clock fakeClock
	gw    *recorder
	store *storage.MemoryStore
	cfg   config.GameConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultGame()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	h := &harness{
		clock: clock,
		gw:    &recorder{},
		store: storage.NewMemoryStore(),
		cfg:   cfg,
	}
	h.reg = NewRegistry(Options{
		Config:  cfg,
		Gateway: h.gw,
		Store:   h.store,
		Logger:  zaptest.NewLogger(t),
		Clock:   clock,
		Seed:    1,
	})
	t.Cleanup(h.reg.Close)
	return h
}

// testArena is an 11x11 room: walls on the border and one wall at (5,4).
func testArena(spawnCount int) arena.Arena {
	const size = 11
	grid := make([][]arena.Cell, size)
	for y := range grid {
		grid[y] = make([]arena.Cell, size)
		for x := range grid[y] {
			if x == 0 || y == 0 || x == size-1 || y == size-1 {
				grid[y][x] = arena.Wall
			}
		}
	}
	grid[4][5] = arena.Wall

	spawns := []arena.Point{{X: 1, Y: 1}, {X: 9, Y: 1}, {X: 1, Y: 9}, {X: 9, Y: 9}, {X: 3, Y: 7}, {X: 7, Y: 3}}
	return arena.Arena{Grid: grid, Spawns: spawns[:spawnCount], SpawnCount: spawnCount}
}

func (h *harness) create(t *testing.T, capacity int, creator string) string {
	t.Helper()
	code, err := h.reg.CreateMatch(testArena(capacity), creator)
	require.NoError(t, err)
	return code
}

func (h *harness) join(t *testing.T, code, id string) JoinResult {
	t.Helper()
	res, err := h.reg.AddPlayerToMatch(code, JoinRequest{PlayerID: id, SocketID: "sock-" + id, UserName: id})
	require.NoError(t, err)
	return res
}

// activeMatch returns a started room with the given members; the first is
// the creator.
func (h *harness) activeMatch(t *testing.T, ids ...string) string {
	t.Helper()
	code := h.create(t, len(ids), ids[0])
	for _, id := range ids {
		h.join(t, code, id)
	}
	_, err := h.reg.StartMatch(code, ids[0])
	require.NoError(t, err)
	return code
}

// place puts a player on a cell with a facing, bypassing movement rules.
func (h *harness) place(code, id string, x, y int, d Direction) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	p := h.reg.matchByCodeLocked(code).players[id]
	p.Position = Position{X: x, Y: y}
	p.Direction = d
}

func (h *harness) setHealth(code, id string, hp int) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	h.reg.matchByCodeLocked(code).players[id].Health = hp
}

func (h *harness) player(code, id string) Player {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	m := h.reg.matchByCodeLocked(code)
	if m == nil || m.players[id] == nil {
		return Player{}
	}
	return *m.players[id]
}

func (h *harness) bullets(code string) int {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return len(h.reg.matchByCodeLocked(code).bullets)
}

func (h *harness) exists(code string) bool {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.reg.matchByCodeLocked(code) != nil
}
