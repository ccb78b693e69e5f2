package game

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arena-clash/internal/config"
	"arena-clash/internal/storage"
)

func TestSchedulerTicksAndReaps(t *testing.T) {
	cfg := config.DefaultGame()
	cfg.TickRate = 100
	cfg.ReaperInterval = 20 * time.Millisecond
	cfg.WaitingTimeout = 50 * time.Millisecond

	gw := &recorder{}
	reg := NewRegistry(Options{Config: cfg, Gateway: gw, Store: storage.NewMemoryStore(), Logger: zaptest.NewLogger(t)})
	t.Cleanup(reg.Close)

	code, err := reg.CreateMatch(testArena(2), "alice")
	require.NoError(t, err)

	s, err := NewScheduler(reg, cfg, clockwork.NewRealClock(), zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()
	s.Start() // no-op

	require.Eventually(t, func() bool { return gw.count(code, EventStateUpdate) > 0 }, time.Second, poll)
	require.Eventually(t, func() bool { return reg.Stats().Matches == 0 }, 2*time.Second, poll)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestSchedulerRejectsZeroTickRate(t *testing.T) {
	cfg := config.DefaultGame()
	cfg.TickRate = 0
	_, err := NewScheduler(NewRegistry(Options{Config: cfg}), cfg, nil, nil)
	assert.Error(t, err)
}

// TestConcurrentOperations runs player actions against the tick driver; it
// is meant for -race.
func TestConcurrentOperations(t *testing.T) {
	h := newHarness(t)
	ids := []string{"p1", "p2", "p3", "p4"}
	code := h.activeMatch(t, ids...)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.reg.Tick()
			}
		}
	}()

	dirs := []string{"up", "down", "left", "right"}
	var players sync.WaitGroup
	for i, id := range ids {
		players.Add(1)
		go func(i int, id string) {
			defer players.Done()
			for n := 0; n < 200; n++ {
				_, _ = h.reg.UpdatePlayerPosition(id, dirs[(i+n)%4])
				_, _ = h.reg.CreateBullet(id)
				_, _ = h.reg.MatchView(code)
			}
		}(i, id)
	}
	players.Wait()
	close(stop)
	wg.Wait()

	view, err := h.reg.MatchView(code)
	require.NoError(t, err)
	for _, p := range view.Players {
		assert.GreaterOrEqual(t, p.Health, 0)
		assert.LessOrEqual(t, p.Health, 100)
		assert.True(t, view.Map[p.Position.Y][p.Position.X] == 0, "player on a wall")
	}
}
