package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	poll    = 5 * time.Millisecond
)

// killBob leaves bob dead in an active match between alice and bob.
func killBob(t *testing.T, h *harness) string {
	t.Helper()
	code := h.activeMatch(t, "alice", "bob")
	h.place(code, "alice", 2, 5, Right)
	h.place(code, "bob", 3, 5, Up)
	h.setHealth(code, "bob", 20)

	fire(t, h, "alice")
	h.reg.Tick()
	require.Equal(t, PlayerDead, h.player(code, "bob").Status)
	return code
}

func TestRespawnAfterExactDelay(t *testing.T) {
	h := newHarness(t)
	code := killBob(t, h)

	h.clock.Advance(h.cfg.RespawnDelay - time.Millisecond)
	assert.Never(t, func() bool {
		return h.player(code, "bob").Status != PlayerDead
	}, 100*time.Millisecond, poll, "respawned early")

	h.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		return h.player(code, "bob").Status == PlayerAlive
	}, waitFor, poll)

	bob := h.player(code, "bob")
	assert.Equal(t, 100, bob.Health)
	assert.Equal(t, 2, bob.SpawnCount)
	assert.Equal(t, Position{X: 3, Y: 5}, bob.Position)
	assert.Equal(t, []string{"bob is dead", "bob is respawned"}, h.gw.infos(code))
}

func TestRespawnWhileDisconnected(t *testing.T) {
	h := newHarness(t)
	code := killBob(t, h)

	_, err := h.reg.RemovePlayerBySocketID("sock-bob")
	require.NoError(t, err)

	// reconnecting before the respawn keeps bob dead
	res, err := h.reg.AddPlayerToMatch(code, JoinRequest{PlayerID: "bob", SocketID: "sock-bob-2", UserName: "bob"})
	require.NoError(t, err)
	assert.True(t, res.Reconnected)
	assert.Equal(t, PlayerDead, h.player(code, "bob").Status)

	_, err = h.reg.RemovePlayerBySocketID("sock-bob-2")
	require.NoError(t, err)

	h.clock.Advance(h.cfg.RespawnDelay)
	require.Eventually(t, func() bool {
		return h.player(code, "bob").Health == 100
	}, waitFor, poll)
	assert.Equal(t, PlayerDisconnected, h.player(code, "bob").Status)
}

func TestLeavingCancelsRespawn(t *testing.T) {
	h := newHarness(t)
	code := killBob(t, h)

	_, err := h.reg.RemovePlayer("bob")
	require.NoError(t, err)

	h.clock.Advance(h.cfg.RespawnDelay)
	assert.Never(t, func() bool {
		return len(h.gw.infos(code)) > 1
	}, 100*time.Millisecond, poll)
}

func TestDeleteMatchCancelsAllTimers(t *testing.T) {
	h := newHarness(t)
	code := killBob(t, h)

	h.reg.mu.Lock()
	m := h.reg.matchByCodeLocked(code)
	require.NotNil(t, m.finalize)
	require.Len(t, m.respawns, 1)
	h.reg.mu.Unlock()

	require.True(t, h.reg.DeleteMatch(code))

	h.reg.mu.Lock()
	assert.Nil(t, m.idle)
	assert.Nil(t, m.finalize)
	assert.Empty(t, m.respawns)
	assert.True(t, m.closed)
	h.reg.mu.Unlock()

	h.gw.reset()
	h.clock.Advance(h.cfg.ActiveTimeout + h.cfg.WaitingTimeout + h.cfg.RespawnDelay)

	assert.Never(t, func() bool {
		return h.gw.count(code, EventStateUpdateInfo) > 0 || h.gw.count(code, EventMatchDeleted) > 0
	}, 100*time.Millisecond, poll, "a timer fired for a deleted match")
	assert.Empty(t, h.store.Matches())
}

func TestIdleRoomIsClosed(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, 2, "alice")
	h.join(t, code, "alice")

	h.clock.Advance(h.cfg.WaitingTimeout)
	require.Eventually(t, func() bool { return !h.exists(code) }, waitFor, poll)
	assert.Equal(t, 1, h.gw.count(code, EventMatchDeleted))

	_, err := h.reg.UpdatePlayerPosition("alice", "up")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIdleTimerStopsAtStart(t *testing.T) {
	h := newHarness(t)
	code := h.activeMatch(t, "alice", "bob")

	h.clock.Advance(h.cfg.WaitingTimeout)
	assert.Never(t, func() bool { return !h.exists(code) }, 100*time.Millisecond, poll)
}

func TestActiveMatchIsFinalized(t *testing.T) {
	h := newHarness(t)
	code := killBob(t, h)

	h.clock.Advance(h.cfg.ActiveTimeout)
	require.Eventually(t, func() bool { return len(h.store.PlayerStats()) == 2 }, waitFor, poll)

	assert.False(t, h.exists(code))
	assert.Equal(t, 1, h.gw.count(code, EventMatchDeleted))

	recs := h.store.Matches()
	require.Len(t, recs, 1)
	assert.Equal(t, code, recs[0].Code)
	assert.Equal(t, "alice", recs[0].CreatedBy)
	assert.Equal(t, "completed", recs[0].Status)
	assert.Equal(t, 2, recs[0].PlayerCount)

	stats := h.store.PlayerStats()
	assert.Equal(t, "alice", stats[0].PlayerID)
	assert.Equal(t, 1, stats[0].Placement)
	assert.Equal(t, 1, stats[0].Kills)
	assert.Equal(t, "bob", stats[1].PlayerID)
	assert.Equal(t, 2, stats[1].Placement)
}

func TestReap(t *testing.T) {
	h := newHarness(t)
	empty := h.create(t, 2, "alice")
	fresh := h.create(t, 2, "bob")
	occupied := h.create(t, 2, "carol")
	h.join(t, occupied, "carol")
	active := h.activeMatch(t, "dave", "erin")

	old := h.clock.Now().Add(-h.cfg.WaitingTimeout - time.Second)
	h.reg.mu.Lock()
	for _, code := range []string{empty, occupied, active} {
		h.reg.matchByCodeLocked(code).LastActivity = old
	}
	h.reg.mu.Unlock()

	assert.Equal(t, 1, h.reg.Reap())
	assert.False(t, h.exists(empty))
	assert.True(t, h.exists(fresh))
	assert.True(t, h.exists(occupied))
	assert.True(t, h.exists(active))
}

func TestStaleTimerHandleIsIgnored(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, 2, "alice")
	h.join(t, code, "alice")

	h.reg.mu.Lock()
	m := h.reg.matchByCodeLocked(code)
	stale := m.idle
	h.reg.armIdleLocked(m)
	h.reg.mu.Unlock()

	// a callback from the replaced timer must not close the room
	h.reg.onIdleExpired(m, stale)
	assert.True(t, h.exists(code))
}
