package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"pvp-duel-engine/games"
	"pvp-duel-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_ExpiresStalePending(t *testing.T) {
	h := newHarness(t)
	reaper := NewExpiryReaper(h.svc, time.Second)
	d := h.create(t, games.Dice, games.Bo1, 10, nil)

	n, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(10 * time.Minute)
	n, err = reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := h.svc.GetChallenge(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DuelStatusExpired, rec.Status)
	require.NotNil(t, rec.ClosedAt)

	n, err = reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	evs := h.events(t, models.EventDuelExpired)
	require.Len(t, evs, 1)
	assert.Equal(t, "alice", evs[0].Payload.ChallengerID)
	assert.True(t, evs[0].Payload.Stake.Equal(d.Stake))
}

func TestSweep_ConcurrentReapersExpireOnce(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.create(t, games.Dice, games.Bo1, 10, nil)
	}
	h.clock.Advance(6 * time.Minute)

	total := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := NewExpiryReaper(h.svc, time.Second).Sweep(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, total)
	assert.Len(t, h.events(t, models.EventDuelExpired), 3)
}

func TestSweep_ActiveSessionUsesPlayWindow(t *testing.T) {
	h := newHarness(t)
	session := h.session(t, games.Dice, games.Bo3)
	h.move(t, session, "alice", 3)

	reaper := NewExpiryReaper(h.svc, time.Second)
	h.clock.Advance(6 * time.Minute)
	n, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(5 * time.Minute)
	n, err = reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev := h.events(t, models.EventDuelExpired)
	require.Len(t, ev, 1)
	assert.Equal(t, session, ev[0].Payload.SessionID)
	assert.Equal(t, "bob", ev[0].Payload.OpponentID)
}

func TestSweep_LeavesTerminalRecords(t *testing.T) {
	h := newHarness(t)
	session := h.session(t, games.Dice, games.Bo1)
	h.move(t, session, "alice", 6)
	h.move(t, session, "bob", 1)

	h.clock.Advance(time.Hour)
	n, err := NewExpiryReaper(h.svc, time.Second).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReaper_RunsOnSchedule(t *testing.T) {
	h := newHarness(t)
	d := h.create(t, games.Dice, games.Bo1, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched, err := NewExpiryReaper(h.svc, 30*time.Second).Start(ctx)
	require.NoError(t, err)
	jobs := sched.Jobs()
	require.Len(t, jobs, 1)

	h.clock.Advance(6 * time.Minute)
	require.NoError(t, jobs[0].RunNow())

	assert.Eventually(t, func() bool {
		rec, err := h.svc.GetChallenge(context.Background(), d.ID)
		return err == nil && rec.Status == models.DuelStatusExpired
	}, 2*time.Second, 20*time.Millisecond)
}
