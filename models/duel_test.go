package models

import (
	"testing"
	"time"

	"pvp-duel-engine/games"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func pendingDuel(game games.GameType, wins int) *Duel {
	return &Duel{
		ID:             "c1",
		ChallengerID:   "alice",
		ChallengerSide: SideFirst,
		OpponentSide:   SideSecond,
		GameType:       game,
		WinsRequired:   wins,
		Stake:          decimal.NewFromInt(50),
		Pot:            decimal.NewFromInt(100),
		Commission:     decimal.NewFromInt(5),
		Payout:         decimal.NewFromInt(95),
		Status:         DuelStatusPending,
		ExpiresAt:      t0.Add(5 * time.Minute),
	}
}

func activeDuel(t *testing.T, game games.GameType, wins int) *Duel {
	d := pendingDuel(game, wins)
	changed, err := d.Accept("bob", "Bob", nil, "s1", t0, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, changed)
	return d
}

func play(t *testing.T, d *Duel, a, b int) MoveOutcome {
	t.Helper()
	_, err := d.ApplyMove("alice", a, t0, false)
	require.NoError(t, err)
	out, err := d.ApplyMove("bob", b, t0, false)
	require.NoError(t, err)
	return out
}

func TestAccept_OpenChallengeBindsAcceptor(t *testing.T) {
	d := activeDuel(t, games.Dice, 2)
	assert.Equal(t, DuelStatusAccepted, d.Status)
	assert.Equal(t, "bob", *d.OpponentID)
	assert.Equal(t, "s1", *d.SessionID)
	assert.Equal(t, t0.Add(10*time.Minute), d.ExpiresAt)

	changed, err := d.Accept("bob", "Bob", nil, "s2", t0, time.Minute)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "s1", *d.SessionID)

	_, err = d.Accept("carol", "", nil, "s3", t0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAccept_Rejections(t *testing.T) {
	d := pendingDuel(games.Dice, 1)
	_, err := d.Accept("alice", "", nil, "s", t0, time.Minute)
	assert.ErrorIs(t, err, ErrSelfDuel)

	d.OpponentID = strp("bob")
	_, err = d.Accept("carol", "", nil, "s", t0, time.Minute)
	assert.ErrorIs(t, err, ErrNotTarget)

	_, err = d.Accept("bob", "", nil, "s", t0.Add(6*time.Minute), time.Minute)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeclineAndCancel(t *testing.T) {
	d := pendingDuel(games.Dice, 1)
	d.OpponentID = strp("bob")

	_, err := d.Decline("carol", t0)
	assert.ErrorIs(t, err, ErrNotTarget)
	_, err = d.Cancel("bob", t0)
	assert.ErrorIs(t, err, ErrNotParticipant)

	changed, err := d.Decline("bob", t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, DuelStatusDeclined, d.Status)

	changed, err = d.Decline("bob", t0)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = d.Cancel("alice", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExpire(t *testing.T) {
	d := pendingDuel(games.Dice, 1)
	assert.False(t, d.Expire(t0.Add(5*time.Minute)))
	assert.True(t, d.Expire(t0.Add(5*time.Minute+time.Second)))
	assert.Equal(t, DuelStatusExpired, d.Status)
	assert.False(t, d.Expire(t0.Add(time.Hour)))
}

func TestApplyMove_FirstMoveActivates(t *testing.T) {
	d := activeDuel(t, games.Dice, 2)
	out, err := d.ApplyMove("bob", 3, t0, false)
	require.NoError(t, err)
	assert.False(t, out.Resolved)
	assert.Equal(t, DuelStatusActive, d.Status)
	require.NotNil(t, d.StartedAt)
	require.Len(t, d.Rounds, 1)
	assert.Equal(t, 3, *d.Rounds[0].OpponentResult)
	assert.Nil(t, d.Rounds[0].ChallengerResult)

	_, err = d.ApplyMove("bob", 4, t0, false)
	assert.ErrorIs(t, err, ErrAlreadyMoved)
	_, err = d.ApplyMove("carol", 4, t0, false)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestApplyMove_BestOfThree(t *testing.T) {
	d := activeDuel(t, games.Dice, 2)

	out := play(t, d, 5, 3)
	assert.True(t, out.Resolved)
	assert.Equal(t, "alice", *out.Round.WinnerID)
	require.Len(t, d.Rounds, 1, "a decisive round does not open the next one")

	_, err := d.ApplyMove("bob", 6, t0, false)
	require.NoError(t, err)
	require.Len(t, d.Rounds, 2)
	assert.Equal(t, 2, d.Rounds[1].Number)
	out, err = d.ApplyMove("alice", 2, t0, false)
	require.NoError(t, err)
	assert.Equal(t, "bob", *out.Round.WinnerID)
	assert.False(t, out.Completed)

	out = play(t, d, 6, 1)
	assert.True(t, out.Completed)
	assert.Equal(t, DuelStatusCompleted, d.Status)
	assert.Equal(t, "alice", *d.WinnerID)
	assert.Equal(t, "bob", *d.LoserID)
	assert.Equal(t, 2, d.ChallengerScore)
	assert.Equal(t, 1, d.OpponentScore)
	assert.Len(t, d.Rounds, 3)
	assert.NoError(t, d.CheckInvariants(decimal.RequireFromString("0.05")))

	_, err = d.ApplyMove("alice", 1, t0, false)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestApplyMove_DrawIsReplayed(t *testing.T) {
	d := activeDuel(t, games.Dice, 1)
	out := play(t, d, 4, 4)
	assert.True(t, out.Draw)
	assert.False(t, out.Completed)
	assert.Zero(t, d.ChallengerScore+d.OpponentScore)
	require.Len(t, d.Rounds, 2)
	assert.True(t, d.Rounds[0].Draw())

	out = play(t, d, 2, 5)
	assert.True(t, out.Completed)
	assert.Equal(t, "bob", *d.WinnerID)
	assert.Equal(t, 2, out.Round.Number)
	assert.NoError(t, d.CheckInvariants(decimal.RequireFromString("0.05")))
}

func TestApplyMove_StrictTurns(t *testing.T) {
	d := activeDuel(t, games.Darts, 1)
	_, err := d.ApplyMove("bob", 6, t0, true)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = d.ApplyMove("alice", 6, t0, true)
	require.NoError(t, err)
	out, err := d.ApplyMove("bob", 5, t0, true)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, "alice", *d.WinnerID)
}

func TestApplyMove_UnknownGameIsContractViolation(t *testing.T) {
	d := activeDuel(t, "chess", 1)
	_, err := d.ApplyMove("alice", 1, t0, false)
	require.NoError(t, err)
	_, err = d.ApplyMove("bob", 2, t0, false)
	assert.ErrorIs(t, err, ErrContractViolation)
	assert.Equal(t, KindFatal, KindOf(err))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConcurrency, KindOf(ErrBusy))
	assert.Equal(t, KindTransition, KindOf(ErrNotTarget))
	assert.Equal(t, ErrorKind(""), KindOf(assert.AnError))
}
