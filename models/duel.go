// models/duel.go
package models

import (
	"fmt"
	"time"

	"pvp-duel-engine/games"

	"github.com/shopspring/decimal"
)

type DuelStatus string

const (
	DuelStatusPending   DuelStatus = "pending"
	DuelStatusAccepted  DuelStatus = "accepted"
	DuelStatusActive    DuelStatus = "active"
	DuelStatusCompleted DuelStatus = "completed"
	DuelStatusDeclined  DuelStatus = "declined"
	DuelStatusExpired   DuelStatus = "expired"
	DuelStatusCancelled DuelStatus = "cancelled"
)

// OpenStatuses are the statuses the expiry reaper may force into Expired.
var OpenStatuses = []DuelStatus{DuelStatusPending, DuelStatusAccepted, DuelStatusActive}

// Terminal reports whether no further transition is possible.
func (s DuelStatus) Terminal() bool {
	switch s {
	case DuelStatusCompleted, DuelStatusDeclined, DuelStatusExpired, DuelStatusCancelled:
		return true
	}
	return false
}

// Side is the fixed seat a participant plays from. The challenger always gets SideFirst.
type Side string

const (
	SideFirst  Side = "first"
	SideSecond Side = "second"
)

// Round is one pair of outcome submissions. A round with both results and no
// winner is a draw: resolved but void.
type Round struct {
	Number           int        `json:"number"`
	ChallengerResult *int       `json:"challenger_result"`
	OpponentResult   *int       `json:"opponent_result"`
	WinnerID         *string    `json:"winner_id"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

func (r *Round) Resolved() bool { return r.ChallengerResult != nil && r.OpponentResult != nil }

func (r *Round) Draw() bool { return r.Resolved() && r.WinnerID == nil }

// ReferralKind tells which side of the duel a referral payout comes from.
type ReferralKind string

const (
	ReferralWinner ReferralKind = "winner_referral"
	ReferralLoser  ReferralKind = "loser_referral"
)

type ReferralPayout struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Kind   ReferralKind    `json:"kind"`
}

// Duel is the aggregate root of a wager: a pending challenge that becomes a
// session once accepted. It is mutated only through the methods below and
// persisted with a compare-and-swap on Version.
type Duel struct {
	ID        string  `gorm:"primaryKey;type:varchar(36)" json:"challenge_id"`
	SessionID *string `gorm:"uniqueIndex;type:varchar(36)" json:"session_id"`

	ChallengerID         string  `gorm:"index;not null;type:varchar(64)" json:"challenger_id"`
	ChallengerName       string  `json:"challenger_name"`
	ChallengerReferrerID *string `json:"-"`
	OpponentID           *string `gorm:"index;type:varchar(64)" json:"opponent_id"`
	OpponentName         string  `json:"opponent_name,omitempty"`
	OpponentReferrerID   *string `json:"-"`
	ChallengerSide       Side    `gorm:"type:varchar(8);not null" json:"challenger_side"`
	OpponentSide         Side    `gorm:"type:varchar(8);not null" json:"opponent_side"`

	GameType     games.GameType `gorm:"type:varchar(16);not null" json:"game_type"`
	Format       games.Format   `gorm:"type:varchar(8);not null" json:"format"`
	WinsRequired int            `gorm:"not null" json:"wins_required"`

	// Derived once at creation, never mutated.
	Stake      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"stake"`
	Pot        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"pot"`
	Commission decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"commission"`
	Payout     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"payout"`

	Status    DuelStatus `gorm:"type:varchar(16);not null;index:idx_duels_status_expires,priority:1" json:"status"`
	ExpiresAt time.Time  `gorm:"not null;index:idx_duels_status_expires,priority:2" json:"expires_at"`

	Rounds          []Round `gorm:"type:text;serializer:json" json:"rounds"`
	ChallengerScore int     `gorm:"not null;default:0" json:"challenger_score"`
	OpponentScore   int     `gorm:"not null;default:0" json:"opponent_score"`

	WinnerID        *string          `gorm:"index;type:varchar(64)" json:"winner_id"`
	LoserID         *string          `gorm:"type:varchar(64)" json:"loser_id"`
	ReferralPayouts []ReferralPayout `gorm:"type:text;serializer:json" json:"referral_payouts,omitempty"`

	Version     int64      `gorm:"not null;default:1" json:"version"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"` // declined, cancelled or expired

	Timestamps
}

func (Duel) TableName() string { return "duels" }

// IsParticipant checks if a user plays in the duel.
func (d *Duel) IsParticipant(userID string) bool {
	return d.ChallengerID == userID || (d.OpponentID != nil && *d.OpponentID == userID)
}

// SideOf returns the seat of a participant.
func (d *Duel) SideOf(userID string) (Side, bool) {
	switch {
	case d.ChallengerID == userID:
		return d.ChallengerSide, true
	case d.OpponentID != nil && *d.OpponentID == userID:
		return d.OpponentSide, true
	}
	return "", false
}

// Accept binds the acceptor and turns the challenge into a session. A repeated
// Accept by the bound opponent after the fact is reported as unchanged.
func (d *Duel) Accept(acceptorID, acceptorName string, referrerID *string, sessionID string, now time.Time, playWindow time.Duration) (changed bool, err error) {
	if d.Status == DuelStatusAccepted || d.Status == DuelStatusActive {
		if d.OpponentID != nil && *d.OpponentID == acceptorID {
			return false, nil
		}
		return false, ErrInvalidTransition
	}
	if d.Status != DuelStatusPending || now.After(d.ExpiresAt) {
		return false, ErrInvalidTransition
	}
	if acceptorID == d.ChallengerID {
		return false, ErrSelfDuel
	}
	if d.OpponentID != nil && *d.OpponentID != acceptorID {
		return false, ErrNotTarget
	}

	d.OpponentID = &acceptorID
	if acceptorName != "" {
		d.OpponentName = acceptorName
	}
	d.OpponentReferrerID = referrerID
	d.SessionID = &sessionID
	d.Status = DuelStatusAccepted
	d.AcceptedAt = &now
	d.ExpiresAt = now.Add(playWindow)
	return true, nil
}

// Decline refuses a targeted challenge. Only its target may do so.
func (d *Duel) Decline(actorID string, now time.Time) (changed bool, err error) {
	if d.OpponentID == nil || *d.OpponentID != actorID {
		return false, ErrNotTarget
	}
	if d.Status == DuelStatusDeclined {
		return false, nil
	}
	if d.Status != DuelStatusPending {
		return false, ErrInvalidTransition
	}
	d.Status = DuelStatusDeclined
	d.ClosedAt = &now
	return true, nil
}

// Cancel withdraws a pending challenge. Only the challenger may do so.
func (d *Duel) Cancel(actorID string, now time.Time) (changed bool, err error) {
	if actorID != d.ChallengerID {
		return false, ErrNotParticipant
	}
	if d.Status == DuelStatusCancelled {
		return false, nil
	}
	if d.Status != DuelStatusPending {
		return false, ErrInvalidTransition
	}
	d.Status = DuelStatusCancelled
	d.ClosedAt = &now
	return true, nil
}

// Expire forces a stale open record into Expired.
func (d *Duel) Expire(now time.Time) bool {
	if d.Status.Terminal() || !now.After(d.ExpiresAt) {
		return false
	}
	d.Status = DuelStatusExpired
	d.ClosedAt = &now
	return true
}

// MoveOutcome describes what a single move did to the record.
type MoveOutcome struct {
	Round     Round // the round the move was written to
	Resolved  bool  // both slots are now filled
	Draw      bool
	Completed bool
}

// ApplyMove writes a participant's outcome into the open round and resolves
// the round and series when both slots are filled. With strictTurns the first
// side must move before the second side in every round.
func (d *Duel) ApplyMove(userID string, value int, now time.Time, strictTurns bool) (MoveOutcome, error) {
	if d.Status != DuelStatusAccepted && d.Status != DuelStatusActive {
		return MoveOutcome{}, ErrNotActive
	}
	side, ok := d.SideOf(userID)
	if !ok {
		return MoveOutcome{}, ErrNotParticipant
	}
	isChallenger := userID == d.ChallengerID

	round := d.openRound()
	mine, theirs := &round.ChallengerResult, &round.OpponentResult
	if !isChallenger {
		mine, theirs = theirs, mine
	}
	if *mine != nil {
		return MoveOutcome{}, ErrAlreadyMoved
	}
	if strictTurns && side == SideSecond && *theirs == nil {
		return MoveOutcome{}, ErrNotYourTurn
	}

	v := value
	*mine = &v
	if d.Status == DuelStatusAccepted {
		d.Status = DuelStatusActive
		d.StartedAt = &now
	}

	out := MoveOutcome{}
	if !round.Resolved() {
		out.Round = *round
		d.Rounds[len(d.Rounds)-1] = *round
		return out, nil
	}

	winner, err := games.ResolveRound(d.GameType, *round.ChallengerResult, *round.OpponentResult)
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	round.ResolvedAt = &now
	out.Resolved = true
	switch winner {
	case games.SideA:
		id := d.ChallengerID
		round.WinnerID = &id
		d.ChallengerScore++
	case games.SideB:
		id := *d.OpponentID
		round.WinnerID = &id
		d.OpponentScore++
	default:
		out.Draw = true
	}
	d.Rounds[len(d.Rounds)-1] = *round
	out.Round = *round

	switch {
	case d.ChallengerScore >= d.WinsRequired:
		d.complete(d.ChallengerID, *d.OpponentID, now)
		out.Completed = true
	case d.OpponentScore >= d.WinsRequired:
		d.complete(*d.OpponentID, d.ChallengerID, now)
		out.Completed = true
	case out.Draw:
		// replay with fresh slots; a decisive round leaves the next one to openRound
		d.Rounds = append(d.Rounds, Round{Number: len(d.Rounds) + 1})
	}
	return out, nil
}

// openRound returns a copy of the round awaiting results, appending a fresh
// one when there is none.
func (d *Duel) openRound() *Round {
	if n := len(d.Rounds); n > 0 && !d.Rounds[n-1].Resolved() {
		r := d.Rounds[n-1]
		return &r
	}
	d.Rounds = append(d.Rounds, Round{Number: len(d.Rounds) + 1})
	r := d.Rounds[len(d.Rounds)-1]
	return &r
}

func (d *Duel) complete(winnerID, loserID string, now time.Time) {
	w, l := winnerID, loserID
	d.WinnerID = &w
	d.LoserID = &l
	d.Status = DuelStatusCompleted
	d.CompletedAt = &now
}

// CheckInvariants verifies the record against its derived and denormalized fields.
func (d *Duel) CheckInvariants(commissionRate decimal.Decimal) error {
	if !d.Pot.Equal(d.Stake.Mul(decimal.NewFromInt(2))) {
		return fmt.Errorf("pot %s != 2*stake %s", d.Pot, d.Stake)
	}
	if !d.Payout.Add(d.Commission).Equal(d.Pot) {
		return fmt.Errorf("payout %s + commission %s != pot %s", d.Payout, d.Commission, d.Pot)
	}
	if !d.Commission.Equal(d.Pot.Mul(commissionRate).Round(8)) {
		return fmt.Errorf("commission %s != pot*rate", d.Commission)
	}
	won, inProgress := 0, 0
	for _, r := range d.Rounds {
		if r.WinnerID != nil {
			won++
		}
		if !r.Resolved() && (r.ChallengerResult != nil || r.OpponentResult != nil) {
			inProgress++
		}
	}
	if d.ChallengerScore+d.OpponentScore != won {
		return fmt.Errorf("scores %d+%d != %d decisive rounds", d.ChallengerScore, d.OpponentScore, won)
	}
	if inProgress > 1 {
		return fmt.Errorf("%d rounds in progress", inProgress)
	}
	completed := d.WinnerID != nil && d.LoserID != nil && max(d.ChallengerScore, d.OpponentScore) == d.WinsRequired
	if (d.Status == DuelStatusCompleted) != completed {
		return fmt.Errorf("status %s inconsistent with winner/scores", d.Status)
	}
	if d.OpponentID != nil && *d.OpponentID == d.ChallengerID {
		return fmt.Errorf("challenger plays against themselves")
	}
	return nil
}
