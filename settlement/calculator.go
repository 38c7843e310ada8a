// Package settlement turns a completed duel into ledger instructions.
package settlement

import (
	"fmt"
	"time"

	"pvp-duel-engine/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Precision of every stored money amount.
const Precision = 8

var two = decimal.NewFromInt(2)

// Rates are fractions in [0,1]. Referral rates apply to the commission, not the pot.
type Rates struct {
	Commission     decimal.Decimal
	WinnerReferral decimal.Decimal
	LoserReferral  decimal.Decimal
}

// DefaultRates mirror the production configuration.
func DefaultRates() Rates {
	return Rates{
		Commission:     decimal.RequireFromString("0.05"),
		WinnerReferral: decimal.RequireFromString("0.20"),
		LoserReferral:  decimal.RequireFromString("0.10"),
	}
}

// Validate rejects rates outside [0,1] and referral shares exceeding the commission.
func (r Rates) Validate() error {
	for name, v := range map[string]decimal.Decimal{
		"commission":      r.Commission,
		"winner referral": r.WinnerReferral,
		"loser referral":  r.LoserReferral,
	} {
		if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s rate %s outside [0,1]", name, v)
		}
	}
	if r.WinnerReferral.Add(r.LoserReferral).GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("referral rates %s + %s exceed the commission", r.WinnerReferral, r.LoserReferral)
	}
	return nil
}

// Amounts are the money figures derived from the stake at creation.
type Amounts struct {
	Pot        decimal.Decimal
	Commission decimal.Decimal
	Payout     decimal.Decimal
}

// Derive computes pot, commission and payout. Payout is taken as the
// remainder so that payout + commission == pot holds exactly.
func Derive(stake, commissionRate decimal.Decimal) Amounts {
	pot := stake.Mul(two)
	commission := pot.Mul(commissionRate).Round(Precision)
	return Amounts{
		Pot:        pot,
		Commission: commission,
		Payout:     pot.Sub(commission),
	}
}

// Calculate produces the settlement of a completed duel. Referral lines are
// emitted only for referrers snapshotted on the record.
func Calculate(d *models.Duel, rates Rates, now time.Time) (*models.Settlement, error) {
	if d.Status != models.DuelStatusCompleted || d.WinnerID == nil || d.LoserID == nil || d.SessionID == nil {
		return nil, fmt.Errorf("%w: settle duel %s in status %s", models.ErrContractViolation, d.ID, d.Status)
	}

	winnerRef, loserRef := d.ChallengerReferrerID, d.OpponentReferrerID
	if *d.WinnerID != d.ChallengerID {
		winnerRef, loserRef = loserRef, winnerRef
	}

	payouts := []models.ReferralPayout{}
	referred := decimal.Zero
	add := func(ref *string, player string, rate decimal.Decimal, kind models.ReferralKind) {
		if ref == nil || *ref == "" || *ref == player {
			return
		}
		amount := d.Commission.Mul(rate).Round(Precision)
		if !amount.IsPositive() {
			return
		}
		payouts = append(payouts, models.ReferralPayout{UserID: *ref, Amount: amount, Kind: kind})
		referred = referred.Add(amount)
	}
	add(winnerRef, *d.WinnerID, rates.WinnerReferral, models.ReferralWinner)
	add(loserRef, *d.LoserID, rates.LoserReferral, models.ReferralLoser)

	return &models.Settlement{
		ID:              uuid.NewString(),
		DuelID:          d.ID,
		SessionID:       *d.SessionID,
		WinnerID:        *d.WinnerID,
		LoserID:         *d.LoserID,
		WinnerCredit:    d.Payout,
		LoserDebit:      d.Stake,
		Commission:      d.Commission,
		HouseShare:      d.Commission.Sub(referred),
		ReferralPayouts: payouts,
		CreatedAt:       now,
	}, nil
}
