// models/settlement.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement is the ledger instruction of a completed duel. Exactly one row
// exists per duel; it is written in the transaction that completes the duel.
type Settlement struct {
	ID              string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DuelID          string           `gorm:"uniqueIndex;type:varchar(36);not null" json:"duel_id"`
	SessionID       string           `gorm:"index;type:varchar(36);not null" json:"session_id"`
	WinnerID        string           `gorm:"type:varchar(64);not null" json:"winner_id"`
	LoserID         string           `gorm:"type:varchar(64);not null" json:"loser_id"`
	WinnerCredit    decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"winner_credit"`
	LoserDebit      decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"loser_debit"`
	Commission      decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"commission"`
	HouseShare      decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"house_share"`
	ReferralPayouts []ReferralPayout `gorm:"type:text;serializer:json" json:"referral_payouts"`
	CreatedAt       time.Time        `json:"created_at"`
}

func (Settlement) TableName() string { return "duel_settlements" }
