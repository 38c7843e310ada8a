// models/duel_event.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventChallengeCreated  EventType = "ChallengeCreated"
	EventChallengeAccepted EventType = "ChallengeAccepted"
	EventRoundResolved     EventType = "RoundResolved"
	EventDuelCompleted     EventType = "DuelCompleted"
	EventDuelExpired       EventType = "DuelExpired"
	EventDuelDeclined      EventType = "DuelDeclined"
	EventDuelCancelled     EventType = "DuelCancelled"
)

// EventPayload is the body pushed to collaborators. Fields are filled per event type:
// Round for RoundResolved, Settlement for DuelCompleted and the unwind fields
// (session, participants, stake) for Expired/Declined/Cancelled.
type EventPayload struct {
	ChallengeID  string          `json:"challenge_id"`
	SessionID    string          `json:"session_id,omitempty"`
	ChallengerID string          `json:"challenger_id"`
	OpponentID   string          `json:"opponent_id,omitempty"`
	Stake        decimal.Decimal `json:"stake"`
	Status       DuelStatus      `json:"status"`
	Round        *Round          `json:"round,omitempty"`
	Settlement   *Settlement     `json:"settlement,omitempty"`
}

// DuelEvent is an outbox row written in the same transaction as the duel
// update it describes. The dispatcher delivers rows in Seq order until acknowledged.
type DuelEvent struct {
	Seq          uint64       `gorm:"primaryKey;autoIncrement" json:"seq"`
	ID           string       `gorm:"uniqueIndex;type:varchar(36);not null" json:"id"`
	Type         EventType    `gorm:"type:varchar(32);not null" json:"type"`
	DuelID       string       `gorm:"index;type:varchar(36);not null" json:"duel_id"`
	ChallengerID string       `gorm:"index;type:varchar(64)" json:"-"`
	OpponentID   string       `gorm:"index;type:varchar(64)" json:"-"`
	Payload      EventPayload `gorm:"type:text;serializer:json" json:"payload"`
	CreatedAt    time.Time    `json:"created_at"`
	DeliveredAt  *time.Time   `gorm:"index" json:"-"`
	Attempts     int          `gorm:"not null;default:0" json:"-"`
	LastError    string       `gorm:"type:text" json:"-"`
}

func (DuelEvent) TableName() string { return "duel_events" }
