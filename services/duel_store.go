// services/duel_store.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pvp-duel-engine/models"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

const (
	casRetries = 3
	casBackoff = 5 * time.Millisecond
)

// effects is what a transition asks the store to persist next to the record.
type effects struct {
	changed    bool
	events     []pendingEvent
	settlement *models.Settlement
}

type pendingEvent struct {
	typ   models.EventType
	round *models.Round
}

func (fx *effects) emit(typ models.EventType) {
	fx.events = append(fx.events, pendingEvent{typ: typ})
}

// transition mutates a loaded record in memory. Reads it needs go through tx.
type transition func(tx *gorm.DB, d *models.Duel, now time.Time) (effects, error)

type finder func(tx *gorm.DB) *gorm.DB

func byID(id string) finder {
	return func(tx *gorm.DB) *gorm.DB { return tx.Where("id = ?", id) }
}

func bySession(sessionID string) finder {
	return func(tx *gorm.DB) *gorm.DB { return tx.Where("session_id = ?", sessionID) }
}

// mutate runs a transition, retrying on version conflicts with a fresh read.
// A retried transition re-validates against the new state, so a lost race
// surfaces as the domain error the winner's write implies.
func (s *DuelService) mutate(ctx context.Context, find finder, fn transition) (*models.Duel, effects, error) {
	var (
		out *models.Duel
		fx  effects
	)
	b := retry.WithMaxRetries(casRetries, retry.NewConstant(casBackoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		d, applied, err := s.mutateOnce(ctx, find, fn)
		if errors.Is(err, models.ErrConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		out, fx = d, applied
		return nil
	})
	return out, fx, err
}

// mutateOnce loads, transitions and writes the record with a compare-and-swap
// on Version. Events and settlement go into the same transaction.
func (s *DuelService) mutateOnce(ctx context.Context, find finder, fn transition) (*models.Duel, effects, error) {
	now := s.now()
	var (
		d  models.Duel
		fx effects
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := find(tx).First(&d).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrNotFound
			}
			return fmt.Errorf("load duel: %w", err)
		}

		var err error
		fx, err = fn(tx, &d, now)
		if err != nil {
			return err
		}
		if !fx.changed {
			return nil
		}

		prev := d.Version
		d.Version = prev + 1
		res := tx.Model(&d).
			Where("version = ?", prev).
			Select("*").
			Omit("id", "created_at").
			Updates(&d)
		if res.Error != nil {
			return fmt.Errorf("update duel %s: %w", d.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return models.ErrConflict
		}

		if fx.settlement != nil {
			if err := tx.Create(fx.settlement).Error; err != nil {
				return fmt.Errorf("store settlement for %s: %w", d.ID, err)
			}
		}
		return s.writeEvents(tx, &d, fx, now)
	})
	if err != nil {
		return nil, effects{}, err
	}
	return &d, fx, nil
}

func (s *DuelService) writeEvents(tx *gorm.DB, d *models.Duel, fx effects, now time.Time) error {
	for _, pe := range fx.events {
		ev := newEvent(d, pe.typ, now)
		ev.Payload.Round = pe.round
		if pe.typ == models.EventDuelCompleted {
			ev.Payload.Settlement = fx.settlement
		}
		if err := tx.Create(&ev).Error; err != nil {
			return fmt.Errorf("store %s event for %s: %w", pe.typ, d.ID, err)
		}
	}
	return nil
}

func newEvent(d *models.Duel, typ models.EventType, now time.Time) models.DuelEvent {
	p := models.EventPayload{
		ChallengeID:  d.ID,
		ChallengerID: d.ChallengerID,
		Stake:        d.Stake,
		Status:       d.Status,
	}
	if d.SessionID != nil {
		p.SessionID = *d.SessionID
	}
	if d.OpponentID != nil {
		p.OpponentID = *d.OpponentID
	}
	return models.DuelEvent{
		ID:           uuid.NewString(),
		Type:         typ,
		DuelID:       d.ID,
		ChallengerID: p.ChallengerID,
		OpponentID:   p.OpponentID,
		Payload:      p,
		CreatedAt:    now,
	}
}
