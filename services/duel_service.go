// services/duel_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"pvp-duel-engine/arbiter"
	"pvp-duel-engine/config"
	"pvp-duel-engine/games"
	"pvp-duel-engine/models"
	"pvp-duel-engine/settlement"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Policy holds the tunables of the duel lifecycle.
type Policy struct {
	MinStake       decimal.Decimal
	MaxStake       decimal.Decimal
	Rates          settlement.Rates
	AcceptWindow   time.Duration
	PlayWindow     time.Duration
	StrictTurns    bool
	MaxActiveDuels int           // 0 disables the check
	CreateCooldown time.Duration // 0 disables the check
}

func DefaultPolicy() Policy {
	return Policy{
		MinStake:       decimal.NewFromInt(1),
		MaxStake:       decimal.NewFromInt(1000),
		Rates:          settlement.DefaultRates(),
		AcceptWindow:   5 * time.Minute,
		PlayWindow:     10 * time.Minute,
		MaxActiveDuels: 3,
		CreateCooldown: 30 * time.Second,
	}
}

func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		MinStake:       cfg.MinStake,
		MaxStake:       cfg.MaxStake,
		Rates:          cfg.Rates(),
		AcceptWindow:   cfg.AcceptWindow,
		PlayWindow:     cfg.PlayWindow,
		StrictTurns:    cfg.StrictTurns,
		MaxActiveDuels: cfg.MaxActiveDuels,
		CreateCooldown: cfg.CreateCooldown,
	}
}

// DuelService is the duel state machine. Every transition is a single
// database transaction guarded by the record version.
type DuelService struct {
	DB      *gorm.DB
	Arbiter arbiter.MoveArbiter
	Clock   clockwork.Clock
	Policy  Policy
}

func NewDuelService(db *gorm.DB, arb arbiter.MoveArbiter, clock clockwork.Clock, policy Policy) *DuelService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DuelService{DB: db, Arbiter: arb, Clock: clock, Policy: policy}
}

func (s *DuelService) now() time.Time { return s.Clock.Now().UTC() }

type CreateChallengeInput struct {
	ChallengerID   string          `json:"-"`
	ChallengerName string          `json:"challenger_name"`
	OpponentID     *string         `json:"opponent_id"` // nil for an open challenge
	OpponentName   string          `json:"opponent_name"`
	GameType       games.GameType  `json:"game_type"`
	Format         games.Format    `json:"format"`
	Stake          decimal.Decimal `json:"stake"`
}

func (s *DuelService) validateCreate(in *CreateChallengeInput) (int, error) {
	in.ChallengerID = strings.TrimSpace(in.ChallengerID)
	if in.ChallengerID == "" {
		return 0, models.ErrMissingParticipant
	}
	if in.OpponentID != nil {
		o := strings.TrimSpace(*in.OpponentID)
		if o == "" {
			in.OpponentID = nil
		} else if o == in.ChallengerID {
			return 0, models.ErrSelfDuel
		} else {
			in.OpponentID = &o
		}
	}
	if in.Stake.LessThan(s.Policy.MinStake) || in.Stake.GreaterThan(s.Policy.MaxStake) ||
		!in.Stake.Equal(in.Stake.Round(settlement.Precision)) {
		return 0, models.ErrInvalidStake
	}
	if !in.GameType.Valid() {
		return 0, models.ErrInvalidGameType
	}
	wins, err := games.WinsRequired(in.Format)
	if err != nil {
		return 0, models.ErrInvalidFormat
	}
	return wins, nil
}

// CreateChallenge opens a Pending challenge, targeted when OpponentID is set.
func (s *DuelService) CreateChallenge(ctx context.Context, in CreateChallengeInput) (*models.Duel, error) {
	wins, err := s.validateCreate(&in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	amounts := settlement.Derive(in.Stake, s.Policy.Rates.Commission)
	d := models.Duel{
		ID:             uuid.NewString(),
		ChallengerID:   in.ChallengerID,
		ChallengerName: in.ChallengerName,
		OpponentID:     in.OpponentID,
		OpponentName:   in.OpponentName,
		ChallengerSide: models.SideFirst,
		OpponentSide:   models.SideSecond,
		GameType:       in.GameType,
		Format:         in.Format,
		WinsRequired:   wins,
		Stake:          in.Stake,
		Pot:            amounts.Pot,
		Commission:     amounts.Commission,
		Payout:         amounts.Payout,
		Status:         models.DuelStatusPending,
		ExpiresAt:      now.Add(s.Policy.AcceptWindow),
		Rounds:         []models.Round{},
		Version:        1,
	}
	d.CreatedAt = now

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkCreationLimits(tx, in.ChallengerID, now); err != nil {
			return err
		}
		p, err := findParticipant(tx, in.ChallengerID)
		if err != nil {
			return err
		}
		if p != nil {
			d.ChallengerReferrerID = p.ReferredByID
			if d.ChallengerName == "" {
				d.ChallengerName = p.Username
			}
		}
		if err := tx.Create(&d).Error; err != nil {
			return fmt.Errorf("create duel: %w", err)
		}
		ev := newEvent(&d, models.EventChallengeCreated, now)
		if err := tx.Create(&ev).Error; err != nil {
			return fmt.Errorf("store %s event: %w", ev.Type, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[DUEL] ✅ Challenge %s created by %s (%s %s, stake %s)", d.ID, d.ChallengerID, d.GameType, d.Format, d.Stake)
	return &d, nil
}

func (s *DuelService) checkCreationLimits(tx *gorm.DB, userID string, now time.Time) error {
	if s.Policy.MaxActiveDuels > 0 {
		var open int64
		if err := tx.Model(&models.Duel{}).
			Where("status IN ?", models.OpenStatuses).
			Where("challenger_id = ? OR opponent_id = ?", userID, userID).
			Count(&open).Error; err != nil {
			return fmt.Errorf("count open duels: %w", err)
		}
		if open >= int64(s.Policy.MaxActiveDuels) {
			return models.ErrTooManyActiveDuels
		}
	}
	if s.Policy.CreateCooldown > 0 {
		var recent int64
		if err := tx.Model(&models.Duel{}).
			Where("challenger_id = ? AND created_at > ?", userID, now.Add(-s.Policy.CreateCooldown)).
			Count(&recent).Error; err != nil {
			return fmt.Errorf("count recent duels: %w", err)
		}
		if recent > 0 {
			return models.ErrCooldown
		}
	}
	return nil
}

// findParticipant returns nil when the user is not mirrored yet.
func findParticipant(tx *gorm.DB, userID string) (*models.Participant, error) {
	var p models.Participant
	err := tx.Where("external_user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup participant %s: %w", userID, err)
	}
	return &p, nil
}

// Accept binds the acceptor to the challenge and opens the session.
// Repeating it as the bound opponent returns the record unchanged.
func (s *DuelService) Accept(ctx context.Context, challengeID, acceptorID, acceptorName string) (*models.Duel, error) {
	d, fx, err := s.mutate(ctx, byID(challengeID), s.acceptTransition(acceptorID, acceptorName))
	if err != nil {
		log.Printf("[DUEL] ⚠️ Accept of %s by %s refused: %v", challengeID, acceptorID, err)
		return nil, err
	}
	if fx.changed {
		log.Printf("[DUEL] ✅ Challenge %s accepted by %s, session %s", d.ID, acceptorID, *d.SessionID)
	}
	return d, nil
}

// acceptTransition binds the acceptor, snapshotting their mirrored name and
// referrer while the challenge is still pending.
func (s *DuelService) acceptTransition(acceptorID, acceptorName string) transition {
	return func(tx *gorm.DB, d *models.Duel, now time.Time) (effects, error) {
		var fx effects
		var referrer *string
		name := acceptorName
		if d.Status == models.DuelStatusPending {
			p, err := findParticipant(tx, acceptorID)
			if err != nil {
				return fx, err
			}
			if p != nil {
				referrer = p.ReferredByID
				if name == "" {
					name = p.Username
				}
			}
		}
		changed, err := d.Accept(acceptorID, name, referrer, uuid.NewString(), now, s.Policy.PlayWindow)
		if err != nil {
			return fx, err
		}
		fx.changed = changed
		if changed {
			fx.emit(models.EventChallengeAccepted)
		}
		return fx, nil
	}
}

// Decline refuses a targeted challenge.
func (s *DuelService) Decline(ctx context.Context, challengeID, actorID string) (*models.Duel, error) {
	d, fx, err := s.mutate(ctx, byID(challengeID), func(_ *gorm.DB, d *models.Duel, now time.Time) (effects, error) {
		var fx effects
		changed, err := d.Decline(actorID, now)
		if err != nil {
			return fx, err
		}
		fx.changed = changed
		if changed {
			fx.emit(models.EventDuelDeclined)
		}
		return fx, nil
	})
	if err != nil {
		return nil, err
	}
	if fx.changed {
		log.Printf("[DUEL] ✅ Challenge %s declined by %s", d.ID, actorID)
	}
	return d, nil
}

// Cancel withdraws a pending challenge.
func (s *DuelService) Cancel(ctx context.Context, challengeID, actorID string) (*models.Duel, error) {
	d, fx, err := s.mutate(ctx, byID(challengeID), func(_ *gorm.DB, d *models.Duel, now time.Time) (effects, error) {
		var fx effects
		changed, err := d.Cancel(actorID, now)
		if err != nil {
			return fx, err
		}
		fx.changed = changed
		if changed {
			fx.emit(models.EventDuelCancelled)
		}
		return fx, nil
	})
	if err != nil {
		return nil, err
	}
	if fx.changed {
		log.Printf("[DUEL] ✅ Challenge %s cancelled by %s", d.ID, actorID)
	}
	return d, nil
}

// MoveResult is the record after a move plus what the move caused.
type MoveResult struct {
	Duel       *models.Duel       `json:"duel"`
	Round      models.Round       `json:"round"`
	Resolved   bool               `json:"resolved"`
	Draw       bool               `json:"draw"`
	Completed  bool               `json:"completed"`
	Settlement *models.Settlement `json:"settlement,omitempty"`
}

// SubmitMove records one outcome value for the caller in the open round.
func (s *DuelService) SubmitMove(ctx context.Context, sessionID, userID string, value int) (*MoveResult, error) {
	current, err := s.GetRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := games.ValidateOutcome(current.GameType, value); err != nil {
		return nil, models.ErrInvalidOutcome
	}

	token, err := s.Arbiter.TryBeginMove(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Arbiter.EndMove(context.WithoutCancel(ctx), token); err != nil {
			log.Printf("[DUEL] ⚠️ Failed to release move lock %s/%s: %v", sessionID, userID, err)
		}
	}()

	var outcome models.MoveOutcome
	d, fx, err := s.mutate(ctx, bySession(sessionID), func(_ *gorm.DB, d *models.Duel, now time.Time) (effects, error) {
		var fx effects
		if now.After(d.ExpiresAt) && !d.Status.Terminal() {
			// waiting for the reaper
			return fx, models.ErrNotActive
		}
		out, err := d.ApplyMove(userID, value, now, s.Policy.StrictTurns)
		if err != nil {
			return fx, err
		}
		outcome = out
		fx.changed = true
		if out.Resolved {
			round := out.Round
			fx.events = append(fx.events, pendingEvent{typ: models.EventRoundResolved, round: &round})
		}
		if out.Completed {
			st, err := settlement.Calculate(d, s.Policy.Rates, now)
			if err != nil {
				return fx, err
			}
			d.ReferralPayouts = st.ReferralPayouts
			fx.settlement = st
			fx.emit(models.EventDuelCompleted)
		}
		return fx, nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case outcome.Completed:
		log.Printf("[DUEL] 🏆 Session %s completed: winner %s (%d-%d)", sessionID, *d.WinnerID, d.ChallengerScore, d.OpponentScore)
	case outcome.Draw:
		log.Printf("[DUEL] 🔁 Session %s round %d drawn, replaying", sessionID, outcome.Round.Number)
	}
	return &MoveResult{
		Duel:       d,
		Round:      outcome.Round,
		Resolved:   outcome.Resolved,
		Draw:       outcome.Draw,
		Completed:  outcome.Completed,
		Settlement: fx.settlement,
	}, nil
}

// GetRecord returns the session record.
func (s *DuelService) GetRecord(ctx context.Context, sessionID string) (*models.Duel, error) {
	return s.first(ctx, bySession(sessionID))
}

// GetChallenge returns the record by its challenge id.
func (s *DuelService) GetChallenge(ctx context.Context, challengeID string) (*models.Duel, error) {
	return s.first(ctx, byID(challengeID))
}

func (s *DuelService) first(ctx context.Context, find finder) (*models.Duel, error) {
	var d models.Duel
	if err := find(s.DB.WithContext(ctx)).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("load duel: %w", err)
	}
	return &d, nil
}

// Settlement returns the stored settlement of a completed session.
func (s *DuelService) Settlement(ctx context.Context, sessionID string) (*models.Settlement, error) {
	var st models.Settlement
	if err := s.DB.WithContext(ctx).Where("session_id = ?", sessionID).First(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("load settlement: %w", err)
	}
	return &st, nil
}

// ActiveDuels lists the user's open duels, newest first.
func (s *DuelService) ActiveDuels(ctx context.Context, userID string) ([]models.Duel, error) {
	var duels []models.Duel
	err := s.DB.WithContext(ctx).
		Where("status IN ?", models.OpenStatuses).
		Where("challenger_id = ? OR opponent_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&duels).Error
	if err != nil {
		return nil, fmt.Errorf("list active duels: %w", err)
	}
	return duels, nil
}

// History pages through the user's completed duels, latest completion first.
func (s *DuelService) History(ctx context.Context, userID string, limit, offset int) ([]models.Duel, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	q := s.DB.WithContext(ctx).Model(&models.Duel{}).
		Where("status = ?", models.DuelStatusCompleted).
		Where("challenger_id = ? OR opponent_id = ?", userID, userID).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}
	var duels []models.Duel
	if err := q.Order("completed_at DESC").Limit(limit).Offset(offset).Find(&duels).Error; err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	return duels, total, nil
}

// OpenChallenges lists unexpired open challenges that anyone may accept, newest first.
func (s *DuelService) OpenChallenges(ctx context.Context, limit int) ([]models.Duel, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	var duels []models.Duel
	err := s.DB.WithContext(ctx).
		Where("status = ? AND opponent_id IS NULL", models.DuelStatusPending).
		Where("expires_at > ?", s.now()).
		Order("created_at DESC").
		Limit(limit).
		Find(&duels).Error
	if err != nil {
		return nil, fmt.Errorf("list open challenges: %w", err)
	}
	return duels, nil
}

// GameStats aggregates a user's completed duels of one game type.
type GameStats struct {
	GameType   games.GameType  `json:"game_type"`
	TotalGames int64           `json:"total_games"`
	Wins       int64           `json:"wins"`
	WinRate    float64         `json:"win_rate"`
	NetProfit  decimal.Decimal `json:"net_profit"`
}

type UserStats struct {
	UserID       string          `json:"user_id"`
	TotalGames   int64           `json:"total_games"`
	Wins         int64           `json:"wins"`
	Losses       int64           `json:"losses"`
	WinRate      float64         `json:"win_rate"`
	NetProfit    decimal.Decimal `json:"net_profit"`
	FavoriteGame games.GameType  `json:"favorite_game,omitempty"`
	ByGame       []GameStats     `json:"by_game"`
}

// winRate is a percentage with two decimals.
func winRate(wins, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(wins)*10000/float64(total)) / 100
}

// Stats summarizes the user's completed duels per game type. A win counts the
// payout minus the stake as profit, a loss the stake.
func (s *DuelService) Stats(ctx context.Context, userID string) (*UserStats, error) {
	var rows []GameStats
	err := s.DB.WithContext(ctx).Model(&models.Duel{}).
		Select(`game_type,
			COUNT(*) AS total_games,
			SUM(CASE WHEN winner_id = ? THEN 1 ELSE 0 END) AS wins,
			SUM(CASE WHEN winner_id = ? THEN payout - stake ELSE -stake END) AS net_profit`, userID, userID).
		Where("status = ?", models.DuelStatusCompleted).
		Where("challenger_id = ? OR opponent_id = ?", userID, userID).
		Group("game_type").
		Order("game_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate stats for %s: %w", userID, err)
	}

	out := &UserStats{UserID: userID, NetProfit: decimal.Zero, ByGame: make([]GameStats, 0, len(rows))}
	var favorite int64
	for _, r := range rows {
		r.WinRate = winRate(r.Wins, r.TotalGames)
		out.ByGame = append(out.ByGame, r)
		out.TotalGames += r.TotalGames
		out.Wins += r.Wins
		out.NetProfit = out.NetProfit.Add(r.NetProfit)
		if r.TotalGames > favorite {
			favorite = r.TotalGames
			out.FavoriteGame = r.GameType
		}
	}
	out.Losses = out.TotalGames - out.Wins
	out.WinRate = winRate(out.Wins, out.TotalGames)
	return out, nil
}
