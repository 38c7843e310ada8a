// services/scheduler.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pvp-duel-engine/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

const reaperBatch = 200

// ExpiryReaper force-expires open duels whose deadline has passed.
type ExpiryReaper struct {
	Duels    *DuelService
	Interval time.Duration
}

func NewExpiryReaper(duels *DuelService, interval time.Duration) *ExpiryReaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExpiryReaper{Duels: duels, Interval: interval}
}

// Sweep expires every stale open record once. A record whose conditional
// update loses a race is skipped and picked up by the next sweep if still open.
func (r *ExpiryReaper) Sweep(ctx context.Context) (int, error) {
	now := r.Duels.now()
	var ids []string
	err := r.Duels.DB.WithContext(ctx).Model(&models.Duel{}).
		Where("status IN ? AND expires_at < ?", models.OpenStatuses, now).
		Order("expires_at ASC").
		Limit(reaperBatch).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("find stale duels: %w", err)
	}

	expired := 0
	for _, id := range ids {
		_, fx, err := r.Duels.mutateOnce(ctx, byID(id), func(_ *gorm.DB, d *models.Duel, now time.Time) (effects, error) {
			var fx effects
			if d.Expire(now) {
				fx.changed = true
				fx.emit(models.EventDuelExpired)
			}
			return fx, nil
		})
		switch {
		case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrNotFound):
			continue
		case err != nil:
			log.Printf("[REAPER] ❌ Failed to expire duel %s: %v", id, err)
			continue
		}
		if fx.changed {
			expired++
			log.Printf("[REAPER] ⏰ Duel %s expired", id)
		}
	}
	return expired, nil
}

// Start schedules the sweep on the service clock and stops it with ctx.
func (r *ExpiryReaper) Start(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(r.Duels.Clock))
	if err != nil {
		return nil, fmt.Errorf("create reaper scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(r.Interval),
		gocron.NewTask(func() {
			n, err := r.Sweep(ctx)
			if err != nil {
				log.Printf("[REAPER] ❌ Sweep failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[REAPER] ✅ Expired %d duel(s)", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule reaper: %w", err)
	}
	sched.Start()
	log.Printf("[REAPER] 🔁 Started, sweeping every %s", r.Interval)

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Printf("[REAPER] ⚠️ Shutdown: %v", err)
		}
		log.Println("[REAPER] ⏹️ Stopped")
	}()
	return sched, nil
}
