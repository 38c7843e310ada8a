// workers/archiver.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pvp-duel-engine/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// ObjectStore receives archived records. utils.R2Store implements it.
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// ArchivedDuel is the document written per terminal duel.
type ArchivedDuel struct {
	Duel       models.Duel        `json:"duel"`
	Settlement *models.Settlement `json:"settlement,omitempty"`
	ArchivedAt time.Time          `json:"archived_at"`
}

var terminalStatuses = []models.DuelStatus{
	models.DuelStatusCompleted,
	models.DuelStatusDeclined,
	models.DuelStatusExpired,
	models.DuelStatusCancelled,
}

// Archiver moves old terminal duels to object storage and soft-deletes them.
type Archiver struct {
	DB        *gorm.DB
	Store     ObjectStore
	After     time.Duration
	Interval  time.Duration
	BatchSize int
	Clock     clockwork.Clock
}

func NewArchiver(db *gorm.DB, store ObjectStore, after, interval time.Duration, clock clockwork.Clock) *Archiver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Archiver{DB: db, Store: store, After: after, Interval: interval, BatchSize: 100, Clock: clock}
}

// ArchiveKey is the object key of a duel: duels/<yyyy>/<mm>/<dd>/<challengeId>.json
func ArchiveKey(d *models.Duel) string {
	return fmt.Sprintf("duels/%s/%s.json", d.CreatedAt.UTC().Format("2006/01/02"), d.ID)
}

// ArchiveOnce archives one batch. A record is deleted only after its upload succeeded.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	now := a.Clock.Now().UTC()
	cutoff := now.Add(-a.After)

	var duels []models.Duel
	if err := a.DB.WithContext(ctx).
		Where("status IN ?", terminalStatuses).
		Where("completed_at < ? OR closed_at < ?", cutoff, cutoff).
		Order("created_at ASC").
		Limit(a.BatchSize).
		Find(&duels).Error; err != nil {
		return 0, fmt.Errorf("find archivable duels: %w", err)
	}

	archived := 0
	for i := range duels {
		d := &duels[i]
		doc := ArchivedDuel{Duel: *d, ArchivedAt: now}
		if d.Status == models.DuelStatusCompleted {
			var st models.Settlement
			err := a.DB.WithContext(ctx).Where("duel_id = ?", d.ID).First(&st).Error
			switch {
			case err == nil:
				doc.Settlement = &st
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return archived, fmt.Errorf("load settlement of %s: %w", d.ID, err)
			}
		}

		key := ArchiveKey(d)
		if err := a.Store.PutJSON(ctx, key, doc); err != nil {
			return archived, fmt.Errorf("archive %s: %w", d.ID, err)
		}
		if err := a.DB.WithContext(ctx).Delete(d).Error; err != nil {
			return archived, fmt.Errorf("soft-delete %s: %w", d.ID, err)
		}
		archived++
	}
	if archived > 0 {
		log.Printf("[ARCHIVE] ✅ Archived %d duel(s)", archived)
	}
	return archived, nil
}

// Start schedules ArchiveOnce every Interval until ctx is done.
func (a *Archiver) Start(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(a.Clock))
	if err != nil {
		return nil, fmt.Errorf("create archive scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(a.Interval),
		gocron.NewTask(func() {
			if _, err := a.ArchiveOnce(ctx); err != nil {
				log.Printf("[ARCHIVE] ❌ %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule archiver: %w", err)
	}
	sched.Start()
	log.Printf("[ARCHIVE] 🔁 Archiving terminal duels older than %s every %s", a.After, a.Interval)

	go func() {
		<-ctx.Done()
		_ = sched.Shutdown()
		log.Println("[ARCHIVE] ⏹️ Archiver stopped")
	}()
	return sched, nil
}
