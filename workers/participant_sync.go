// workers/participant_sync.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"pvp-duel-engine/models"
	"pvp-duel-engine/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileChange is one entry of the sync service's profile feed.
type ProfileChange struct {
	ExternalID   string    `json:"external_id"`
	Username     string    `json:"username"`
	ReferredByID *string   `json:"referred_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []ProfileChange `json:"users"`
}

// ParticipantSync mirrors usernames and referrers from the profile service.
type ParticipantSync struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	clock        clockwork.Clock
}

func NewParticipantSync(db *gorm.DB, syncServiceBaseURL, serviceToken string, interval time.Duration) *ParticipantSync {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ParticipantSync{
		db:           db,
		interval:     interval,
		baseURL:      syncServiceBaseURL,
		endpointPath: "/api/v1/public/profiles",
		serviceToken: serviceToken,
		httpClient:   utils.NewHTTPClient(30 * time.Second),
		clock:        clockwork.NewRealClock(),
	}
}

func (w *ParticipantSync) Start(ctx context.Context) {
	log.Println("[SYNC] 🔁 Starting participant sync (sync-service → participants)…")
	go w.run(ctx)
}

func (w *ParticipantSync) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		log.Printf("[SYNC] ⚠️ Initial sync failed: %v", err)
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := w.SyncOnce(ctx); err != nil {
				log.Printf("[SYNC] ❌ Sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("[SYNC] ⏹️ Participant sync stopped")
			return
		}
	}
}

// lastSyncTime is the newest UpdatedAt mirrored so far, or the epoch.
func (w *ParticipantSync) lastSyncTime(ctx context.Context) time.Time {
	var latest models.Participant
	err := w.db.WithContext(ctx).Order("updated_at DESC").First(&latest).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[SYNC] ⚠️ Could not read last sync time: %v", err)
		}
		return time.Unix(0, 0).UTC()
	}
	return latest.UpdatedAt
}

// SyncOnce pulls changes since the last mirrored update and upserts them.
func (w *ParticipantSync) SyncOnce(ctx context.Context) (int, error) {
	changes, err := w.fetch(ctx, w.lastSyncTime(ctx))
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	upserted := 0
	for _, ch := range changes {
		if ch.ExternalID == "" {
			continue
		}
		p := models.Participant{
			ID:             uuid.NewString(),
			ExternalUserID: ch.ExternalID,
			Username:       ch.Username,
			ReferredByID:   ch.ReferredByID,
		}
		p.CreatedAt = ch.CreatedAt
		p.UpdatedAt = ch.UpdatedAt

		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "referred_by_id", "updated_at"}),
		}).Create(&p).Error; err != nil {
			log.Printf("[SYNC] ⚠️ Failed to upsert participant (external_id=%q): %v", ch.ExternalID, err)
			continue
		}
		upserted++
	}
	log.Printf("[SYNC] ✅ Synced %d participant(s) (%d upserted)", len(changes), upserted)
	return upserted, nil
}

func (w *ParticipantSync) fetch(ctx context.Context, since time.Time) ([]ProfileChange, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL '%s': %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, body)
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return out.Users, nil
}
