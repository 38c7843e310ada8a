// workers/event_dispatcher.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"pvp-duel-engine/models"
	"pvp-duel-engine/utils"

	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

// EventDispatcher pushes outbox events to the collaborator webhook in seq
// order. An event stays pending until the webhook acknowledges it with a 2xx.
type EventDispatcher struct {
	DB         *gorm.DB
	WebhookURL string
	Token      string
	Interval   time.Duration
	BatchSize  int
	HTTPClient *http.Client
	Clock      clockwork.Clock
	Backoff    func() retry.Backoff
}

func NewEventDispatcher(db *gorm.DB, webhookURL, serviceToken string, interval time.Duration) *EventDispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &EventDispatcher{
		DB:         db,
		WebhookURL: webhookURL,
		Token:      serviceToken,
		Interval:   interval,
		BatchSize:  100,
		HTTPClient: utils.NewHTTPClient(10 * time.Second),
		Clock:      clockwork.NewRealClock(),
		Backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
		},
	}
}

func (d *EventDispatcher) Start(ctx context.Context) {
	log.Printf("[DISPATCH] 🔁 Starting event dispatcher → %s", d.WebhookURL)
	go d.run(ctx)
}

func (d *EventDispatcher) run(ctx context.Context) {
	ticker := d.Clock.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := d.DispatchBatch(ctx); err != nil {
				log.Printf("[DISPATCH] ⚠️ %v", err)
			}
		case <-ctx.Done():
			log.Println("[DISPATCH] ⏹️ Event dispatcher stopped")
			return
		}
	}
}

// DispatchBatch delivers pending events oldest first and stops at the first
// failure so later events never overtake an undelivered one.
func (d *EventDispatcher) DispatchBatch(ctx context.Context) (int, error) {
	var pending []models.DuelEvent
	if err := d.DB.WithContext(ctx).
		Where("delivered_at IS NULL").
		Order("seq ASC").
		Limit(d.BatchSize).
		Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}

	delivered := 0
	for i := range pending {
		ev := &pending[i]
		if err := d.deliver(ctx, ev); err != nil {
			d.markFailed(ctx, ev, err)
			return delivered, fmt.Errorf("event %s (%s) seq=%d not delivered: %w", ev.ID, ev.Type, ev.Seq, err)
		}
		now := d.Clock.Now().UTC()
		if err := d.DB.WithContext(ctx).Model(&models.DuelEvent{}).
			Where("seq = ?", ev.Seq).
			Updates(map[string]any{"delivered_at": now, "attempts": gorm.Expr("attempts + 1"), "last_error": ""}).Error; err != nil {
			// delivered but not marked: the collaborator sees it again and dedupes on Idempotency-Key
			return delivered, fmt.Errorf("mark event %s delivered: %w", ev.ID, err)
		}
		delivered++
	}
	if delivered > 0 {
		log.Printf("[DISPATCH] ✅ Delivered %d event(s)", delivered)
	}
	return delivered, nil
}

func (d *EventDispatcher) markFailed(ctx context.Context, ev *models.DuelEvent, cause error) {
	msg := cause.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}
	if err := d.DB.WithContext(ctx).Model(&models.DuelEvent{}).
		Where("seq = ?", ev.Seq).
		Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "last_error": msg}).Error; err != nil {
		log.Printf("[DISPATCH] ❌ Failed to record delivery failure of %s: %v", ev.ID, err)
	}
}

func (d *EventDispatcher) deliver(ctx context.Context, ev *models.DuelEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return retry.Do(ctx, d.Backoff(), func(ctx context.Context) error {
		return d.post(ctx, ev.ID, body)
	})
}

// post sends one attempt. Network errors and 5xx are retryable; 4xx is not.
func (d *EventDispatcher) post(ctx context.Context, eventID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", d.Token)
	req.Header.Set("Idempotency-Key", eventID)

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("webhook request failed: %w", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return retry.RetryableError(err)
	}
	return err
}
