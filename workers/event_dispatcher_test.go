package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pvp-duel-engine/models"
	"pvp-duel-engine/testutil"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type webhook struct {
	mu       sync.Mutex
	received []models.DuelEvent
	keys     []string
	tokens   []string
	fail     func(n int) int // status for the n-th request, 0 means 200
	calls    int
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.fail != nil {
		if status := w.fail(w.calls); status != 0 {
			rw.WriteHeader(status)
			return
		}
	}
	var ev models.DuelEvent
	_ = json.NewDecoder(r.Body).Decode(&ev)
	w.received = append(w.received, ev)
	w.keys = append(w.keys, r.Header.Get("Idempotency-Key"))
	w.tokens = append(w.tokens, r.Header.Get("X-Service-Token"))
	rw.WriteHeader(http.StatusAccepted)
}

func seedEvents(t *testing.T, db *gorm.DB, types ...models.EventType) {
	t.Helper()
	for i, typ := range types {
		ev := models.DuelEvent{
			ID:           "ev-" + string(rune('a'+i)),
			Type:         typ,
			DuelID:       "c1",
			ChallengerID: "alice",
			Payload:      models.EventPayload{ChallengeID: "c1", ChallengerID: "alice", Stake: decimal.NewFromInt(10)},
			CreatedAt:    time.Date(2025, 3, 1, 12, 0, i, 0, time.UTC),
		}
		require.NoError(t, db.Create(&ev).Error)
	}
}

func newDispatcher(db *gorm.DB, url string) *EventDispatcher {
	d := NewEventDispatcher(db, url, "svc-token", time.Second)
	d.Backoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	return d
}

func TestDispatchBatch_DeliversInOrder(t *testing.T) {
	db := testutil.NewDB(t)
	seedEvents(t, db, models.EventChallengeCreated, models.EventChallengeAccepted, models.EventRoundResolved)
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n, err := newDispatcher(db, srv.URL).DispatchBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, hook.received, 3)
	assert.Equal(t, models.EventChallengeCreated, hook.received[0].Type)
	assert.Equal(t, models.EventRoundResolved, hook.received[2].Type)
	assert.Equal(t, []string{"ev-a", "ev-b", "ev-c"}, hook.keys)
	assert.Equal(t, "svc-token", hook.tokens[0])

	var pending int64
	require.NoError(t, db.Model(&models.DuelEvent{}).Where("delivered_at IS NULL").Count(&pending).Error)
	assert.Zero(t, pending)

	n, err = newDispatcher(db, srv.URL).DispatchBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatchBatch_RetriesTransientFailures(t *testing.T) {
	db := testutil.NewDB(t)
	seedEvents(t, db, models.EventDuelCompleted)
	hook := &webhook{fail: func(n int) int {
		if n < 3 {
			return http.StatusServiceUnavailable
		}
		return 0
	}}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n, err := newDispatcher(db, srv.URL).DispatchBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, hook.calls)
}

func TestDispatchBatch_FailureStopsBatchUntilAcknowledged(t *testing.T) {
	db := testutil.NewDB(t)
	seedEvents(t, db, models.EventChallengeCreated, models.EventDuelCancelled)
	down := true
	hook := &webhook{fail: func(int) int {
		if down {
			return http.StatusBadRequest
		}
		return 0
	}}
	srv := httptest.NewServer(hook)
	defer srv.Close()
	d := newDispatcher(db, srv.URL)

	n, err := d.DispatchBatch(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, hook.calls, "4xx is not retried within a batch")

	var first models.DuelEvent
	require.NoError(t, db.Where("id = ?", "ev-a").First(&first).Error)
	assert.Equal(t, 1, first.Attempts)
	assert.Contains(t, first.LastError, "400")
	assert.Nil(t, first.DeliveredAt)

	hook.mu.Lock()
	down = false
	hook.mu.Unlock()

	n, err = d.DispatchBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ev-a", "ev-b"}, hook.keys)
}
