package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"pvp-duel-engine/models"

	"github.com/gofiber/fiber/v2"
)

const streamPoll = 2 * time.Second

// EventsForUser returns the user's duel events after seq, oldest first.
func (s *DuelService) EventsForUser(ctx context.Context, userID string, afterSeq uint64, limit int) ([]models.DuelEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var evs []models.DuelEvent
	err := s.DB.WithContext(ctx).
		Where("seq > ?", afterSeq).
		Where("challenger_id = ? OR opponent_id = ?", userID, userID).
		Order("seq ASC").
		Limit(limit).
		Find(&evs).Error
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", userID, err)
	}
	return evs, nil
}

// latestSeq is the newest event seq overall; a fresh stream starts after it.
func (s *DuelService) latestSeq(ctx context.Context) (uint64, error) {
	var ev models.DuelEvent
	if err := s.DB.WithContext(ctx).Order("seq DESC").Limit(1).Find(&ev).Error; err != nil {
		return 0, fmt.Errorf("load latest event seq: %w", err)
	}
	return ev.Seq, nil
}

// streamCursor resumes after Last-Event-ID, or after the newest event when the
// header is absent or malformed.
func (s *DuelService) streamCursor(ctx context.Context, lastEventID string) (uint64, error) {
	if lastEventID != "" {
		if v, err := strconv.ParseUint(lastEventID, 10, 64); err == nil {
			return v, nil
		}
	}
	return s.latestSeq(ctx)
}

var encodeEvent = json.Marshal

// writeEventFrames writes one SSE frame per event and returns the new cursor.
// An event that cannot be encoded is skipped.
func writeEventFrames(w io.Writer, evs []models.DuelEvent, cursor uint64) uint64 {
	for _, ev := range evs {
		cursor = ev.Seq
		payload, err := encodeEvent(ev)
		if err != nil {
			log.Printf("[DUEL] ⚠️ SSE skipping event %d (%s): %v", ev.Seq, ev.Type, err)
			continue
		}
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, payload)
	}
	return cursor
}

// StreamUserEventsSSE streams the caller's duel events. Clients resume with Last-Event-ID.
func (s *DuelService) StreamUserEventsSSE(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	cursor, err := s.streamCursor(c.UserContext(), c.Get("Last-Event-ID"))
	if err != nil {
		log.Printf("[DUEL] ❌ SSE init error for user %s: %v", userID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "stream_unavailable"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(streamPoll)
		defer ticker.Stop()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-ticker.C:
				evs, err := s.EventsForUser(context.Background(), userID, cursor, 100)
				if err != nil {
					log.Printf("[DUEL] SSE query error for user %s: %v", userID, err)
					continue
				}
				if len(evs) == 0 {
					// keepalive doubles as disconnect detection
					w.WriteString(":\n\n")
				}
				cursor = writeEventFrames(w, evs, cursor)
				if err := w.Flush(); err != nil {
					return
				}
			case <-c.Context().Done():
				return
			}
		}
	})
	return nil
}
