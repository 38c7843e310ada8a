// Package arbiter serializes move submissions per (session, user) pair.
// A second submission while one is in flight is refused, never queued.
package arbiter

import (
	"context"

	"github.com/google/uuid"
)

// Token proves ownership of a move slot until it is released.
type Token struct {
	SessionID string
	UserID    string
	value     string
}

// MoveArbiter grants at most one outstanding token per (session, user).
// TryBeginMove returns models.ErrBusy when a token is already held.
type MoveArbiter interface {
	TryBeginMove(ctx context.Context, sessionID, userID string) (Token, error)
	EndMove(ctx context.Context, token Token) error
}

func key(sessionID, userID string) string {
	return "duel:move:" + sessionID + ":" + userID
}

func newToken(sessionID, userID string) Token {
	return Token{SessionID: sessionID, UserID: userID, value: uuid.NewString()}
}
