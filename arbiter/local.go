package arbiter

import (
	"context"
	"sync"

	"pvp-duel-engine/models"
)

// Local keeps move locks in process memory. Suitable for a single instance.
type Local struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocal() *Local {
	return &Local{held: make(map[string]string)}
}

func (l *Local) TryBeginMove(_ context.Context, sessionID, userID string) (Token, error) {
	k := key(sessionID, userID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[k]; busy {
		return Token{}, models.ErrBusy
	}
	t := newToken(sessionID, userID)
	l.held[k] = t.value
	return t, nil
}

// EndMove releases the slot if the token still owns it. Stale tokens are ignored.
func (l *Local) EndMove(_ context.Context, t Token) error {
	k := key(t.SessionID, t.UserID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[k] == t.value {
		delete(l.held, k)
	}
	return nil
}
