package session

import (
	"sync"

	"gemini-chat/internal/models"
)

// Transcript is the ordered, append-only history of one session.
// A limit of 0 keeps every turn; a positive limit drops the oldest turns
// once it is exceeded.
type Transcript struct {
	mu    sync.RWMutex
	turns []models.Turn
	limit int
}

func NewTranscript(limit int) *Transcript {
	if limit < 0 {
		limit = 0
	}
	return &Transcript{limit: limit}
}

func (t *Transcript) Append(turn models.Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = append(t.turns, turn)
	if t.limit > 0 && len(t.turns) > t.limit {
		dropped := len(t.turns) - t.limit
		// Copy so the backing array does not keep growing behind the window.
		kept := make([]models.Turn, t.limit, t.limit+1)
		copy(kept, t.turns[dropped:])
		t.turns = kept
	}
}

// All returns a copy of the turns in insertion order.
func (t *Transcript) All() []models.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}
