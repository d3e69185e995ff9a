package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session owns the transcript of one browser session.
type Session struct {
	ID         uuid.UUID
	Transcript *Transcript
	CreatedAt  time.Time

	turnMu   sync.Mutex
	mu       sync.Mutex
	lastSeen time.Time
}

// LockTurn serialises chat turns within a session. The returned function
// releases the lock.
func (s *Session) LockTurn() func() {
	s.turnMu.Lock()
	return s.turnMu.Unlock
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Store keeps sessions in memory only. Nothing survives a restart.
type Store struct {
	mu           sync.RWMutex
	sessions     map[uuid.UUID]*Session
	idleTimeout  time.Duration
	historyLimit int
	stopChan     chan struct{}
	stopOnce     sync.Once
}

func NewStore(idleTimeout time.Duration, historyLimit int) *Store {
	return &Store{
		sessions:     make(map[uuid.UUID]*Session),
		idleTimeout:  idleTimeout,
		historyLimit: historyLimit,
		stopChan:     make(chan struct{}),
	}
}

// Create starts a new session with an empty transcript.
func (s *Store) Create() *Session {
	now := time.Now()
	sess := &Session{
		ID:         uuid.New(),
		Transcript: NewTranscript(s.historyLimit),
		CreatedAt:  now,
		lastSeen:   now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	log.Debug().Str("session_id", sess.ID.String()).Msg("session created")
	return sess
}

// Get returns the session and marks it as active.
func (s *Store) Get(id uuid.UUID) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	sess.touch(time.Now())
	return sess, true
}

// Delete ends a session and drops its transcript.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than the idle timeout and
// returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	if s.idleTimeout <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastSeen()) > s.idleTimeout {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps idle sessions until Stop is called.
func (s *Store) StartJanitor(interval time.Duration) {
	if s.idleTimeout <= 0 || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case now := <-ticker.C:
				if n := s.Sweep(now); n > 0 {
					log.Info().Int("expired", n).Int("active", s.Len()).Msg("expired idle sessions")
				}
			}
		}
	}()
}

func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
