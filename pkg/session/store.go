package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory session registry. GetOrCreate is atomic with
// respect to concurrent callers; a background sweep evicts sessions idle
// longer than the TTL.
type Store struct {
	idleTTL       time.Duration
	sweepInterval time.Duration
	bufferBudget  int

	mu       sync.RWMutex
	sessions map[string]*Session

	cancel context.CancelFunc
	done   chan struct{}

	logger *slog.Logger
}

// NewStore creates a store. The sweeper is not running until Start.
func NewStore(idleTTL, sweepInterval time.Duration, bufferBudget int) *Store {
	return &Store{
		idleTTL:       idleTTL,
		sweepInterval: sweepInterval,
		bufferBudget:  bufferBudget,
		sessions:      make(map[string]*Session),
		logger:        slog.Default(),
	}
}

// GetOrCreate returns the session for id, creating it if missing. An empty
// id mints a fresh session under a new UUID.
func (s *Store) GetOrCreate(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := newSession(id, s.bufferBudget, time.Now())
	s.sessions[id] = sess
	return sess
}

// Get returns the session for id, or nil.
func (s *Store) Get(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// Delete removes a session explicitly. Returns false when absent.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Start launches the background TTL sweep. Calling Start on a running store
// is a no-op.
func (s *Store) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Session store started",
		"idle_ttl", s.idleTTL, "sweep_interval", s.sweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Store) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.logger.Info("Session store stopped")
}

func (s *Store) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(time.Now())
		}
	}
}

// Sweep evicts sessions whose last touch precedes now − idleTTL. Eviction
// destroys the session's buffer and side-state; pools are never touched.
// Exposed for tests; the background loop calls it on each tick.
func (s *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.LastTouch().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if len(expired) > 0 {
		s.logger.Info("Evicted idle sessions", "count", len(expired))
	}
	return len(expired)
}
