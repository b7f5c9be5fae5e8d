package pool

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/satishdosapati/solutionbuilder-core/pkg/config"
)

// Manager is the process-wide registry mapping server config key → Pool.
// Pools are materialized lazily on first request for a key and torn down
// only on shutdown.
type Manager struct {
	opts Options

	mu       sync.Mutex
	pools    map[string]*Pool
	shutdown bool

	logger *slog.Logger
}

// NewManager creates a manager whose pools share the given options.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:   opts.withDefaults(),
		pools:  make(map[string]*Pool),
		logger: slog.Default(),
	}
}

// GetOrCreate returns the pool for cfg.Key, creating it atomically if
// missing. A distinct config claiming an existing key is an error.
func (m *Manager) GetOrCreate(cfg *config.ServerConfig) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, ErrPoolShuttingDown
	}

	if p, exists := m.pools[cfg.Key]; exists {
		if p.cfg.Fingerprint() != cfg.Fingerprint() {
			return nil, fmt.Errorf("%w: %q", ErrConfigMismatch, cfg.Key)
		}
		return p, nil
	}

	p := New(cfg, m.opts)
	m.pools[cfg.Key] = p
	m.logger.Info("Pool created", "server", cfg.Key, "size", m.opts.Size)
	return p, nil
}

// Get returns an existing pool, or nil when none has been created for key.
func (m *Manager) Get(key string) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pools[key]
}

// Shutdown tears down every pool. Subsequent GetOrCreate calls fail.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	for _, p := range pools {
		p.Shutdown()
	}
	m.logger.Info("Pool manager shut down", "pools", len(pools))
}

// Stats returns per-pool counters keyed by server key.
func (m *Manager) Stats() map[string]Stats {
	m.mu.Lock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	out := make(map[string]Stats, len(pools))
	for _, p := range pools {
		out[p.Key()] = p.Stats()
	}
	return out
}

// AggregateStats sums counters across all pools.
func (m *Manager) AggregateStats() Stats {
	agg := Stats{Key: "all"}
	for _, s := range m.Stats() {
		agg.Created += s.Created
		agg.Reused += s.Reused
		agg.InUse += s.InUse
		agg.Available += s.Available
	}
	if total := uint64(agg.Created) + agg.Reused; total > 0 {
		agg.ReuseRate = float64(agg.Reused) / float64(total)
	}
	return agg
}
