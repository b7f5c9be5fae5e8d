// Package pool keeps expensive MCP tool-server clients warm and multiplexes
// them across concurrent requests. Each pool is bound to one server config;
// the manager materializes pools lazily per config key.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/satishdosapati/solutionbuilder-core/pkg/config"
	"github.com/satishdosapati/solutionbuilder-core/pkg/mcp"
)

// Outcome reports how a borrower used a client.
type Outcome int

const (
	// OutcomeHealthy returns the client to the idle set for reuse.
	OutcomeHealthy Outcome = iota
	// OutcomeBroken destroys the client; the next acquirer builds a
	// replacement lazily.
	OutcomeBroken
)

// Dialer constructs an initialized client for a server config. Tests swap in
// in-memory dialers; production uses mcp.Dial.
type Dialer func(ctx context.Context, cfg *config.ServerConfig, startupDefault, toolDefault time.Duration) (*mcp.PooledClient, error)

// Options tune a pool. Zero values fall back to the package defaults from
// pkg/config.
type Options struct {
	Size           int           // target capacity N
	MaxWait        time.Duration // acquire deadline
	StartupTimeout time.Duration // handshake budget passed to the dialer
	ToolTimeout    time.Duration // per-invocation budget passed to the dialer
	Dialer         Dialer
	// SizeSet distinguishes an explicit Size of 0 (a valid, always-exhausted
	// pool) from an unset Options struct.
	SizeSet bool
}

func (o Options) withDefaults() Options {
	if o.Size == 0 && !o.SizeSet {
		o.Size = config.DefaultPoolSize
	}
	if o.MaxWait == 0 {
		o.MaxWait = config.DefaultPoolMaxWait
	}
	if o.StartupTimeout == 0 {
		o.StartupTimeout = config.DefaultStartupTimeout
	}
	if o.ToolTimeout == 0 {
		o.ToolTimeout = config.DefaultToolTimeout
	}
	if o.Dialer == nil {
		o.Dialer = mcp.Dial
	}
	return o
}

// waiter is one parked acquirer. Release hands a ready client directly to
// the first waiter (preserving FIFO order); a nil send is a retry token
// meaning a capacity slot freed up.
type waiter struct {
	ch chan *mcp.PooledClient
}

// Pool maintains up to N warm, initialized clients for one server config.
//
// Invariants: idle + inUse never exceeds N; a Broken client is never handed
// out; healthy clients are never closed except on shutdown.
type Pool struct {
	cfg  *config.ServerConfig
	opts Options

	mu       sync.Mutex
	idle     []*mcp.PooledClient
	inUse    map[*mcp.PooledClient]struct{}
	created  int    // live clients (idle + in-use + dials in flight)
	reused   uint64 // acquires satisfied without a dial
	waiters  []*waiter
	shutdown bool

	logger *slog.Logger
}

// New creates a pool for one server config. Clients are built lazily on
// first acquire.
func New(cfg *config.ServerConfig, opts Options) *Pool {
	return &Pool{
		cfg:    cfg,
		opts:   opts.withDefaults(),
		inUse:  make(map[*mcp.PooledClient]struct{}),
		logger: slog.Default(),
	}
}

// Key returns the pool's config key.
func (p *Pool) Key() string { return p.cfg.Key }

// Config returns the server config this pool is bound to.
func (p *Pool) Config() *config.ServerConfig { return p.cfg }

// Acquire returns a warm client, building one if capacity allows, or waits
// FIFO until a client frees up. It fails with ErrPoolExhausted once the
// pool's MaxWait elapses, with the caller's context error on cancellation,
// and with ErrPoolShuttingDown during shutdown.
func (p *Pool) Acquire(parent context.Context) (*mcp.PooledClient, error) {
	ctx, cancel := context.WithTimeout(parent, p.opts.MaxWait)
	defer cancel()

	for {
		p.mu.Lock()
		if p.shutdown {
			p.mu.Unlock()
			return nil, ErrPoolShuttingDown
		}

		// Fast path: reuse an idle client.
		if len(p.idle) > 0 {
			c := p.idle[0]
			p.idle = p.idle[1:]
			c.SetState(mcp.StateInUse)
			p.inUse[c] = struct{}{}
			p.reused++
			p.mu.Unlock()
			return c, nil
		}

		// Build path: reserve a capacity slot and dial outside the lock.
		if p.created < p.opts.Size {
			p.created++
			p.mu.Unlock()
			return p.dial(ctx)
		}

		// Wait path: park FIFO until release or deadline.
		w := &waiter{ch: make(chan *mcp.PooledClient, 1)}
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()

		select {
		case c := <-w.ch:
			if c != nil {
				return c, nil
			}
			// A slot freed (broken client destroyed or dial failed); loop
			// and try to build a replacement.
		case <-ctx.Done():
			p.abandonWaiter(w)
			if parent.Err() != nil {
				return nil, parent.Err()
			}
			return nil, fmt.Errorf("%w: no client within %s for %q",
				ErrPoolExhausted, p.opts.MaxWait, p.cfg.Key)
		}
	}
}

// dial builds a new client against a reserved capacity slot.
func (p *Pool) dial(ctx context.Context) (*mcp.PooledClient, error) {
	c, err := p.opts.Dialer(ctx, p.cfg, p.opts.StartupTimeout, p.opts.ToolTimeout)

	p.mu.Lock()
	if err != nil {
		// The failed attempt does not count against created.
		p.created--
		p.wakeOneLocked()
		p.mu.Unlock()
		return nil, errors.Join(ErrStartupFailed, err)
	}
	if p.shutdown {
		p.created--
		p.mu.Unlock()
		_ = c.Close()
		return nil, ErrPoolShuttingDown
	}
	c.SetState(mcp.StateInUse)
	p.inUse[c] = struct{}{}
	p.mu.Unlock()

	p.logger.Info("MCP client created", "server", p.cfg.Key)
	return c, nil
}

// Release returns a borrowed client. Healthy clients go back to the idle set
// (or straight to the first waiter); broken clients are destroyed and their
// capacity slot is freed for a lazy replacement.
func (p *Pool) Release(c *mcp.PooledClient, outcome Outcome) {
	p.mu.Lock()
	if _, ok := p.inUse[c]; !ok {
		// Double release or foreign client. Nothing sane to do with it.
		p.mu.Unlock()
		p.logger.Warn("Release of client not held by pool", "server", p.cfg.Key)
		return
	}
	delete(p.inUse, c)

	if p.shutdown {
		p.created--
		p.mu.Unlock()
		_ = c.Close()
		return
	}

	if outcome == OutcomeBroken || c.State() == mcp.StateBroken {
		p.created--
		p.wakeOneLocked()
		p.mu.Unlock()

		c.MarkBroken()
		if tail := c.StderrTail(); tail != "" {
			p.logger.Warn("Destroying broken MCP client",
				"server", p.cfg.Key, "stderr_tail", tail)
		} else {
			p.logger.Warn("Destroying broken MCP client", "server", p.cfg.Key)
		}
		_ = c.Close()
		return
	}

	p.handBackLocked(c)
	p.mu.Unlock()
}

// handBackLocked re-homes a healthy client: direct handoff to the first
// waiter when one exists, otherwise back to the idle set.
func (p *Pool) handBackLocked(c *mcp.PooledClient) {
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		c.SetState(mcp.StateInUse)
		p.inUse[c] = struct{}{}
		p.reused++
		w.ch <- c
		return
	}
	c.SetState(mcp.StateIdle)
	p.idle = append(p.idle, c)
}

// wakeOneLocked sends a retry token to the first waiter so it can attempt to
// build a replacement for a freed slot.
func (p *Pool) wakeOneLocked() {
	if len(p.waiters) == 0 {
		return
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	w.ch <- nil
}

// abandonWaiter removes a parked waiter after its deadline fired. If a
// handoff raced the removal, the client is re-homed.
func (p *Pool) abandonWaiter(w *waiter) {
	p.mu.Lock()
	for i, other := range p.waiters {
		if other == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	// Not in the list: release already handed us something.
	select {
	case c := <-w.ch:
		if c != nil {
			delete(p.inUse, c)
			p.reused-- // the handoff never reached an acquirer
			p.handBackLocked(c)
		}
	default:
	}
	p.mu.Unlock()
}

// Shutdown closes all idle clients and fails all waiters. In-use clients are
// closed as they are released.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true

	idle := p.idle
	p.idle = nil
	p.created -= len(idle)

	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w.ch)
	}
	for _, c := range idle {
		_ = c.Close()
	}
	p.logger.Info("Pool shut down", "server", p.cfg.Key, "closed_idle", len(idle))
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Key       string  `json:"key"`
	Created   int     `json:"created"`
	Reused    uint64  `json:"reused"`
	InUse     int     `json:"in_use"`
	Available int     `json:"available"`
	ReuseRate float64 `json:"reuse_rate"`
}

// Stats returns the pool's current counters. reuse_rate is
// reused / (created + reused); zero when the pool has never been used.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Key:       p.cfg.Key,
		Created:   p.created,
		Reused:    p.reused,
		InUse:     len(p.inUse),
		Available: len(p.idle),
	}
	if total := uint64(p.created) + p.reused; total > 0 {
		s.ReuseRate = float64(p.reused) / float64(total)
	}
	return s
}
