package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishdosapati/solutionbuilder-core/pkg/config"
	"github.com/satishdosapati/solutionbuilder-core/pkg/mcp"
)

func docsConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Key:       "docs",
		Transport: config.TransportTypeStdio,
		Command:   "mock", // overridden by the in-memory dialer
	}
}

func staticHandler(text string) mcpsdk.ToolHandler {
	return func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	}
}

func inMemoryDialer() Dialer {
	return mcp.NewInMemoryDialer(map[string]mcp.InMemoryServer{
		"docs": {"search": staticHandler("result")},
	})
}

func newTestPool(t *testing.T, size int, maxWait time.Duration) *Pool {
	t.Helper()
	p := New(docsConfig(), Options{
		Size:    size,
		SizeSet: true,
		MaxWait: maxWait,
		Dialer:  inMemoryDialer(),
	})
	t.Cleanup(p.Shutdown)
	return p
}

func TestAcquireReleaseWarmReuse(t *testing.T) {
	p := newTestPool(t, 2, time.Second)
	ctx := context.Background()

	// Ten sequential borrows of one client: a single dial, nine reuses.
	var first *mcp.PooledClient
	for i := 0; i < 10; i++ {
		c, err := p.Acquire(ctx)
		require.NoError(t, err)
		if first == nil {
			first = c
		} else {
			assert.Same(t, first, c, "warm client must be reused")
		}
		p.Release(c, OutcomeHealthy)
	}

	stats := p.Stats()
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, uint64(9), stats.Reused)
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, 1, stats.Available)
	assert.InDelta(t, 0.9, stats.ReuseRate, 0.001)
}

func TestAcquireReleaseHealthyLeavesCountersPure(t *testing.T) {
	p := newTestPool(t, 2, time.Second)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(c, OutcomeHealthy)
	before := p.Stats()

	c, err = p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(c, OutcomeHealthy)
	after := p.Stats()

	assert.Equal(t, before.Created, after.Created)
	assert.Equal(t, before.InUse, after.InUse)
	assert.Equal(t, before.Available, after.Available)
}

func TestConcurrentOverflowQueues(t *testing.T) {
	p := newTestPool(t, 2, 10*time.Second)
	ctx := context.Background()

	const holders = 5
	hold := 100 * time.Millisecond

	start := time.Now()
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Acquire(ctx)
			if err != nil {
				failures.Add(1)
				return
			}
			time.Sleep(hold)
			p.Release(c, OutcomeHealthy)
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load(), "no acquire may fail with a generous deadline")
	// Five holders over two clients need at least three rounds.
	assert.GreaterOrEqual(t, time.Since(start), 3*hold-20*time.Millisecond)

	stats := p.Stats()
	assert.LessOrEqual(t, stats.Created, 2)
	assert.Equal(t, 0, stats.InUse)
}

func TestExhaustionWithShortDeadline(t *testing.T) {
	p := newTestPool(t, 2, 100*time.Millisecond)
	ctx := context.Background()

	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	c2, err := p.Acquire(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var exhausted atomic.Int32
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Acquire(ctx); errors.Is(err, ErrPoolExhausted) {
				exhausted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), exhausted.Load())
	assert.LessOrEqual(t, p.Stats().Created, 2)

	p.Release(c1, OutcomeHealthy)
	p.Release(c2, OutcomeHealthy)
}

func TestZeroCapacityAlwaysExhausts(t *testing.T) {
	p := newTestPool(t, 0, 50*time.Millisecond)

	start := time.Now()
	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPoolExhausted)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFIFOHandoffAndReuseRate(t *testing.T) {
	p := newTestPool(t, 1, time.Second)
	ctx := context.Background()

	c1, err := p.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan *mcp.PooledClient, 1)
	go func() {
		c, err := p.Acquire(ctx)
		if err != nil {
			got <- nil
			return
		}
		got <- c
	}()

	// Let the second acquirer park, then free the client.
	time.Sleep(50 * time.Millisecond)
	p.Release(c1, OutcomeHealthy)

	c2 := <-got
	require.NotNil(t, c2)
	assert.Same(t, c1, c2, "the waiter receives the freed client")
	p.Release(c2, OutcomeHealthy)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, uint64(1), stats.Reused)
	assert.InDelta(t, 0.5, stats.ReuseRate, 0.001)
}

func TestBrokenReleaseDestroysAndReplaces(t *testing.T) {
	p := newTestPool(t, 1, time.Second)
	ctx := context.Background()

	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(c1, OutcomeBroken)

	stats := p.Stats()
	assert.Equal(t, 0, stats.Created, "broken client frees its slot")
	assert.Equal(t, 0, stats.Available)

	c2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2, "a destroyed client never reappears")
	assert.Equal(t, mcp.StateBroken, c1.State())
	p.Release(c2, OutcomeHealthy)
}

func TestBrokenStateOverridesHealthyRelease(t *testing.T) {
	p := newTestPool(t, 1, time.Second)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	c.MarkBroken()
	p.Release(c, OutcomeHealthy)

	assert.Equal(t, 0, p.Stats().Created,
		"a client that marked itself broken is destroyed even on a healthy release")
}

func TestBrokenReleaseWakesWaiterForReplacement(t *testing.T) {
	p := newTestPool(t, 1, time.Second)
	ctx := context.Background()

	c1, err := p.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan *mcp.PooledClient, 1)
	go func() {
		c, err := p.Acquire(ctx)
		require.NoError(t, err)
		got <- c
	}()

	time.Sleep(50 * time.Millisecond)
	p.Release(c1, OutcomeBroken)

	select {
	case c2 := <-got:
		assert.NotSame(t, c1, c2)
		p.Release(c2, OutcomeHealthy)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken to build a replacement")
	}
}

func TestAcquireCancelledReturnsContextError(t *testing.T) {
	p := newTestPool(t, 1, 5*time.Second)

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(c, OutcomeHealthy)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStartupFailureDoesNotCountAgainstCreated(t *testing.T) {
	dialErr := fmt.Errorf("spawn refused")
	p := New(docsConfig(), Options{
		Size:    2,
		SizeSet: true,
		MaxWait: 100 * time.Millisecond,
		Dialer: func(context.Context, *config.ServerConfig, time.Duration, time.Duration) (*mcp.PooledClient, error) {
			return nil, dialErr
		},
	})
	defer p.Shutdown()

	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrStartupFailed)
	assert.Equal(t, 0, p.Stats().Created)
}

func TestShutdownFailsWaitersAndClosesIdle(t *testing.T) {
	p := newTestPool(t, 1, 5*time.Second)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		waiterErr <- err
	}()

	time.Sleep(50 * time.Millisecond)
	p.Shutdown()

	require.ErrorIs(t, <-waiterErr, ErrPoolShuttingDown)

	// In-use client is closed on release.
	p.Release(c, OutcomeHealthy)
	assert.Equal(t, 0, p.Stats().Created)

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, ErrPoolShuttingDown)
}

func TestCrashedClientDetectedOnInvoke(t *testing.T) {
	p := newTestPool(t, 1, time.Second)
	ctx := context.Background()

	c, err := p.Acquire(ctx)
	require.NoError(t, err)

	// Simulate an externally killed server: close the session under the
	// client, then use it.
	require.NoError(t, c.Close())
	_, err = c.Invoke(ctx, "search", nil)
	require.Error(t, err)

	p.Release(c, OutcomeBroken)
	assert.Equal(t, 0, p.Stats().Created)

	// The next acquire builds a working replacement.
	c2, err := p.Acquire(ctx)
	require.NoError(t, err)
	result, err := c2.Invoke(ctx, "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "result", result.Text)
	p.Release(c2, OutcomeHealthy)
	assert.Equal(t, 1, p.Stats().Created)
}
