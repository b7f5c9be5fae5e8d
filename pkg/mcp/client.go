// Package mcp provides MCP (Model Context Protocol) client infrastructure:
// transport adapters for stdio and http tool-servers, an initialized client
// suitable for pooling, and helpers for routing and argument parsing.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/satishdosapati/solutionbuilder-core/pkg/config"
	"github.com/satishdosapati/solutionbuilder-core/pkg/version"
)

// ClientState tracks where a pooled client is in its lifecycle.
type ClientState int32

const (
	// StateIdle means the client is initialized and parked in its pool.
	StateIdle ClientState = iota
	// StateInUse means the client is checked out by one acquirer.
	StateInUse
	// StateBroken means the transport can no longer be trusted. A broken
	// client is never handed out again; the pool destroys it.
	StateBroken
)

func (s ClientState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in_use"
	case StateBroken:
		return "broken"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// PooledClient is an already-initialized MCP session bound to one server
// config. The owning pool transitions it between Idle and InUse; the client
// itself transitions to Broken when its transport fails.
type PooledClient struct {
	key     string
	cfg     *config.ServerConfig
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
	stderr  *RingBuffer // nil for http transports

	state       atomic.Int32
	toolTimeout time.Duration
	createdAt   time.Time

	// onClose runs after the session closes. Used by test dialers to tear
	// down their in-memory server.
	onClose func()

	logger *slog.Logger
}

// Dial spawns/connects the configured server and completes the initialize
// handshake. startupDefault and toolDefault apply when the server config
// leaves the corresponding budget at zero.
//
// A handshake that exceeds the startup budget fails with ErrStartupTimeout.
func Dial(ctx context.Context, cfg *config.ServerConfig, startupDefault, toolDefault time.Duration) (*PooledClient, error) {
	transport, ring, err := createTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("create transport for %q: %w", cfg.Key, err)
	}

	startup := cfg.StartupTimeout
	if startup == 0 {
		startup = startupDefault
	}
	initCtx, cancel := context.WithTimeout(ctx, startup)
	defer cancel()

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := sdkClient.Connect(initCtx, transport, nil)
	if err != nil {
		// Close the transport if it implements io.Closer to avoid leaking
		// stdio child processes on failed handshakes.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %q after %s", ErrStartupTimeout, cfg.Key, startup)
		}
		return nil, fmt.Errorf("connect to %q: %w", cfg.Key, err)
	}

	timeout := cfg.ToolTimeout
	if timeout == 0 {
		timeout = toolDefault
	}

	c := &PooledClient{
		key:         cfg.Key,
		cfg:         cfg,
		client:      sdkClient,
		session:     session,
		stderr:      ring,
		toolTimeout: timeout,
		createdAt:   time.Now(),
		logger:      slog.Default(),
	}
	c.state.Store(int32(StateIdle))
	return c, nil
}

// Key returns the server config key this client is bound to.
func (c *PooledClient) Key() string { return c.key }

// State returns the client's current lifecycle state.
func (c *PooledClient) State() ClientState {
	return ClientState(c.state.Load())
}

// SetState transitions the client. Used by the owning pool; once Broken the
// state never goes back.
func (c *PooledClient) SetState(s ClientState) {
	if c.State() == StateBroken {
		return
	}
	c.state.Store(int32(s))
}

// MarkBroken flags the transport as unusable.
func (c *PooledClient) MarkBroken() {
	c.state.Store(int32(StateBroken))
}

// StderrTail returns the retained tail of the child's stderr for diagnostics.
// Empty for http transports.
func (c *PooledClient) StderrTail() string {
	if c.stderr == nil {
		return ""
	}
	return c.stderr.String()
}

// ListTools returns the tools the server advertises.
func (c *PooledClient) ListTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	if c.State() == StateBroken {
		return nil, ErrClientBroken
	}

	opCtx, cancel := context.WithTimeout(ctx, c.toolTimeout)
	defer cancel()

	result, err := c.session.ListTools(opCtx, nil)
	if err != nil {
		c.noteError(ctx, err)
		return nil, fmt.Errorf("list tools from %q: %w", c.key, err)
	}
	tools := result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}
	return tools, nil
}

// Invoke executes a single tool call. The per-invocation timeout is the
// server's ToolTimeout budget.
//
// An invocation cut short by cancellation or a transport failure marks the
// client Broken: the server may still be producing output for the abandoned
// call, so the session must not be reused.
func (c *PooledClient) Invoke(ctx context.Context, toolName string, args map[string]any) (*ToolResult, error) {
	if c.State() == StateBroken {
		return nil, ErrClientBroken
	}

	opCtx, cancel := context.WithTimeout(ctx, c.toolTimeout)
	defer cancel()

	result, err := c.session.CallTool(opCtx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		c.noteError(ctx, err)
		return nil, fmt.Errorf("call %q.%s: %w", c.key, toolName, err)
	}

	return convertResult(result), nil
}

// Ping probes the session with a short deadline. A transport failure marks
// the client Broken.
func (c *PooledClient) Ping(ctx context.Context) error {
	if c.State() == StateBroken {
		return ErrClientBroken
	}
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.session.Ping(opCtx, nil); err != nil {
		c.noteError(ctx, err)
		return fmt.Errorf("ping %q: %w", c.key, err)
	}
	return nil
}

// Close shuts down the session and, for stdio, reaps the child process.
func (c *PooledClient) Close() error {
	err := c.session.Close()
	if c.onClose != nil {
		c.onClose()
	}
	if err != nil && c.stderr != nil {
		if tail := c.stderr.String(); tail != "" {
			c.logger.Debug("MCP client closed with stderr output",
				"server", c.key, "stderr_tail", tail)
		}
	}
	return err
}

// noteError marks the client Broken when the error indicates a dead or
// untrustworthy transport, including cancellation of the in-flight call.
func (c *PooledClient) noteError(ctx context.Context, err error) {
	if IsTransportError(err) || ctx.Err() != nil {
		c.MarkBroken()
		c.logger.Warn("MCP client marked broken",
			"server", c.key, "error", err)
	}
}

// ToolResult is the structured outcome of one tool invocation: text output,
// an optional structured value, and an optional binary blob (diagram images).
type ToolResult struct {
	Text       string
	Structured json.RawMessage
	Binary     []byte
	MimeType   string
	IsError    bool
}

// convertResult flattens an SDK CallToolResult. Text content is concatenated;
// the first image blob is kept as-is (PNG or SVG bytes are forwarded
// untouched, never converted).
func convertResult(result *mcpsdk.CallToolResult) *ToolResult {
	out := &ToolResult{IsError: result.IsError}

	var parts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, c.Text)
		case *mcpsdk.ImageContent:
			if out.Binary == nil {
				out.Binary = c.Data
				out.MimeType = c.MIMEType
			}
		default:
			slog.Debug("MCP tool returned unhandled content type",
				"content_type", fmt.Sprintf("%T", c))
		}
	}
	out.Text = strings.Join(parts, "\n")

	if result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			out.Structured = data
		}
	}
	return out
}
