package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

var (
	// ErrStartupTimeout indicates the initialize handshake did not complete
	// within the configured budget. Surfaced internally only; callers map it
	// to a pool StartupFailed.
	ErrStartupTimeout = errors.New("MCP server startup timed out")

	// ErrClientBroken indicates an operation was attempted on a client that
	// has already been marked broken.
	ErrClientBroken = errors.New("MCP client is broken")
)

// IsTransportError reports whether an MCP operation error means the
// underlying transport can no longer be trusted. A client that produced such
// an error must be released as Broken so the pool destroys it.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}

	// A cancelled or timed-out invocation leaves the server mid-call and
	// possibly still producing output; the session is unusable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// MCP JSON-RPC protocol errors come back over a live transport: the call
	// failed but the session is fine.
	var wireErr *jsonrpc.Error
	if errors.As(err, &wireErr) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"connection closed",
		"no such host",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
