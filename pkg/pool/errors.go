package pool

import "errors"

var (
	// ErrPoolExhausted means no client became available within the acquire
	// deadline. Fatal to the current request: retrying would break the
	// deadline contract.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrPoolShuttingDown means the pool (or its manager) is closing and no
	// further clients will be handed out.
	ErrPoolShuttingDown = errors.New("pool shutting down")

	// ErrStartupFailed means constructing a replacement client failed. The
	// failed attempt does not count against the pool's created total.
	ErrStartupFailed = errors.New("MCP client startup failed")

	// ErrConfigMismatch means two distinct server configs claimed the same
	// pool key.
	ErrConfigMismatch = errors.New("distinct server configs share a pool key")
)
