package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrStreamClosed is returned by Emit after a terminal event or client
// disconnect.
var ErrStreamClosed = errors.New("event stream closed")

// StreamEncoder serializes the ordered event stream as newline-delimited
// JSON. Events are produced by a single orchestrator task, but the encoder
// still guards itself so a misuse cannot interleave lines.
//
// The encoder honors cancellation: once ctx is done no further bytes are
// written. Exactly one terminal event (complete or failed) ends the stream;
// emits after that are rejected.
type StreamEncoder struct {
	ctx     context.Context
	w       io.Writer
	flusher http.Flusher // nil when the writer cannot flush

	mu       sync.Mutex
	terminal bool
}

// NewStreamEncoder wraps a writer. When w implements http.Flusher every line
// is flushed so clients see progress immediately.
func NewStreamEncoder(ctx context.Context, w io.Writer) *StreamEncoder {
	flusher, _ := w.(http.Flusher)
	return &StreamEncoder{ctx: ctx, w: w, flusher: flusher}
}

// Emit writes one event line. Returns ErrStreamClosed once the stream is
// terminated or the client has disconnected.
func (e *StreamEncoder) Emit(event any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminal {
		return ErrStreamClosed
	}
	if err := e.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		e.terminal = true
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}

	if isTerminal(event) {
		e.terminal = true
	}
	return nil
}

// Terminated reports whether a terminal event has been written (or the
// stream died).
func (e *StreamEncoder) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

func isTerminal(event any) bool {
	switch event.(type) {
	case CompletePayload, *CompletePayload, FailedPayload, *FailedPayload:
		return true
	}
	return false
}
