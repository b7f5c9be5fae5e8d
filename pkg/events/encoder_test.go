package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj))
		out = append(out, obj)
	}
	return out
}

func TestEncoderWritesOrderedNDJSON(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(context.Background(), &buf)

	require.NoError(t, enc.Emit(Thinking("researching", "looking things up")))
	require.NoError(t, enc.Emit(PartialText("chunk one")))
	require.NoError(t, enc.Emit(ToolInvoked(0, "docs.search", "{}#abcd1234")))
	require.NoError(t, enc.Emit(ToolResult(0, ToolStatusOK, "r#deadbeef")))
	require.NoError(t, enc.Emit(Complete("brainstorm", "sess-1", map[string]any{"answer": "42"})))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 5)
	assert.Equal(t, TypeThinking, lines[0]["type"])
	assert.Equal(t, TypePartialText, lines[1]["type"])
	assert.Equal(t, TypeToolInvoked, lines[2]["type"])
	assert.Equal(t, TypeToolResult, lines[3]["type"])
	assert.Equal(t, TypeComplete, lines[4]["type"])
	assert.Equal(t, float64(0), lines[2]["call_id"])
}

func TestEncoderRejectsEmitsAfterTerminal(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(context.Background(), &buf)

	require.NoError(t, enc.Emit(Failed(FailTimeout, "too slow")))
	assert.True(t, enc.Terminated())

	err := enc.Emit(Thinking("late", "should not appear"))
	require.ErrorIs(t, err, ErrStreamClosed)
	require.Len(t, decodeLines(t, &buf), 1, "nothing after the terminal event")
}

func TestEncoderExactlyOneTerminal(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(context.Background(), &buf)

	require.NoError(t, enc.Emit(Complete("analyze", "s", nil)))
	require.ErrorIs(t, enc.Emit(Failed(FailInternal, "x")), ErrStreamClosed)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, TypeComplete, lines[0]["type"])
}

func TestEncoderStopsOnCancelledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	enc := NewStreamEncoder(ctx, &buf)

	require.NoError(t, enc.Emit(Thinking("working", "pre-cancel")))
	cancel()

	err := enc.Emit(PartialText("post-cancel"))
	require.ErrorIs(t, err, ErrStreamClosed)
	require.Len(t, decodeLines(t, &buf), 1, "no bytes after client disconnect")
}

func TestEncoderTerminalPointerVariants(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(context.Background(), &buf)

	payload := Failed(FailCancelled, "client went away")
	require.NoError(t, enc.Emit(&payload))
	assert.True(t, enc.Terminated())
}
