// Package llm defines the planning oracle the orchestrator consumes. The
// model is a pluggable collaborator with exactly two operations: Plan and
// StreamPlan. Provider mechanics (retries, SSE framing) stay behind the
// interface.
package llm

import (
	"context"
	"encoding/json"
)

// Role identifies a message author in the planning transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one transcript entry handed to the oracle.
type Message struct {
	Role    Role
	Content string

	// For RoleTool messages: which call this result answers.
	ToolCallID string
	Name       string

	// For RoleAssistant messages that requested tools.
	ToolRequests []ToolRequest
}

// ToolDef describes one tool the oracle may request.
type ToolDef struct {
	Name        string // fully-qualified "server.tool"
	Description string
	Parameters  json.RawMessage // JSON Schema; empty means no parameters
}

// ToolRequest is one tool call the oracle asked for. Index is the stable
// call number within the turn; clients correlate tool_result events by it.
type ToolRequest struct {
	Index int
	ID    string // provider-assigned call id, echoed back in the tool result
	Name  string // fully-qualified "server.tool"
	Args  map[string]any
}

// Turn is the oracle's answer to one planning step: a text answer, a set of
// tool-call requests, or a mixed final turn.
type Turn struct {
	Text         string
	ToolRequests []ToolRequest
}

// IsFinal reports whether the oracle is done calling tools.
func (t *Turn) IsFinal() bool { return len(t.ToolRequests) == 0 }

// PlanRequest carries one planning step's inputs.
type PlanRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDef
}

// StreamFunc receives incremental text chunks during StreamPlan.
type StreamFunc func(delta string)

// Oracle is the planning abstraction. Both operations must honor context
// cancellation promptly.
type Oracle interface {
	// Plan runs one non-streaming planning step.
	Plan(ctx context.Context, req PlanRequest) (*Turn, error)

	// StreamPlan runs one planning step, forwarding text chunks to onDelta
	// as they arrive. The returned Turn carries the assembled text plus any
	// tool requests. onDelta may be nil.
	StreamPlan(ctx context.Context, req PlanRequest, onDelta StreamFunc) (*Turn, error)
}
