// Package events defines the typed event variants the orchestrator produces
// and the newline-delimited JSON encoder that puts them on the wire.
//
// Every line is an object with a "type" field. Exactly one terminal event —
// complete or failed — ends the stream.
package events

// Event type discriminators.
const (
	TypeThinking    = "thinking"
	TypePartialText = "partial_text"
	TypeToolInvoked = "tool_invoked"
	TypeToolResult  = "tool_result"
	TypeArtifact    = "artifact"
	TypeComplete    = "complete"
	TypeFailed      = "failed"
)

// Terminal failure kinds exposed to clients.
const (
	FailTimeout         = "timeout"
	FailPoolExhausted   = "pool_exhausted"
	FailToolError       = "tool_error"
	FailPolicyViolation = "policy_violation"
	FailCancelled       = "cancelled"
	FailInternal        = "internal"
)

// Tool result statuses.
const (
	ToolStatusOK      = "ok"
	ToolStatusError   = "error"
	ToolStatusBlocked = "blocked"
)

// ThinkingPayload announces an orchestrator state transition.
type ThinkingPayload struct {
	Type    string `json:"type"` // always TypeThinking
	Step    string `json:"step"`
	Message string `json:"message"`
}

// PartialTextPayload carries one LLM streaming chunk.
type PartialTextPayload struct {
	Type string `json:"type"` // always TypePartialText
	Text string `json:"text"`
}

// ToolInvokedPayload is emitted right before a tool call dispatches.
type ToolInvokedPayload struct {
	Type       string `json:"type"` // always TypeToolInvoked
	CallID     int    `json:"call_id"`
	Tool       string `json:"tool"`
	ArgsDigest string `json:"args_digest"`
}

// ToolResultPayload is emitted when a dispatch finishes (or is blocked).
type ToolResultPayload struct {
	Type         string `json:"type"` // always TypeToolResult
	CallID       int    `json:"call_id"`
	Status       string `json:"status"` // ok | error | blocked
	ResultDigest string `json:"result_digest"`
}

// ArtifactPayload delivers a generated artifact: a diagram image or a
// template document. Exactly one of BytesBase64 or Text is set.
type ArtifactPayload struct {
	Type        string `json:"type"` // always TypeArtifact
	Kind        string `json:"kind"` // e.g. "diagram", "template"
	MimeType    string `json:"mime_type,omitempty"`
	BytesBase64 string `json:"bytes_base64,omitempty"`
	Text        string `json:"text,omitempty"`
}

// CompletePayload terminates a successful stream. Result is the
// mode-specific payload.
type CompletePayload struct {
	Type      string `json:"type"` // always TypeComplete
	Mode      string `json:"mode"`
	SessionID string `json:"session_id"`
	Result    any    `json:"result"`
}

// FailedPayload terminates a failed stream.
type FailedPayload struct {
	Type    string `json:"type"` // always TypeFailed
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Thinking builds a ThinkingPayload.
func Thinking(step, message string) ThinkingPayload {
	return ThinkingPayload{Type: TypeThinking, Step: step, Message: message}
}

// PartialText builds a PartialTextPayload.
func PartialText(text string) PartialTextPayload {
	return PartialTextPayload{Type: TypePartialText, Text: text}
}

// ToolInvoked builds a ToolInvokedPayload.
func ToolInvoked(callID int, tool, argsDigest string) ToolInvokedPayload {
	return ToolInvokedPayload{Type: TypeToolInvoked, CallID: callID, Tool: tool, ArgsDigest: argsDigest}
}

// ToolResult builds a ToolResultPayload.
func ToolResult(callID int, status, resultDigest string) ToolResultPayload {
	return ToolResultPayload{Type: TypeToolResult, CallID: callID, Status: status, ResultDigest: resultDigest}
}

// Complete builds a CompletePayload.
func Complete(mode, sessionID string, result any) CompletePayload {
	return CompletePayload{Type: TypeComplete, Mode: mode, SessionID: sessionID, Result: result}
}

// Failed builds a FailedPayload.
func Failed(kind, message string) FailedPayload {
	return FailedPayload{Type: TypeFailed, Kind: kind, Message: message}
}
