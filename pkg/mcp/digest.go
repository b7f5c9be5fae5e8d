package mcp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// digestMaxChars bounds the inline preview carried in tool_invoked and
// tool_result events. Full payloads go to the model's transcript for the
// request; events and the session buffer's tool-call records carry only
// digests.
const digestMaxChars = 256

// Digest returns a compact, stable representation of a payload for the event
// stream: a bounded preview plus a short content hash so clients can
// correlate identical payloads without shipping them twice.
func Digest(content string) string {
	if content == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(content))
	short := hex.EncodeToString(sum[:4])
	if len(content) <= digestMaxChars {
		return fmt.Sprintf("%s#%s", content, short)
	}
	return fmt.Sprintf("%s…#%s(%dB)", truncate(content, digestMaxChars), short, len(content))
}

// TruncateForBuffer bounds tool output that is embedded in error messages
// and result payloads. Cut at the last newline before the limit so indented JSON/YAML/log output
// keeps whole lines.
func TruncateForBuffer(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	truncated := truncate(content, maxChars)
	if idx := strings.LastIndex(truncated, "\n"); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + fmt.Sprintf("\n[TRUNCATED — original size %dB, limit %dB]", len(content), maxChars)
}

// truncate cuts at a byte limit without splitting a multi-byte UTF-8 rune.
func truncate(content string, maxChars int) string {
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}
