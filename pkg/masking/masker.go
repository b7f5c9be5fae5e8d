// Package masking redacts sensitive material from tool results before they
// reach the event stream or a session's context buffer. A multi-tenant
// server must not echo one tenant's credentials back through another layer.
package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns cover the credential shapes that show up in cloud tooling
// output. Callers of NewMasker may add custom patterns on top.
var builtinPatterns = []struct {
	name, pattern, replacement string
}{
	{"aws_access_key", `\b(AKIA|ASIA)[0-9A-Z]{16}\b`, "***MASKED_ACCESS_KEY***"},
	{"aws_secret_key", `(?i)aws_secret_access_key\s*[=:]\s*\S+`, "aws_secret_access_key=***MASKED***"},
	{"bearer_token", `(?i)bearer\s+[a-z0-9._\-]{16,}`, "Bearer ***MASKED***"},
	{"api_key_assignment", `(?i)(api[_-]?key|secret|password|token)(["']?\s*[=:]\s*["']?)[^\s"',;]{8,}`, "$1$2***MASKED***"},
	{"private_key_block", `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`, "***MASKED_PRIVATE_KEY***"},
}

// Masker applies redaction patterns to text.
type Masker struct {
	patterns []*CompiledPattern
}

// NewMasker compiles the built-in patterns plus any extras. Invalid extra
// patterns are logged and skipped rather than failing startup.
func NewMasker(extra map[string]string) *Masker {
	m := &Masker{}
	for _, p := range builtinPatterns {
		m.patterns = append(m.patterns, &CompiledPattern{
			Name:        p.name,
			Regex:       regexp.MustCompile(p.pattern),
			Replacement: p.replacement,
		})
	}
	for name, pattern := range extra {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			slog.Error("Failed to compile custom masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		m.patterns = append(m.patterns, &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: "***MASKED***",
		})
	}
	return m
}

// Apply redacts all matches in content.
func (m *Masker) Apply(content string) string {
	for _, p := range m.patterns {
		content = p.Regex.ReplaceAllString(content, p.Replacement)
	}
	return content
}
