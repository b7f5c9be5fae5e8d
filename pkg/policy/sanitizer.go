// Package policy vets every planned tool call against a static allow/deny
// policy before it reaches a pool. It enforces the read-only guarantee: no
// dispatched call may mutate external cloud resources.
package policy

import (
	"fmt"
	"strings"
)

// DefaultDenySubstrings blocks mutation-indicating tool names regardless of
// mode. Matching is case-insensitive on the fully-qualified name.
var DefaultDenySubstrings = []string{
	"create_resource",
	"update_resource",
	"delete_resource",
	"apply",
	"destroy",
	"deploy",
	"terminate",
}

// MaxSuccessiveBlocks is the number of consecutive Blocked responses at which
// the orchestrator escalates to a terminal policy violation. The count runs
// across the planning turns of one request; any allowed call resets it.
const MaxSuccessiveBlocks = 3

// BlockedError reports why a tool call was refused.
type BlockedError struct {
	Tool   string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("tool %q blocked: %s", e.Tool, e.Reason)
}

// Sanitizer applies the deny substrings plus a per-mode allow-list of
// tool-name prefixes. A mode with no allow-list entry (or an empty one) is
// unrestricted: everything not denied is permitted.
type Sanitizer struct {
	denySubstrings []string
	modeAllow      map[string][]string // mode → allowed fully-qualified prefixes
}

// NewSanitizer builds a sanitizer. Passing nil denySubstrings applies the
// defaults; pass an empty non-nil slice to disable the denylist (tests only).
func NewSanitizer(denySubstrings []string, modeAllow map[string][]string) *Sanitizer {
	if denySubstrings == nil {
		denySubstrings = DefaultDenySubstrings
	}
	lowered := make([]string, len(denySubstrings))
	for i, s := range denySubstrings {
		lowered[i] = strings.ToLower(s)
	}
	if modeAllow == nil {
		modeAllow = map[string][]string{}
	}
	return &Sanitizer{denySubstrings: lowered, modeAllow: modeAllow}
}

// Check vets one fully-qualified tool name (e.g. "cfn.create_template") for
// the given mode. Returns a *BlockedError when the call must not dispatch.
func (s *Sanitizer) Check(mode, qualifiedName string) error {
	lower := strings.ToLower(qualifiedName)

	for _, deny := range s.denySubstrings {
		if strings.Contains(lower, deny) {
			return &BlockedError{
				Tool:   qualifiedName,
				Reason: fmt.Sprintf("name matches denied substring %q", deny),
			}
		}
	}

	allowed, ok := s.modeAllow[mode]
	if !ok || len(allowed) == 0 {
		return nil
	}
	for _, prefix := range allowed {
		if strings.HasPrefix(qualifiedName, prefix) {
			return nil
		}
	}
	return &BlockedError{
		Tool:   qualifiedName,
		Reason: fmt.Sprintf("not in the %s mode allow-list", mode),
	}
}

// AllowedPrefixes returns the allow-list for a mode (nil when unrestricted).
func (s *Sanitizer) AllowedPrefixes(mode string) []string {
	return s.modeAllow[mode]
}
