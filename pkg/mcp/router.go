package mcp

import (
	"fmt"
	"regexp"
	"strings"
)

// toolNameRegex validates the "server.tool" format. Both parts must start
// with a word character and contain only word characters and hyphens.
var toolNameRegex = regexp.MustCompile(`^([\w][\w-]*)\.([\w][\w-]*)$`)

// NormalizeToolName converts between the formats models emit.
// Function-calling providers restrict names to [\w-], so tools are surfaced
// as "server__tool"; routing uses the canonical "server.tool".
func NormalizeToolName(name string) string {
	if strings.Contains(name, "__") && !strings.Contains(name, ".") {
		return strings.Replace(name, "__", ".", 1)
	}
	return name
}

// FunctionName converts a canonical "server.tool" name into the
// "server__tool" form accepted by function-calling APIs.
func FunctionName(name string) string {
	return strings.Replace(name, ".", "__", 1)
}

// SplitToolName splits "server.tool" into (serverKey, toolName, error).
func SplitToolName(name string) (serverKey, toolName string, err error) {
	matches := toolNameRegex.FindStringSubmatch(name)
	if matches == nil {
		return "", "", fmt.Errorf(
			"invalid tool name %q: must be in 'server.tool' format "+
				"(e.g., 'docs.search_documentation')", name)
	}
	return matches[1], matches[2], nil
}

// QualifiedName builds the fully-qualified "server.tool" name.
func QualifiedName(serverKey, toolName string) string {
	return serverKey + "." + toolName
}
