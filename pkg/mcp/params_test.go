package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]any
	}{
		{
			name:     "empty input",
			input:    "",
			expected: map[string]any{},
		},
		{
			name:     "whitespace only",
			input:    "   \n  ",
			expected: map[string]any{},
		},
		{
			name:     "json object",
			input:    `{"query": "s3 lifecycle", "limit": 5}`,
			expected: map[string]any{"query": "s3 lifecycle", "limit": float64(5)},
		},
		{
			name:     "json array wrapped",
			input:    `["a", "b"]`,
			expected: map[string]any{"input": []any{"a", "b"}},
		},
		{
			name:     "json string wrapped",
			input:    `"just text"`,
			expected: map[string]any{"input": "just text"},
		},
		{
			name:     "key colon value pairs",
			input:    "query: lambda limits, limit: 3",
			expected: map[string]any{"query": "lambda limits", "limit": int64(3)},
		},
		{
			name:     "key equals value pairs",
			input:    "region=eu-west-1, verbose=true",
			expected: map[string]any{"region": "eu-west-1", "verbose": true},
		},
		{
			name:     "null coercion",
			input:    "filter: none",
			expected: map[string]any{"filter": nil},
		},
		{
			name:     "float coercion",
			input:    "threshold: 0.75",
			expected: map[string]any{"threshold": 0.75},
		},
		{
			name:     "raw string fallback",
			input:    "how do I configure a VPC peering connection",
			expected: map[string]any{"input": "how do I configure a VPC peering connection"},
		},
		{
			name:  "yaml with nested structure",
			input: "services:\n  - ec2\n  - rds",
			expected: map[string]any{
				"services": []any{"ec2", "rds"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseActionInput(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseActionInputMalformedJSONFallsThrough(t *testing.T) {
	result, err := ParseActionInput(`{broken json`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"input": `{broken json`}, result)
}
