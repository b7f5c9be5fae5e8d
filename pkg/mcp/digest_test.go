package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigestEmpty(t *testing.T) {
	assert.Equal(t, "", Digest(""))
}

func TestDigestShortContentInlined(t *testing.T) {
	d := Digest(`{"query":"s3"}`)
	assert.True(t, strings.HasPrefix(d, `{"query":"s3"}#`))
}

func TestDigestLongContentTruncated(t *testing.T) {
	long := strings.Repeat("x", 10_000)
	d := Digest(long)
	assert.Less(t, len(d), 400)
	assert.Contains(t, d, "10000B")
}

func TestDigestStableForSameContent(t *testing.T) {
	assert.Equal(t, Digest("same payload"), Digest("same payload"))
	assert.NotEqual(t, Digest("payload a"), Digest("payload b"))
}

func TestTruncateForBufferKeepsWholeLines(t *testing.T) {
	content := "line one\nline two\nline three"
	out := TruncateForBuffer(content, 15)
	assert.True(t, strings.HasPrefix(out, "line one"))
	assert.NotContains(t, out, "line two\nline three")
	assert.Contains(t, out, "TRUNCATED")
}

func TestTruncateForBufferNoopUnderLimit(t *testing.T) {
	assert.Equal(t, "short", TruncateForBuffer("short", 100))
	assert.Equal(t, "short", TruncateForBuffer("short", 0), "zero limit disables truncation")
}

func TestTruncateDoesNotSplitRunes(t *testing.T) {
	content := strings.Repeat("é", 100) // two bytes per rune
	out := TruncateForBuffer(content, 33)
	for _, part := range strings.Split(out, "\n") {
		assert.True(t, isValidUTF8(part))
	}
}

func isValidUTF8(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
