package orchestrator

import (
	"regexp"
	"strings"
)

// urlRegex matches http(s) URLs in tool output and answers. Trailing
// punctuation that commonly hugs a URL in prose is stripped afterwards.
var urlRegex = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// extractURLs returns the unique URLs in text, in order of first appearance.
func extractURLs(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range urlRegex.FindAllString(text, -1) {
		u := strings.TrimRight(raw, ".,;:")
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// citedURLs keeps the tool-result URLs that the answer actually cites;
// URLs the text never mentions are discarded.
func citedURLs(answer string, resultTexts []string) []string {
	var fromResults []string
	for _, t := range resultTexts {
		fromResults = append(fromResults, extractURLs(t)...)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, u := range fromResults {
		if _, ok := seen[u]; ok {
			continue
		}
		if !strings.Contains(answer, u) {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// splitFollowUps parses the trailing "FOLLOW-UPS:" block from a brainstorm
// answer. Returns the answer body and the follow-up questions.
func splitFollowUps(text string) (answer string, followUps []string) {
	marker := "FOLLOW-UPS:"
	idx := strings.LastIndex(text, marker)
	if idx < 0 {
		return strings.TrimSpace(text), nil
	}

	answer = strings.TrimSpace(text[:idx])
	for _, line := range strings.Split(text[idx+len(marker):], "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimSpace(line)
		if line != "" {
			followUps = append(followUps, line)
		}
	}
	if len(followUps) > 3 {
		followUps = followUps[:3]
	}
	return answer, followUps
}
